package dashboard

import (
	"fmt"
	"io"
	"math"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

const title = "🎯 Uptime Monitoring Dashboard"

// Render writes snap as plain text.
func Render(w io.Writer, snap Snapshot) error {
	ew := &errWriter{w: w}

	ew.printf("%s\n", title)
	if snap.Empty {
		ew.printf("No websites are being monitored.\n")
		ew.printf("Add one with: uptimewatch add <name> <url>\n")
		return ew.err
	}

	ew.printf("Auto-refreshing every %.0f seconds | %d websites monitored\n\n", snap.RefreshSeconds, snap.Total)
	ew.printf("📊 System Overview\n")
	ew.printf("🟢 Online: %d\n", snap.Up)
	ew.printf("🔴 Offline: %d\n", snap.Down)
	ew.printf("📈 Health: %.1f%%\n\n", snap.HealthPercent)

	ew.printf("📡 Monitored Websites\n")
	for _, l := range snap.Monitors {
		ew.printf("%s **%s** - %.0fms | Uptime: %.1f%%\n", l.Glyph, l.Name, math.Round(l.AvgResponseMs), l.Uptime24h)
		if !l.HasStateDuration {
			continue
		}
		if l.IsUp {
			ew.printf("   └─ Up for %s\n", monitor.FormatClock(l.StateDuration()))
		} else {
			ew.printf("   └─ Down for %s\n", monitor.FormatClock(l.StateDuration()))
		}
	}
	ew.printf("\n🟢 = Online | 🔴 = Offline | ms = Response time | Uptime = Last 24h\n")
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
