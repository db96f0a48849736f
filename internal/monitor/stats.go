package monitor

import (
	"fmt"
	"time"
)

// AverageResponseTimeMs is the mean of the last ten successful latencies,
// or 0 when there are none.
func (s Snapshot) AverageResponseTimeMs() float64 {
	recent := s.ResponseTimesMs
	if len(recent) == 0 {
		return 0
	}
	if len(recent) > latencyWindow {
		recent = recent[len(recent)-latencyWindow:]
	}
	var sum float64
	for _, v := range recent {
		sum += v
	}
	return sum / float64(len(recent))
}

// UptimePercentage is the share of history records newer than now-window
// that were up. A window with no records counts as fully up.
func (s Snapshot) UptimePercentage(window time.Duration, now time.Time) float64 {
	cutoff := now.Add(-window)
	var total, up int
	for _, r := range s.History {
		if !r.Timestamp.After(cutoff) {
			continue
		}
		total++
		if r.Up {
			up++
		}
	}
	if total == 0 {
		return 100.0
	}
	return 100 * float64(up) / float64(total)
}

// StateDuration is the time spent in the current state: since LastUpAt when
// up, since DowntimeStartedAt when down. ok is false when the start of the
// current state is unknown.
func (s Snapshot) StateDuration(now time.Time) (d time.Duration, ok bool) {
	start := s.LastUpAt
	if !s.IsUp {
		start = s.DowntimeStartedAt
	}
	if start.IsZero() {
		return 0, false
	}
	d = now.Sub(start)
	if d < 0 {
		d = 0
	}
	return d, true
}

// RecentHistory returns up to n of the newest history records, oldest first.
func (s Snapshot) RecentHistory(n int) []StatusRecord {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// AverageResponseTimeMs is a convenience over Snapshot.
func (m *Monitor) AverageResponseTimeMs() float64 {
	return m.Snapshot().AverageResponseTimeMs()
}

// UptimePercentage is a convenience over Snapshot.
func (m *Monitor) UptimePercentage(window time.Duration, now time.Time) float64 {
	return m.Snapshot().UptimePercentage(window, now)
}

// FormatClock renders d as H:MM:SS, truncated to whole seconds. Hours are
// not wrapped into days.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}
