package dashboard

import (
	"sort"
	"time"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

// UptimeWindow is the window used for the per-monitor uptime figure.
const UptimeWindow = 24 * time.Hour

// DefaultRefresh is how often clients should re-read the snapshot.
const DefaultRefresh = 5 * time.Second

const (
	glyphUp   = "🟢"
	glyphDown = "🔴"
)

// Lister yields the monitors to summarize.
type Lister interface {
	List() []*monitor.Monitor
}

// Line summarizes one monitor.
type Line struct {
	Name                 string     `json:"name"`
	URL                  string     `json:"url"`
	IsUp                 bool       `json:"is_up"`
	Glyph                string     `json:"glyph"`
	AvgResponseMs        float64    `json:"avg_response_ms"`
	Uptime24h            float64    `json:"uptime_24h"`
	StateDurationSeconds float64    `json:"state_duration_seconds"`
	HasStateDuration     bool       `json:"has_state_duration"`
	LastCheckedAt        *time.Time `json:"last_checked_at,omitempty"`
}

// Snapshot is a point-in-time summary of every monitor.
type Snapshot struct {
	GeneratedAt    time.Time `json:"generated_at"`
	Empty          bool      `json:"empty"`
	Total          int       `json:"total"`
	Up             int       `json:"up"`
	Down           int       `json:"down"`
	HealthPercent  float64   `json:"health_percent"`
	RefreshSeconds float64   `json:"refresh_seconds"`
	Monitors       []Line    `json:"monitors"`
}

// Aggregator builds dashboard snapshots from the registry. It holds no
// state of its own.
type Aggregator struct {
	lister  Lister
	refresh time.Duration
	now     func() time.Time
}

// NewAggregator creates an Aggregator. A zero refresh selects
// DefaultRefresh; a nil now uses time.Now.
func NewAggregator(l Lister, refresh time.Duration, now func() time.Time) *Aggregator {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	if now == nil {
		now = time.Now
	}
	return &Aggregator{lister: l, refresh: refresh, now: now}
}

// Refresh returns the configured refresh period.
func (a *Aggregator) Refresh() time.Duration {
	return a.refresh
}

// Snapshot summarizes the current state of all monitors. It never mutates
// them.
func (a *Aggregator) Snapshot() Snapshot {
	now := a.now()
	monitors := a.lister.List()

	snap := Snapshot{
		GeneratedAt:    now,
		Total:          len(monitors),
		RefreshSeconds: a.refresh.Seconds(),
		Monitors:       make([]Line, 0, len(monitors)),
	}
	if len(monitors) == 0 {
		snap.Empty = true
		return snap
	}

	for _, m := range monitors {
		s := m.Snapshot()
		line := Line{
			Name:          s.Name,
			URL:           s.URL,
			IsUp:          s.IsUp,
			Glyph:         glyphDown,
			AvgResponseMs: s.AverageResponseTimeMs(),
			Uptime24h:     s.UptimePercentage(UptimeWindow, now),
		}
		if s.IsUp {
			line.Glyph = glyphUp
			snap.Up++
		}
		if d, ok := s.StateDuration(now); ok {
			line.StateDurationSeconds = d.Truncate(time.Second).Seconds()
			line.HasStateDuration = true
		}
		if !s.LastCheckedAt.IsZero() {
			at := s.LastCheckedAt
			line.LastCheckedAt = &at
		}
		snap.Monitors = append(snap.Monitors, line)
	}
	sort.Slice(snap.Monitors, func(i, j int) bool { return snap.Monitors[i].Name < snap.Monitors[j].Name })

	snap.Down = snap.Total - snap.Up
	snap.HealthPercent = 100 * float64(snap.Up) / float64(snap.Total)
	return snap
}

// StateDuration is the time the monitor has spent in its current state.
func (l Line) StateDuration() time.Duration {
	return time.Duration(l.StateDurationSeconds) * time.Second
}
