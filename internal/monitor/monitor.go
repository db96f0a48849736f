// Package monitor holds the per-endpoint state machine: the Monitor entity,
// its bounded status history, the transition rules and derived statistics.
package monitor

import (
	"sync"
	"time"
)

const (
	// FailureThreshold is the number of consecutive failed probes required
	// before an up monitor is declared down.
	FailureThreshold = 2

	// HistoryCapacity bounds the per-monitor status history.
	HistoryCapacity = 50

	// DefaultInterval and DefaultTimeout apply when a monitor is created
	// without explicit values.
	DefaultInterval = 60 * time.Second
	DefaultTimeout  = 10 * time.Second

	latencyWindow = 10
)

// StatusRecord is one entry of a monitor's status history.
type StatusRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	Up             bool      `json:"up"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Error          string    `json:"error"`
}

// Record is the persisted subset of a Monitor.
type Record struct {
	Name                 string `json:"name"`
	URL                  string `json:"url"`
	CheckIntervalSeconds int    `json:"check_interval"`
	TimeoutSeconds       int    `json:"timeout"`
	IsUp                 bool   `json:"is_up"`
}

// Monitor is a watched HTTP endpoint. All methods are safe for concurrent use;
// mutations are serialized by a per-monitor mutex.
type Monitor struct {
	name     string
	url      string
	interval time.Duration
	timeout  time.Duration

	// probeMu serializes whole probe cycles; mu only guards state.
	probeMu sync.Mutex

	mu                  sync.Mutex
	isUp                bool
	lastCheckedAt       time.Time
	lastUpAt            time.Time
	downtimeStartedAt   time.Time
	totalDowntime       time.Duration
	consecutiveFailures int
	responseTimes       []float64
	history             history
	lastCheckSucceeded  *bool
}

// New creates a monitor in the optimistic up state. Zero interval or timeout
// fall back to DefaultInterval and DefaultTimeout.
func New(name, url string, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		name:     name,
		url:      url,
		interval: interval,
		timeout:  timeout,
		isUp:     true,
		history:  newHistory(HistoryCapacity),
	}
}

// FromRecord rebuilds a monitor from its persisted form. Runtime fields
// (history, counters, timers) start fresh.
func FromRecord(r Record) *Monitor {
	m := New(r.Name, r.URL,
		time.Duration(r.CheckIntervalSeconds)*time.Second,
		time.Duration(r.TimeoutSeconds)*time.Second,
	)
	m.isUp = r.IsUp
	return m
}

// Name returns the monitor's unique name.
func (m *Monitor) Name() string { return m.name }

// URL returns the probed endpoint.
func (m *Monitor) URL() string { return m.url }

// Interval returns the time between scheduled probes.
func (m *Monitor) Interval() time.Duration { return m.interval }

// Timeout returns the per-probe timeout.
func (m *Monitor) Timeout() time.Duration { return m.timeout }

// LockProbe reserves the monitor for one probe-and-apply cycle so results
// are applied in the order probes started. Release it with UnlockProbe.
func (m *Monitor) LockProbe() { m.probeMu.Lock() }

// UnlockProbe releases the reservation taken by LockProbe.
func (m *Monitor) UnlockProbe() { m.probeMu.Unlock() }

// Record returns the persisted form of the monitor.
func (m *Monitor) Record() Record {
	m.mu.Lock()
	up := m.isUp
	m.mu.Unlock()
	return Record{
		Name:                 m.name,
		URL:                  m.url,
		CheckIntervalSeconds: int(m.interval / time.Second),
		TimeoutSeconds:       int(m.timeout / time.Second),
		IsUp:                 up,
	}
}

// Due reports whether the monitor should be probed at now.
func (m *Monitor) Due(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheckedAt.IsZero() || now.Sub(m.lastCheckedAt) >= m.interval
}

// Snapshot is a consistent, immutable copy of a monitor's state.
type Snapshot struct {
	Name                string
	URL                 string
	Interval            time.Duration
	Timeout             time.Duration
	IsUp                bool
	LastCheckedAt       time.Time
	LastUpAt            time.Time
	DowntimeStartedAt   time.Time
	TotalDowntime       time.Duration
	ConsecutiveFailures int
	FailureThreshold    int
	ResponseTimesMs     []float64
	History             []StatusRecord
	LastCheckSucceeded  *bool
}

// Snapshot copies the monitor's state under its lock.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Name:                m.name,
		URL:                 m.url,
		Interval:            m.interval,
		Timeout:             m.timeout,
		IsUp:                m.isUp,
		LastCheckedAt:       m.lastCheckedAt,
		LastUpAt:            m.lastUpAt,
		DowntimeStartedAt:   m.downtimeStartedAt,
		TotalDowntime:       m.totalDowntime,
		ConsecutiveFailures: m.consecutiveFailures,
		FailureThreshold:    FailureThreshold,
		ResponseTimesMs:     append([]float64(nil), m.responseTimes...),
		History:             m.history.records(),
	}
	if m.lastCheckSucceeded != nil {
		v := *m.lastCheckSucceeded
		s.LastCheckSucceeded = &v
	}
	return s
}
