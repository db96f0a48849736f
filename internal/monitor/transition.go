package monitor

import (
	"time"

	"github.com/google/uuid"

	"github.com/hazz-dev/uptimewatch/internal/checker"
)

// EventKind identifies a state transition.
type EventKind string

const (
	EventRecovery EventKind = "recovery"
	EventDown     EventKind = "down"
)

// Event is emitted when a monitor changes state.
type Event struct {
	ID         string
	Kind       EventKind
	Monitor    string
	URL        string
	OccurredAt time.Time

	// Recovery fields.
	LatencyMs float64
	Downtime  time.Duration

	// Down fields.
	Error     string
	Failures  int
	Threshold int
}

// NewStatusRecord converts a probe result into a history entry. Failed
// probes carry no response time.
func NewStatusRecord(r checker.ProbeResult, now time.Time) StatusRecord {
	if r.Succeeded {
		return StatusRecord{Timestamp: now, Up: true, ResponseTimeMs: r.LatencyMs}
	}
	return StatusRecord{Timestamp: now, Up: false, Error: r.ErrorText}
}

// Apply feeds one probe result into the monitor and returns the events the
// transition produced. Failures flip an up monitor to down only after
// FailureThreshold consecutive failures; the first success after a down
// period recovers immediately.
func (m *Monitor) Apply(r checker.ProbeResult, now time.Time) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastCheckedAt = now
	ok := r.Succeeded
	m.lastCheckSucceeded = &ok

	if r.Succeeded {
		return m.applySuccess(r, now)
	}
	return m.applyFailure(r, now)
}

func (m *Monitor) applySuccess(r checker.ProbeResult, now time.Time) []Event {
	m.responseTimes = append(m.responseTimes, r.LatencyMs)
	if len(m.responseTimes) > latencyWindow {
		m.responseTimes = append(m.responseTimes[:0], m.responseTimes[len(m.responseTimes)-latencyWindow:]...)
	}
	m.consecutiveFailures = 0

	var events []Event
	if !m.isUp {
		m.isUp = true
		m.lastUpAt = now

		var downtime time.Duration
		if !m.downtimeStartedAt.IsZero() {
			downtime = now.Sub(m.downtimeStartedAt)
			if downtime > 0 {
				m.totalDowntime += downtime
			} else {
				downtime = 0
			}
			m.downtimeStartedAt = time.Time{}
		}

		events = append(events, Event{
			ID:         uuid.NewString(),
			Kind:       EventRecovery,
			Monitor:    m.name,
			URL:        m.url,
			OccurredAt: now,
			LatencyMs:  r.LatencyMs,
			Downtime:   downtime,
		})
	}

	m.history.push(NewStatusRecord(r, now))
	return events
}

func (m *Monitor) applyFailure(r checker.ProbeResult, now time.Time) []Event {
	m.consecutiveFailures++

	var events []Event
	if m.isUp && m.consecutiveFailures >= FailureThreshold {
		m.isUp = false
		m.downtimeStartedAt = now
		events = append(events, Event{
			ID:         uuid.NewString(),
			Kind:       EventDown,
			Monitor:    m.name,
			URL:        m.url,
			OccurredAt: now,
			Error:      r.ErrorText,
			Failures:   m.consecutiveFailures,
			Threshold:  FailureThreshold,
		})
	}

	m.history.push(NewStatusRecord(r, now))
	return events
}
