// Package alert delivers monitor state-change events to external
// destinations.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

// DefaultTimeout bounds one delivery across all destinations.
const DefaultTimeout = 15 * time.Second

// Notifier delivers one event to one destination.
type Notifier interface {
	Notify(ctx context.Context, ev monitor.Event) error
}

// Multi fans an event out to every destination. Each destination gets one
// attempt; the first error is returned after all have been tried.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev monitor.Event) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dispatcher hands events to a Notifier in the background so the caller
// never waits on delivery.
type Dispatcher struct {
	notifier  Notifier
	cooldown  time.Duration
	timeout   time.Duration
	lastAlert map[string]time.Time
	mu        sync.Mutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. A zero cooldown alerts on every
// transition. Pass nil logger to use the default logger.
func NewDispatcher(n Notifier, cooldown time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier:  n,
		cooldown:  cooldown,
		timeout:   DefaultTimeout,
		lastAlert: make(map[string]time.Time),
		logger:    logger,
	}
}

// Dispatch queues ev for delivery and returns immediately.
func (d *Dispatcher) Dispatch(ev monitor.Event) {
	if d.notifier == nil {
		return
	}

	if d.cooldown > 0 {
		d.mu.Lock()
		last, exists := d.lastAlert[ev.Monitor]
		if exists && ev.OccurredAt.Sub(last) < d.cooldown {
			d.mu.Unlock()
			d.logger.Info("alert suppressed by cooldown", "monitor", ev.Monitor, "event", ev.Kind)
			return
		}
		d.lastAlert[ev.Monitor] = ev.OccurredAt
		d.mu.Unlock()
	}

	d.wg.Add(1)
	go d.send(ev)
}

func (d *Dispatcher) send(ev monitor.Event) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, ev); err != nil {
		d.logger.Error("delivering alert", "monitor", ev.Monitor, "event", ev.Kind, "event_id", ev.ID, "error", err)
		return
	}
	d.logger.Debug("alert delivered", "monitor", ev.Monitor, "event", ev.Kind, "event_id", ev.ID)
}

// Wait blocks until in-flight deliveries finish. Used during shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
