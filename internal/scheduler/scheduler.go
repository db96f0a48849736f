// Package scheduler drives periodic probing of the registry's monitors.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazz-dev/uptimewatch/internal/checker"
	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

// DefaultPeriod is the tick period when none is configured.
const DefaultPeriod = 30 * time.Second

// Registry is the subset of the monitor registry the scheduler needs.
type Registry interface {
	List() []*monitor.Monitor
	Get(name string) (*monitor.Monitor, error)
	Save(ctx context.Context) error
}

// Store receives every probe outcome for the check log.
type Store interface {
	InsertCheck(ctx context.Context, name string, r monitor.StatusRecord) error
}

// Dispatcher delivers transition events without blocking the caller.
type Dispatcher interface {
	Dispatch(ev monitor.Event)
}

// Options configures a Scheduler. Zero values select defaults; Store and
// Dispatcher may be nil.
type Options struct {
	Period     time.Duration
	Store      Store
	Dispatcher Dispatcher
	Now        func() time.Time
}

// Status describes the scheduler for the API.
type Status struct {
	Paused        bool      `json:"paused"`
	PeriodSeconds float64   `json:"period_seconds"`
	LastTickAt    time.Time `json:"last_tick_at"`
	LastProbed    int       `json:"last_probed"`
}

// Scheduler probes due monitors one at a time on a fixed tick.
type Scheduler struct {
	registry Registry
	checker  checker.Checker
	store    Store
	dispatch Dispatcher
	period   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	paused atomic.Bool
	tickMu sync.Mutex

	mu         sync.Mutex
	onResult   []func(monitor.Snapshot)
	lastTickAt time.Time
	lastProbed int

	wg sync.WaitGroup
}

// New creates a Scheduler. Pass nil logger to use the default logger.
func New(reg Registry, c checker.Checker, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		registry: reg,
		checker:  c,
		store:    opts.Store,
		dispatch: opts.Dispatcher,
		period:   opts.Period,
		now:      opts.Now,
		logger:   logger,
	}
}

// AddOnResult registers a callback invoked with the monitor's snapshot after
// every probe, scheduled or manual. Callbacks run on the probing goroutine.
func (s *Scheduler) AddOnResult(fn func(monitor.Snapshot)) {
	s.mu.Lock()
	s.onResult = append(s.onResult, fn)
	s.mu.Unlock()
}

// Start runs the tick loop in a goroutine. The first tick fires immediately.
// It is non-blocking; cancel ctx and call Wait to stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Wait blocks until the tick loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.Tick(ctx)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick probes every due monitor in registry order, strictly sequentially,
// and returns how many were probed. A paused scheduler probes nothing.
func (s *Scheduler) Tick(ctx context.Context) int {
	if s.paused.Load() {
		s.logger.Debug("tick skipped, scheduler paused")
		return 0
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	probed := 0
	for _, m := range s.registry.List() {
		if ctx.Err() != nil {
			break
		}
		if !m.Due(s.now()) {
			continue
		}
		s.probe(ctx, m)
		probed++
	}

	s.mu.Lock()
	s.lastTickAt = s.now()
	s.lastProbed = probed
	s.mu.Unlock()
	return probed
}

// ProbeNow probes the named monitor immediately, ignoring its interval and
// the paused flag, and returns the resulting snapshot.
func (s *Scheduler) ProbeNow(ctx context.Context, name string) (monitor.Snapshot, error) {
	m, err := s.registry.Get(name)
	if err != nil {
		return monitor.Snapshot{}, err
	}
	return s.probe(ctx, m), nil
}

// Probe runs one out-of-band probe for m. It is used for the probe that
// follows adding a monitor.
func (s *Scheduler) Probe(ctx context.Context, m *monitor.Monitor) monitor.Snapshot {
	return s.probe(ctx, m)
}

func (s *Scheduler) probe(ctx context.Context, m *monitor.Monitor) monitor.Snapshot {
	// A probe-now can overlap a tick; the start time is taken under the lock
	// so a slow earlier probe never lands after a later one.
	m.LockProbe()
	defer m.UnlockProbe()

	start := s.now()
	result := s.checker.Probe(ctx, m.URL(), m.Timeout())
	events := m.Apply(result, start)

	s.logger.Info("check result",
		"monitor", m.Name(),
		"up", result.Succeeded,
		"status_code", result.HTTPStatus,
		"latency_ms", result.LatencyMs,
		"error", result.ErrorText,
	)

	if s.store != nil {
		if err := s.store.InsertCheck(ctx, m.Name(), monitor.NewStatusRecord(result, start)); err != nil {
			s.logger.Error("storing check result", "monitor", m.Name(), "error", err)
		}
	}

	snap := m.Snapshot()

	s.mu.Lock()
	hooks := append([]func(monitor.Snapshot){}, s.onResult...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(snap)
	}

	for _, ev := range events {
		s.logger.Info("state changed", "monitor", ev.Monitor, "event", ev.Kind, "event_id", ev.ID)
		if s.dispatch != nil {
			s.dispatch.Dispatch(ev)
		}
	}
	if len(events) > 0 {
		// The registry logs its own persistence failures.
		_ = s.registry.Save(ctx)
	}
	return snap
}

// Pause stops scheduled probing until Resume is called.
func (s *Scheduler) Pause() {
	if !s.paused.Swap(true) {
		s.logger.Info("scheduler paused")
	}
}

// Resume re-enables scheduled probing.
func (s *Scheduler) Resume() {
	if s.paused.Swap(false) {
		s.logger.Info("scheduler resumed")
	}
}

// Paused reports whether scheduled probing is paused.
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

// Status returns the scheduler's current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Paused:        s.paused.Load(),
		PeriodSeconds: s.period.Seconds(),
		LastTickAt:    s.lastTickAt,
		LastProbed:    s.lastProbed,
	}
}
