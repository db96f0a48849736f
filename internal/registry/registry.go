// Package registry owns the set of monitors, enforces name uniqueness and
// persists the full set after every mutation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

var (
	ErrInvalidURL    = errors.New("invalid url")
	ErrDuplicateName = errors.New("monitor already exists")
	ErrNotFound      = errors.New("monitor not found")
	ErrInvalidConfig = errors.New("invalid monitor config")
	// ErrPersist is returned alongside a successful in-memory mutation when
	// the store could not be written. The mutation is kept.
	ErrPersist = errors.New("persisting monitors")
)

// Store is the persistence collaborator.
type Store interface {
	LoadAll(ctx context.Context) (map[string]monitor.Record, error)
	SaveAll(ctx context.Context, records map[string]monitor.Record) error
}

type addInput struct {
	Name     string        `validate:"required,max=100"`
	URL      string        `validate:"required,absurl"`
	Interval time.Duration `validate:"gte=0"`
	Timeout  time.Duration `validate:"gte=0"`
}

// Registry is the in-memory collection of monitors.
type Registry struct {
	mu       sync.RWMutex
	monitors map[string]*monitor.Monitor

	// saveMu orders writes to the store so a stale snapshot never lands
	// after a newer one. It is never held together with mu.
	saveMu sync.Mutex

	store    Store
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates an empty Registry. store may be nil to disable persistence.
// Pass nil logger to use the default logger.
func New(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("absurl", func(fl validator.FieldLevel) bool {
		return absoluteURL(fl.Field().String())
	})
	return &Registry{
		monitors: make(map[string]*monitor.Monitor),
		store:    store,
		validate: v,
		logger:   logger,
	}
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Add validates the input, registers a new monitor and persists the set.
// Zero interval or timeout take the monitor defaults.
func (r *Registry) Add(ctx context.Context, name, rawURL string, interval, timeout time.Duration) (*monitor.Monitor, error) {
	in := addInput{
		Name:     strings.TrimSpace(name),
		URL:      strings.TrimSpace(rawURL),
		Interval: interval,
		Timeout:  timeout,
	}
	if err := r.check(in); err != nil {
		return nil, err
	}

	m := monitor.New(in.Name, in.URL, in.Interval, in.Timeout)

	r.mu.Lock()
	if _, exists := r.monitors[in.Name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, in.Name)
	}
	r.monitors[in.Name] = m
	r.mu.Unlock()

	r.logger.Info("monitor added", "monitor", in.Name, "url", in.URL, "interval", m.Interval(), "timeout", m.Timeout())
	return m, r.Save(ctx)
}

// Validate applies the checks Add runs, without registering anything.
func (r *Registry) Validate(name, rawURL string, interval, timeout time.Duration) error {
	return r.check(addInput{
		Name:     strings.TrimSpace(name),
		URL:      strings.TrimSpace(rawURL),
		Interval: interval,
		Timeout:  timeout,
	})
}

func (r *Registry) check(in addInput) error {
	if err := r.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "URL" {
					return fmt.Errorf("%w: %q", ErrInvalidURL, in.URL)
				}
			}
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if in.Interval > 0 && in.Interval < time.Second {
		return fmt.Errorf("%w: interval must be at least 1s", ErrInvalidConfig)
	}
	if in.Timeout > 0 && in.Timeout < time.Second {
		return fmt.Errorf("%w: timeout must be at least 1s", ErrInvalidConfig)
	}
	return nil
}

// Remove deletes the named monitor and persists the set.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	if _, ok := r.monitors[name]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.monitors, name)
	r.mu.Unlock()

	r.logger.Info("monitor removed", "monitor", name)
	return r.Save(ctx)
}

// Get returns the named monitor.
func (r *Registry) Get(name string) (*monitor.Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.monitors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return m, nil
}

// List returns all monitors sorted by name.
func (r *Registry) List() []*monitor.Monitor {
	r.mu.RLock()
	out := make([]*monitor.Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of monitors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}

// Load hydrates the registry from the store. Records that fail validation
// are skipped with a warning; names already present are left untouched.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	records, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading monitors: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, rec := range records {
		if rec.Name == "" {
			rec.Name = name
		}
		if !absoluteURL(rec.URL) {
			r.logger.Warn("skipping stored monitor with invalid url", "monitor", rec.Name, "url", rec.URL)
			continue
		}
		if _, exists := r.monitors[rec.Name]; exists {
			continue
		}
		r.monitors[rec.Name] = monitor.FromRecord(rec)
	}
	r.logger.Info("monitors loaded", "count", len(r.monitors))
	return nil
}

// Save writes the current set to the store. Failures are logged and
// returned wrapped in ErrPersist.
func (r *Registry) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	records := r.Records()
	if err := r.store.SaveAll(ctx, records); err != nil {
		r.logger.Error("persisting monitors", "count", len(records), "error", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// Records returns the persisted form of every monitor keyed by name.
func (r *Registry) Records() map[string]monitor.Record {
	r.mu.RLock()
	list := make([]*monitor.Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		list = append(list, m)
	}
	r.mu.RUnlock()

	out := make(map[string]monitor.Record, len(list))
	for _, m := range list {
		out[m.Name()] = m.Record()
	}
	return out
}
