package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazz-dev/uptimewatch/internal/checker"
	"github.com/hazz-dev/uptimewatch/internal/monitor"
	"github.com/hazz-dev/uptimewatch/internal/registry"
)

type mockStore struct {
	mu      sync.Mutex
	records map[string]monitor.Record
	saves   int
	saveErr error
	loadErr error
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]monitor.Record)}
}

func (s *mockStore) LoadAll(_ context.Context) (map[string]monitor.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[string]monitor.Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

func (s *mockStore) SaveAll(_ context.Context, records map[string]monitor.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = records
	return nil
}

func (s *mockStore) snapshot() (map[string]monitor.Record, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, s.saves
}

func monitorFailure() checker.ProbeResult {
	return checker.ProbeResult{ErrorKind: checker.KindConnectionError, ErrorText: "Connection Error"}
}

func TestAdd_Persists(t *testing.T) {
	store := newMockStore()
	reg := registry.New(store, nil)

	m, err := reg.Add(context.Background(), "api", "https://api.example.com", 30*time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if m.Name() != "api" || m.Interval() != 30*time.Second || m.Timeout() != 5*time.Second {
		t.Errorf("unexpected monitor %q interval=%v timeout=%v", m.Name(), m.Interval(), m.Timeout())
	}

	records, saves := store.snapshot()
	if saves != 1 {
		t.Errorf("expected 1 save, got %d", saves)
	}
	want := monitor.Record{Name: "api", URL: "https://api.example.com", CheckIntervalSeconds: 30, TimeoutSeconds: 5, IsUp: true}
	if records["api"] != want {
		t.Errorf("expected stored %+v, got %+v", want, records["api"])
	}
}

func TestAdd_Defaults(t *testing.T) {
	reg := registry.New(nil, nil)
	m, err := reg.Add(context.Background(), "api", "https://api.example.com", 0, 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if m.Interval() != monitor.DefaultInterval {
		t.Errorf("expected default interval, got %v", m.Interval())
	}
	if m.Timeout() != monitor.DefaultTimeout {
		t.Errorf("expected default timeout, got %v", m.Timeout())
	}
}

func TestAdd_DuplicateName(t *testing.T) {
	store := newMockStore()
	reg := registry.New(store, nil)
	ctx := context.Background()

	reg.Add(ctx, "api", "https://a.example.com", 0, 0)
	_, err := reg.Add(ctx, "api", "https://b.example.com", 0, 0)
	if !errors.Is(err, registry.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	m, _ := reg.Get("api")
	if m.URL() != "https://a.example.com" {
		t.Errorf("expected original monitor untouched, got %q", m.URL())
	}
	if _, saves := store.snapshot(); saves != 1 {
		t.Errorf("expected rejected add not to persist, got %d saves", saves)
	}
}

func TestAdd_InvalidURL(t *testing.T) {
	reg := registry.New(newMockStore(), nil)
	for _, raw := range []string{"not-a-url", "", "example.com", "http://"} {
		_, err := reg.Add(context.Background(), "x", raw, 0, 0)
		if !errors.Is(err, registry.ErrInvalidURL) {
			t.Errorf("url %q: expected ErrInvalidURL, got %v", raw, err)
		}
	}
	if reg.Len() != 0 {
		t.Errorf("expected registry unchanged, got %d monitors", reg.Len())
	}
}

func TestValidate_DoesNotRegister(t *testing.T) {
	store := newMockStore()
	reg := registry.New(store, nil)
	if err := reg.Validate("api", "https://api.example.com", time.Minute, time.Second); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
	if err := reg.Validate("api", "/healthz", 0, 0); !errors.Is(err, registry.ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
	if err := reg.Validate("api", "https://api.example.com", 0, time.Millisecond); !errors.Is(err, registry.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("expected registry unchanged, got %d monitors", reg.Len())
	}
}

func TestAdd_InvalidConfig(t *testing.T) {
	reg := registry.New(nil, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		mon      string
		interval time.Duration
		timeout  time.Duration
	}{
		{"empty name", "  ", 0, 0},
		{"negative interval", "a", -time.Second, 0},
		{"negative timeout", "a", 0, -time.Second},
		{"sub-second interval", "a", 500 * time.Millisecond, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Add(ctx, tt.mon, "https://example.com", tt.interval, tt.timeout)
			if !errors.Is(err, registry.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestAdd_PersistFailureKeepsMonitor(t *testing.T) {
	store := newMockStore()
	store.saveErr = errors.New("disk full")
	reg := registry.New(store, nil)

	m, err := reg.Add(context.Background(), "api", "https://api.example.com", 0, 0)
	if !errors.Is(err, registry.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if m == nil {
		t.Fatal("expected monitor to be returned alongside persist error")
	}
	if _, err := reg.Get("api"); err != nil {
		t.Errorf("expected monitor to remain registered, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	store := newMockStore()
	reg := registry.New(store, nil)
	ctx := context.Background()

	reg.Add(ctx, "api", "https://api.example.com", 0, 0)
	reg.Add(ctx, "web", "https://example.com", 0, 0)

	if err := reg.Remove(ctx, "api"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := reg.Get("api"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	records, _ := store.snapshot()
	if _, ok := records["api"]; ok {
		t.Error("expected removed monitor to be gone from store")
	}
	if _, ok := records["web"]; !ok {
		t.Error("expected remaining monitor to stay in store")
	}
}

func TestRemove_NotFound(t *testing.T) {
	store := newMockStore()
	reg := registry.New(store, nil)
	err := reg.Remove(context.Background(), "ghost")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, saves := store.snapshot(); saves != 0 {
		t.Errorf("expected no save, got %d", saves)
	}
}

func TestList_SortedByName(t *testing.T) {
	reg := registry.New(nil, nil)
	ctx := context.Background()
	for _, name := range []string{"web", "api", "db"} {
		reg.Add(ctx, name, "https://"+name+".example.com", 0, 0)
	}

	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 monitors, got %d", len(list))
	}
	want := []string{"api", "db", "web"}
	for i, m := range list {
		if m.Name() != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], m.Name())
		}
	}
}

func TestLoad_RestoresRecords(t *testing.T) {
	store := newMockStore()
	store.records = map[string]monitor.Record{
		"api": {Name: "api", URL: "https://api.example.com", CheckIntervalSeconds: 120, TimeoutSeconds: 3, IsUp: false},
		"bad": {Name: "bad", URL: "not-a-url", CheckIntervalSeconds: 60, TimeoutSeconds: 10, IsUp: true},
	}
	reg := registry.New(store, nil)

	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 valid monitor, got %d", reg.Len())
	}
	m, err := reg.Get("api")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	snap := m.Snapshot()
	if snap.IsUp {
		t.Error("expected restored down state")
	}
	if snap.Interval != 120*time.Second || snap.Timeout != 3*time.Second {
		t.Errorf("unexpected interval=%v timeout=%v", snap.Interval, snap.Timeout)
	}
	if !snap.LastCheckedAt.IsZero() {
		t.Error("expected restored monitor to be due immediately")
	}
}

func TestLoad_Error(t *testing.T) {
	store := newMockStore()
	store.loadErr = errors.New("corrupt")
	reg := registry.New(store, nil)
	if err := reg.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
}

func TestLoad_EmptyStore(t *testing.T) {
	reg := registry.New(newMockStore(), nil)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Len())
	}
}

func TestSave_ReflectsStateChanges(t *testing.T) {
	store := newMockStore()
	reg := registry.New(store, nil)
	ctx := context.Background()

	m, _ := reg.Add(ctx, "api", "https://api.example.com", 0, 0)
	now := time.Now()
	fail := monitorFailure()
	m.Apply(fail, now)
	m.Apply(fail, now.Add(time.Second))

	if err := reg.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	records, _ := store.snapshot()
	if records["api"].IsUp {
		t.Error("expected persisted is_up=false after down transition")
	}
}

func TestConcurrentAdds(t *testing.T) {
	reg := registry.New(newMockStore(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Add(ctx, "same", "https://example.com", 0, 0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, registry.ErrDuplicateName) {
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful add, got %d", ok)
	}
}
