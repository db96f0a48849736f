package statuscache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/hazz-dev/uptimewatch/internal/checker"
	"github.com/hazz-dev/uptimewatch/internal/monitor"
	"github.com/hazz-dev/uptimewatch/internal/statuscache"
)

func TestStatusKey(t *testing.T) {
	if got := statuscache.StatusKey("uptimewatch:", "api"); got != "uptimewatch:status:api" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestFields(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := monitor.New("api", "https://api.example.com", 0, 0)
	m.Apply(checker.ProbeResult{Succeeded: true, HTTPStatus: 200, LatencyMs: 12.345}, t0)
	m.Apply(checker.ProbeResult{ErrorKind: checker.KindTimeout, ErrorText: "Timeout"}, t0.Add(time.Minute))

	f := statuscache.Fields(m.Snapshot())
	if f["name"] != "api" || f["is_up"] != "true" {
		t.Errorf("unexpected identity fields %v", f)
	}
	if f["avg_response_ms"] != "12.35" {
		t.Errorf("expected avg 12.35, got %v", f["avg_response_ms"])
	}
	if f["consecutive_failures"] != 1 {
		t.Errorf("expected 1 failure, got %v", f["consecutive_failures"])
	}
	if f["last_error"] != "Timeout" {
		t.Errorf("expected last error, got %v", f["last_error"])
	}
	if f["last_checked_at"] != t0.Add(time.Minute).Unix() {
		t.Errorf("unexpected last_checked_at %v", f["last_checked_at"])
	}
	if f["last_up_at"] != int64(0) {
		t.Errorf("expected unset last_up_at to be 0, got %v", f["last_up_at"])
	}
}

func TestNew_RequiresEndpoint(t *testing.T) {
	if _, err := statuscache.New(context.Background(), statuscache.Options{}, nil); err == nil {
		t.Fatal("expected error without url or addr")
	}
}

func TestNew_BadURL(t *testing.T) {
	if _, err := statuscache.New(context.Background(), statuscache.Options{URL: "http://not-redis"}, nil); err == nil {
		t.Fatal("expected error for non-redis url scheme")
	}
}

func TestNew_Unreachable(t *testing.T) {
	_, err := statuscache.New(context.Background(), statuscache.Options{Addr: "127.0.0.1:1"}, nil)
	if err == nil {
		t.Fatal("expected ping error for unreachable redis")
	}
}

// Runs only when UPTIMEWATCH_TEST_REDIS names a disposable Redis URL.
func TestCache_StoreGetDelete(t *testing.T) {
	url := os.Getenv("UPTIMEWATCH_TEST_REDIS")
	if url == "" {
		t.Skip("UPTIMEWATCH_TEST_REDIS not set")
	}
	ctx := context.Background()
	c, err := statuscache.New(ctx, statuscache.Options{URL: url, Prefix: "uptimewatch-test:"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	m := monitor.New("api", "https://api.example.com", 0, 0)
	m.Apply(checker.ProbeResult{Succeeded: true, HTTPStatus: 200, LatencyMs: 5}, time.Now())
	c.Hook(time.Second)(m.Snapshot())

	got, err := c.Get(ctx, "api")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["is_up"] != "true" {
		t.Errorf("expected is_up=true, got %v", got)
	}
	names, _ := c.Names(ctx)
	if len(names) == 0 {
		t.Error("expected api to be indexed")
	}

	if err := c.Delete(ctx, "api"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := c.Get(ctx, "api"); got != nil {
		t.Errorf("expected nil after delete, got %v", got)
	}
}
