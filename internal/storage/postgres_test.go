package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
	"github.com/hazz-dev/uptimewatch/internal/storage"
)

// These tests run only when UPTIMEWATCH_TEST_POSTGRES points at a disposable database.
func openTestPostgres(t *testing.T) *storage.Postgres {
	t.Helper()
	dsn := os.Getenv("UPTIMEWATCH_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("UPTIMEWATCH_TEST_POSTGRES not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pg, err := storage.OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { pg.Close() })
	return pg
}

func TestOpenPostgres_BadDSN(t *testing.T) {
	_, err := storage.OpenPostgres(context.Background(), "postgres://%zz")
	if err == nil {
		t.Fatal("expected error for malformed dsn")
	}
}

func TestPostgres_SaveLoadAndChecks(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()

	in := map[string]monitor.Record{
		"api": {Name: "api", URL: "https://api.example.com", CheckIntervalSeconds: 60, TimeoutSeconds: 10, IsUp: false},
	}
	if err := pg.SaveAll(ctx, in); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	out, err := pg.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if out["api"] != in["api"] {
		t.Errorf("expected %+v, got %+v", in["api"], out["api"])
	}

	now := time.Now().UTC()
	if err := pg.InsertCheck(ctx, "api", monitor.StatusRecord{Timestamp: now, Up: true, ResponseTimeMs: 12}); err != nil {
		t.Fatalf("InsertCheck: %v", err)
	}
	latest, err := pg.LatestCheck(ctx, "api")
	if err != nil {
		t.Fatalf("LatestCheck: %v", err)
	}
	if latest == nil || latest.Status != "up" {
		t.Errorf("unexpected latest check %+v", latest)
	}
	if _, err := pg.PruneChecks(ctx, now.Add(time.Hour)); err != nil {
		t.Fatalf("PruneChecks: %v", err)
	}
}
