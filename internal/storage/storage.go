// Package storage persists monitor records and the append-only check log.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

// Check is a stored probe outcome.
type Check struct {
	ID         int64     `json:"id"`
	Monitor    string    `json:"monitor"`
	Status     string    `json:"status"`
	ResponseMs float64   `json:"response_ms"`
	Error      string    `json:"error"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Store is implemented by every storage backend.
type Store interface {
	LoadAll(ctx context.Context) (map[string]monitor.Record, error)
	SaveAll(ctx context.Context, records map[string]monitor.Record) error
	InsertCheck(ctx context.Context, name string, r monitor.StatusRecord) error
	LatestCheck(ctx context.Context, name string) (*Check, error)
	History(ctx context.Context, name string, limit, offset int) ([]Check, int, error)
	AllLatest(ctx context.Context) ([]Check, error)
	PruneChecks(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*Postgres)(nil)
)

// OpenDriver opens the backend named by driver: "sqlite" (dsn is a file
// path) or "postgres" (dsn is a connection string).
func OpenDriver(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return Open(dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

func statusText(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
