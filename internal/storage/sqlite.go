package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS monitors (
    name                   TEXT    PRIMARY KEY,
    url                    TEXT    NOT NULL,
    check_interval_seconds INTEGER NOT NULL,
    timeout_seconds        INTEGER NOT NULL,
    is_up                  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS checks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    monitor     TEXT    NOT NULL,
    status      TEXT    NOT NULL CHECK(status IN ('up', 'down')),
    response_ms REAL    NOT NULL,
    error       TEXT    NOT NULL DEFAULT '',
    checked_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_monitor ON checks(monitor);
CREATE INDEX IF NOT EXISTS idx_checks_checked_at ON checks(checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_checks_monitor_checked ON checks(monitor, checked_at DESC);
`

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// An in-memory database lives only as long as its connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// LoadAll returns every persisted monitor keyed by name. An empty store
// yields an empty map.
func (d *DB) LoadAll(ctx context.Context) (map[string]monitor.Record, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name, url, check_interval_seconds, timeout_seconds, is_up FROM monitors ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying monitors: %w", err)
	}
	defer rows.Close()

	out := make(map[string]monitor.Record)
	for rows.Next() {
		var r monitor.Record
		if err := rows.Scan(&r.Name, &r.URL, &r.CheckIntervalSeconds, &r.TimeoutSeconds, &r.IsUp); err != nil {
			return nil, fmt.Errorf("scanning monitor row: %w", err)
		}
		out[r.Name] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating monitor rows: %w", err)
	}
	return out, nil
}

// SaveAll replaces the stored monitor set with records in one transaction.
func (d *DB) SaveAll(ctx context.Context, records map[string]monitor.Record) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM monitors`); err != nil {
		return fmt.Errorf("clearing monitors: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO monitors (name, url, check_interval_seconds, timeout_seconds, is_up) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing monitor insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Name, r.URL, r.CheckIntervalSeconds, r.TimeoutSeconds, r.IsUp); err != nil {
			return fmt.Errorf("saving monitor %q: %w", r.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing monitors: %w", err)
	}
	return nil
}

// InsertCheck appends one probe outcome to the check log.
func (d *DB) InsertCheck(ctx context.Context, name string, r monitor.StatusRecord) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO checks (monitor, status, response_ms, error, checked_at) VALUES (?, ?, ?, ?, ?)`,
		name,
		statusText(r.Up),
		r.ResponseTimeMs,
		r.Error,
		r.Timestamp.UTC().Format(checkedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting check for %q: %w", name, err)
	}
	return nil
}

// LatestCheck returns the most recent check for the monitor, or nil if none.
func (d *DB) LatestCheck(ctx context.Context, name string) (*Check, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, monitor, status, response_ms, error, checked_at FROM checks WHERE monitor = ? ORDER BY checked_at DESC, id DESC LIMIT 1`,
		name,
	)
	c, err := scanCheck(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest check for %q: %w", name, err)
	}
	return c, nil
}

// History returns paginated check history for a monitor, newest first,
// plus the total count.
func (d *DB) History(ctx context.Context, name string, limit, offset int) ([]Check, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM checks WHERE monitor = ?`, name,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting checks for %q: %w", name, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, monitor, status, response_ms, error, checked_at FROM checks WHERE monitor = ? ORDER BY checked_at DESC, id DESC LIMIT ? OFFSET ?`,
		name, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", name, err)
	}
	defer rows.Close()

	checks, err := scanChecks(rows)
	if err != nil {
		return nil, 0, err
	}
	return checks, total, nil
}

// AllLatest returns the most recent check for each monitor, ordered by name.
func (d *DB) AllLatest(ctx context.Context) ([]Check, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, monitor, status, response_ms, error, checked_at
		FROM checks
		WHERE id IN (
			SELECT MAX(id) FROM checks GROUP BY monitor
		)
		ORDER BY monitor
	`)
	if err != nil {
		return nil, fmt.Errorf("querying all latest: %w", err)
	}
	defer rows.Close()
	return scanChecks(rows)
}

// PruneChecks deletes checks recorded before cutoff and reports how many
// rows were removed.
func (d *DB) PruneChecks(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM checks WHERE checked_at < ?`,
		cutoff.UTC().Format(checkedAtLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning checks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// checkedAtLayout is fixed-width so that text order in checked_at matches
// time order, including within one second.
const checkedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

type scanner interface {
	Scan(dest ...any) error
}

func scanCheck(row scanner) (*Check, error) {
	var c Check
	var checkedAt string
	err := row.Scan(&c.ID, &c.Monitor, &c.Status, &c.ResponseMs, &c.Error, &checkedAt)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, checkedAt)
	if err != nil {
		// Fallback to RFC3339 without sub-second precision.
		t, err = time.Parse(time.RFC3339, checkedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing checked_at %q: %w", checkedAt, err)
		}
	}
	c.CheckedAt = t
	return &c, nil
}

func scanChecks(rows *sql.Rows) ([]Check, error) {
	var checks []Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning check row: %w", err)
		}
		checks = append(checks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating check rows: %w", err)
	}
	return checks, nil
}
