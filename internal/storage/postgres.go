package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS monitors (
    name                   TEXT    PRIMARY KEY,
    url                    TEXT    NOT NULL,
    check_interval_seconds INTEGER NOT NULL,
    timeout_seconds        INTEGER NOT NULL,
    is_up                  BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS checks (
    id          BIGSERIAL PRIMARY KEY,
    monitor     TEXT             NOT NULL,
    status      TEXT             NOT NULL CHECK(status IN ('up', 'down')),
    response_ms DOUBLE PRECISION NOT NULL,
    error       TEXT             NOT NULL DEFAULT '',
    checked_at  TIMESTAMPTZ      NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_monitor_checked ON checks(monitor, checked_at DESC);
`

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	cfg.MaxConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) LoadAll(ctx context.Context) (map[string]monitor.Record, error) {
	rows, err := p.pool.Query(ctx,
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

func (p *Postgres) SaveAll(ctx context.Context, records map[string]monitor.Record) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM monitors`); err != nil {
		return fmt.Errorf("clearing monitors: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(
			`INSERT INTO monitors (name, url, check_interval_seconds, timeout_seconds, is_up) VALUES ($1, $2, $3, $4, $5)`,
			r.Name, r.URL, r.CheckIntervalSeconds, r.TimeoutSeconds, r.IsUp,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving monitors: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing monitors: %w", err)
	}
	return nil
}

func (p *Postgres) InsertCheck(ctx context.Context, name string, r monitor.StatusRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO checks (monitor, status, response_ms, error, checked_at) VALUES ($1, $2, $3, $4, $5)`,
		name, statusText(r.Up), r.ResponseTimeMs, r.Error, r.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting check for %q: %w", name, err)
	}
	return nil
}

func (p *Postgres) LatestCheck(ctx context.Context, name string) (*Check, error) {
	var c Check
	err := p.pool.QueryRow(ctx,
		`SELECT id, monitor, status, response_ms, error, checked_at FROM checks WHERE monitor = $1 ORDER BY checked_at DESC, id DESC LIMIT 1`,
		name,
	).Scan(&c.ID, &c.Monitor, &c.Status, &c.ResponseMs, &c.Error, &c.CheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest check for %q: %w", name, err)
	}
	return &c, nil
}

func (p *Postgres) History(ctx context.Context, name string, limit, offset int) ([]Check, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM checks WHERE monitor = $1`, name).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting checks for %q: %w", name, err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, monitor, status, response_ms, error, checked_at FROM checks WHERE monitor = $1 ORDER BY checked_at DESC, id DESC LIMIT $2 OFFSET $3`,
		name, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", name, err)
	}
	checks, err := collectChecks(rows)
	if err != nil {
		return nil, 0, err
	}
	return checks, total, nil
}

func (p *Postgres) AllLatest(ctx context.Context) ([]Check, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT ON (monitor) id, monitor, status, response_ms, error, checked_at
		FROM checks
		ORDER BY monitor, checked_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying all latest: %w", err)
	}
	return collectChecks(rows)
}

func (p *Postgres) PruneChecks(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM checks WHERE checked_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning checks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectChecks(rows pgx.Rows) ([]Check, error) {
	defer rows.Close()
	var checks []Check
	for rows.Next() {
		var c Check
		if err := rows.Scan(&c.ID, &c.Monitor, &c.Status, &c.ResponseMs, &c.Error, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scanning check row: %w", err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating check rows: %w", err)
	}
	return checks, nil
}
