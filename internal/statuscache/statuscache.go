// Package statuscache mirrors the latest state of every monitor into Redis
// so other processes can read it without touching the API.
package statuscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

// DefaultPrefix namespaces every key written by the cache.
const DefaultPrefix = "uptimewatch:"

// Options configures the Redis connection. URL takes precedence over Addr.
type Options struct {
	URL      string
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Cache writes one hash per monitor and keeps a set of monitor names.
type Cache struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

// New connects and pings Redis. Pass nil logger to use the default logger.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}

	var ro *redis.Options
	switch {
	case opts.URL != "":
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		ro = parsed
	case opts.Addr != "":
		ro = &redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}
	default:
		return nil, errors.New("redis url or addr is required")
	}

	ro.DialTimeout = 5 * time.Second
	ro.ReadTimeout = 3 * time.Second
	ro.WriteTimeout = 3 * time.Second
	ro.PoolSize = 10
	ro.MinIdleConns = 2
	ro.ConnMaxIdleTime = 30 * time.Second

	rdb := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Cache{rdb: rdb, prefix: opts.Prefix, logger: logger}, nil
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// StatusKey is the hash key holding name's state.
func StatusKey(prefix, name string) string {
	return prefix + "status:" + name
}

func (c *Cache) indexKey() string {
	return c.prefix + "monitors"
}

// Fields converts a snapshot into the hash fields stored in Redis.
func Fields(s monitor.Snapshot) map[string]any {
	f := map[string]any{
		"name":                 s.Name,
		"url":                  s.URL,
		"is_up":                strconv.FormatBool(s.IsUp),
		"consecutive_failures": s.ConsecutiveFailures,
		"avg_response_ms":      strconv.FormatFloat(s.AverageResponseTimeMs(), 'f', 2, 64),
		"total_downtime_s":     int64(s.TotalDowntime / time.Second),
		"last_checked_at":      unixOrZero(s.LastCheckedAt),
		"last_up_at":           unixOrZero(s.LastUpAt),
		"downtime_started_at":  unixOrZero(s.DowntimeStartedAt),
		"last_error":           "",
	}
	if n := len(s.History); n > 0 {
		f["last_error"] = s.History[n-1].Error
	}
	return f
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Store writes the snapshot and indexes the monitor name.
func (c *Cache) Store(ctx context.Context, s monitor.Snapshot) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, StatusKey(c.prefix, s.Name), Fields(s))
		p.SAdd(ctx, c.indexKey(), s.Name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing status for %q: %w", s.Name, err)
	}
	return nil
}

// Get returns the stored hash for name, or nil when absent.
func (c *Cache) Get(ctx context.Context, name string) (map[string]string, error) {
	res, err := c.rdb.HGetAll(ctx, StatusKey(c.prefix, name)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(res) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading status for %q: %w", name, err)
	}
	return res, nil
}

// Names returns every indexed monitor name.
func (c *Cache) Names(ctx context.Context) ([]string, error) {
	names, err := c.rdb.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing cached monitors: %w", err)
	}
	return names, nil
}

// Delete removes name's hash and index entry.
func (c *Cache) Delete(ctx context.Context, name string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, StatusKey(c.prefix, name))
		p.SRem(ctx, c.indexKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting status for %q: %w", name, err)
	}
	return nil
}

// Hook returns a probe callback that mirrors each snapshot. Failures are
// logged and never block probing for longer than timeout.
func (c *Cache) Hook(timeout time.Duration) func(monitor.Snapshot) {
	return func(s monitor.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := c.Store(ctx, s); err != nil {
			c.logger.Warn("mirroring status to redis", "monitor", s.Name, "error", err)
		}
	}
}
