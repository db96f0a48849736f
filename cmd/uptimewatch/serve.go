package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/uptimewatch/internal/alert"
	"github.com/hazz-dev/uptimewatch/internal/checker"
	"github.com/hazz-dev/uptimewatch/internal/config"
	"github.com/hazz-dev/uptimewatch/internal/dashboard"
	"github.com/hazz-dev/uptimewatch/internal/logging"
	"github.com/hazz-dev/uptimewatch/internal/registry"
	"github.com/hazz-dev/uptimewatch/internal/scheduler"
	"github.com/hazz-dev/uptimewatch/internal/server"
	"github.com/hazz-dev/uptimewatch/internal/statuscache"
)

const (
	janitorInterval = time.Hour
	cacheTimeout    = 2 * time.Second
	shutdownTimeout = 30 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the uptime monitor",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load config
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// 2. Build logger
	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)
	logger.Info("config loaded", "config", cfgFile, "monitors", len(cfg.Monitors))

	// 3. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 4. Open storage
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 5. Restore monitors and seed the configured ones
	reg := registry.New(db, logger)
	if err := reg.Load(ctx); err != nil {
		return err
	}
	seedMonitors(ctx, reg, cfg.Monitors, logger)

	// 6. Build alert destinations
	notifier, closers := buildNotifiers(cfg.Alerts, logger)
	for _, c := range closers {
		defer c.Close()
	}
	dispatcher := alert.NewDispatcher(notifier, cfg.Alerts.Cooldown.Duration, logger)

	// 7. Build scheduler
	probe := checker.NewHTTP(checker.HTTPOptions{
		UserAgent:    cfg.Probe.UserAgent,
		MaxRedirects: cfg.Probe.MaxRedirects,
	})
	sched := scheduler.New(reg, probe, scheduler.Options{
		Period:     cfg.Scheduler.Tick.Duration,
		Store:      db,
		Dispatcher: dispatcher,
	}, logger)

	// 8. Optional Redis status mirror
	var onRemove func(context.Context, string)
	if cfg.Redis.Enabled() {
		cache, err := statuscache.New(ctx, statuscache.Options{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, logger)
		if err != nil {
			logger.Error("redis status mirror disabled", "error", err)
		} else {
			defer cache.Close()
			sched.AddOnResult(cache.Hook(cacheTimeout))
			onRemove = func(ctx context.Context, name string) {
				if err := cache.Delete(ctx, name); err != nil {
					logger.Warn("removing mirrored status", "monitor", name, "error", err)
				}
			}
		}
	}

	// 9. Build API server and mount routes on a single mux
	agg := dashboard.NewAggregator(reg, cfg.Dashboard.Refresh.Duration, nil)
	apiServer := server.New(server.Options{
		Registry:    reg,
		Scheduler:   sched,
		Store:       db,
		Aggregator:  agg,
		CORSOrigins: cfg.Server.CORSOrigins,
		OnRemove:    onRemove,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Router())
	mux.Handle("/", dashboard.Handler())

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 10. Start scheduler and retention janitor
	sched.Start(ctx)
	logger.Info("scheduler started", "monitors", reg.Len(), "tick", cfg.Scheduler.Tick.Duration)

	var janitor sync.WaitGroup
	janitor.Add(1)
	go func() {
		defer janitor.Done()
		runJanitor(ctx, db, cfg.Storage.Retention.Duration, janitorInterval, logger)
	}()

	// 11. Start HTTP server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 12. Wait for signal or server error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server: %w", err)
		stop()
	}

	// 13. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}
	sched.Wait()
	janitor.Wait()
	dispatcher.Wait()
	if err := reg.Save(shutdownCtx); err != nil {
		logger.Error("final save", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

// seedMonitors adds the monitors listed in the config file. Monitors that
// already exist keep their persisted state.
func seedMonitors(ctx context.Context, reg *registry.Registry, seeds []config.Monitor, logger *slog.Logger) {
	for _, mc := range seeds {
		_, err := reg.Add(ctx, mc.Name, mc.URL, mc.Interval.Duration, mc.Timeout.Duration)
		switch {
		case err == nil:
			logger.Info("monitor seeded from config", "monitor", mc.Name, "url", mc.URL)
		case errors.Is(err, registry.ErrDuplicateName):
			logger.Debug("configured monitor already registered", "monitor", mc.Name)
		case errors.Is(err, registry.ErrPersist):
			logger.Warn("monitor seeded but not persisted", "monitor", mc.Name, "error", err)
		default:
			logger.Error("skipping configured monitor", "monitor", mc.Name, "error", err)
		}
	}
}

// buildNotifiers returns the enabled destinations and anything that must be
// closed on shutdown. Destinations that fail to initialize are logged and
// skipped.
func buildNotifiers(cfg config.AlertsConfig, logger *slog.Logger) (alert.Multi, []io.Closer) {
	var (
		multi   alert.Multi
		closers []io.Closer
	)
	if w := alert.NewWebhook(cfg.Webhook.URL, cfg.Mention); w != nil {
		multi = append(multi, w)
	}
	if s := alert.NewSlack(cfg.Slack.WebhookURL, cfg.Mention); s != nil {
		multi = append(multi, s)
	}
	tg, err := alert.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.ServerURL, cfg.Mention)
	switch {
	case err != nil:
		logger.Error("telegram alerts disabled", "error", err)
	case tg != nil:
		multi = append(multi, tg)
	}
	pub, err := alert.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey, cfg.Mention)
	switch {
	case err != nil:
		logger.Error("amqp alerts disabled", "error", err)
	case pub != nil:
		multi = append(multi, pub)
		closers = append(closers, pub)
	}
	logger.Info("alert destinations configured", "count", len(multi))
	return multi, closers
}

// pruner is the part of the store the janitor needs.
type pruner interface {
	PruneChecks(ctx context.Context, cutoff time.Time) (int64, error)
}

// runJanitor deletes check-log rows older than retention, once at start and
// then every interval, until ctx is cancelled.
func runJanitor(ctx context.Context, db pruner, retention, interval time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	prune := func() {
		cutoff := time.Now().Add(-retention)
		n, err := db.PruneChecks(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("pruning check history", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("pruned check history", "rows", n, "older_than", cutoff)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
