// Package server exposes the monitor registry, scheduler and dashboard over
// a JSON HTTP API.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/hazz-dev/uptimewatch/internal/dashboard"
	"github.com/hazz-dev/uptimewatch/internal/monitor"
	"github.com/hazz-dev/uptimewatch/internal/scheduler"
	"github.com/hazz-dev/uptimewatch/internal/storage"
)

// Registry is the monitor collection the API manages.
type Registry interface {
	Add(ctx context.Context, name, url string, interval, timeout time.Duration) (*monitor.Monitor, error)
	Remove(ctx context.Context, name string) error
	Get(name string) (*monitor.Monitor, error)
	List() []*monitor.Monitor
}

// Scheduler runs probes on demand and can be paused.
type Scheduler interface {
	Probe(ctx context.Context, m *monitor.Monitor) monitor.Snapshot
	ProbeNow(ctx context.Context, name string) (monitor.Snapshot, error)
	Pause()
	Resume()
	Status() scheduler.Status
}

// HistoryStore serves the persisted check log.
type HistoryStore interface {
	History(ctx context.Context, name string, limit, offset int) ([]storage.Check, int, error)
}

// Options wires the server's collaborators. Store and OnRemove are optional.
type Options struct {
	Registry    Registry
	Scheduler   Scheduler
	Store       HistoryStore
	Aggregator  *dashboard.Aggregator
	CORSOrigins []string
	// OnRemove runs after a monitor is removed, e.g. to drop cached state.
	OnRemove func(ctx context.Context, name string)
}

// Server holds the chi router and its dependencies.
type Server struct {
	registry Registry
	sched    Scheduler
	store    HistoryStore
	agg      *dashboard.Aggregator
	onRemove func(ctx context.Context, name string)
	origins  []string
	upgrader websocket.Upgrader
	router   chi.Router
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a new Server and registers all routes.
func New(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry: opts.Registry,
		sched:    opts.Scheduler,
		store:    opts.Store,
		agg:      opts.Aggregator,
		onRemove: opts.OnRemove,
		origins:  opts.CORSOrigins,
		router:   chi.NewRouter(),
		now:      time.Now,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.corsHandler())
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/monitors", func(r chi.Router) {
		r.Get("/", s.handleListMonitors)
		r.Post("/", s.handleAddMonitor)
		r.Get("/{name}", s.handleGetMonitor)
		r.Delete("/{name}", s.handleRemoveMonitor)
		r.Post("/{name}/check", s.handleProbeMonitor)
		r.Get("/{name}/history", s.handleMonitorHistory)
	})

	r.Get("/api/dashboard", s.handleDashboard)
	r.Get("/api/dashboard.txt", s.handleDashboardText)
	r.Get("/api/dashboard/ws", s.handleDashboardWS)

	r.Get("/api/scheduler", s.handleSchedulerStatus)
	r.Post("/api/scheduler/pause", s.handleSchedulerPause)
	r.Post("/api/scheduler/resume", s.handleSchedulerResume)
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	if len(s.origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.origins) == 0 {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
