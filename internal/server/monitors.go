package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazz-dev/uptimewatch/internal/dashboard"
	"github.com/hazz-dev/uptimewatch/internal/monitor"
	"github.com/hazz-dev/uptimewatch/internal/registry"
	"github.com/hazz-dev/uptimewatch/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	detailHistory       = 5
)

type monitorView struct {
	Name                 string                 `json:"name"`
	URL                  string                 `json:"url"`
	Status               string                 `json:"status"`
	IntervalSeconds      float64                `json:"interval_seconds"`
	TimeoutSeconds       float64                `json:"timeout_seconds"`
	LastCheckedAt        *time.Time             `json:"last_checked_at"`
	LastCheckSucceeded   *bool                  `json:"last_check_succeeded"`
	LastUpAt             *time.Time             `json:"last_up_at"`
	DowntimeStartedAt    *time.Time             `json:"downtime_started_at"`
	ConsecutiveFailures  int                    `json:"consecutive_failures"`
	FailureThreshold     int                    `json:"failure_threshold"`
	TotalDowntimeSeconds float64                `json:"total_downtime_seconds"`
	AvgResponseMs        float64                `json:"avg_response_ms"`
	Uptime24h            float64                `json:"uptime_24h"`
	RecentHistory        []monitor.StatusRecord `json:"recent_history,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) toView(snap monitor.Snapshot, withHistory bool) monitorView {
	now := s.now()
	v := monitorView{
		Name:                 snap.Name,
		URL:                  snap.URL,
		Status:               "down",
		IntervalSeconds:      snap.Interval.Seconds(),
		TimeoutSeconds:       snap.Timeout.Seconds(),
		LastCheckedAt:        optionalTime(snap.LastCheckedAt),
		LastCheckSucceeded:   snap.LastCheckSucceeded,
		LastUpAt:             optionalTime(snap.LastUpAt),
		DowntimeStartedAt:    optionalTime(snap.DowntimeStartedAt),
		ConsecutiveFailures:  snap.ConsecutiveFailures,
		FailureThreshold:     snap.FailureThreshold,
		TotalDowntimeSeconds: snap.TotalDowntime.Seconds(),
		AvgResponseMs:        snap.AverageResponseTimeMs(),
		Uptime24h:            snap.UptimePercentage(dashboard.UptimeWindow, now),
	}
	if snap.IsUp {
		v.Status = "up"
	}
	if withHistory {
		v.RecentHistory = snap.RecentHistory(detailHistory)
	}
	return v
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors := s.registry.List()
	views := make([]monitorView, 0, len(monitors))
	for _, m := range monitors {
		views = append(views, s.toView(m.Snapshot(), false))
	}
	writeJSON(w, http.StatusOK, views)
}

type addRequest struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	IntervalSeconds int    `json:"interval_seconds"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

func (s *Server) handleAddMonitor(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IntervalSeconds < 0 || req.TimeoutSeconds < 0 {
		writeError(w, http.StatusBadRequest, "interval_seconds and timeout_seconds must not be negative")
		return
	}

	interval := time.Duration(req.IntervalSeconds) * time.Second
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	m, err := s.registry.Add(r.Context(), req.Name, req.URL, interval, timeout)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrPersist) && m != nil:
		s.logger.Warn("monitor added but not persisted", "monitor", req.Name, "error", err)
	default:
		s.writeRegistryError(w, err)
		return
	}

	snap := s.sched.Probe(r.Context(), m)
	writeJSON(w, http.StatusCreated, s.toView(snap, true))
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toView(m.Snapshot(), true))
}

func (s *Server) handleRemoveMonitor(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := s.registry.Remove(r.Context(), name)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrPersist):
		s.logger.Warn("monitor removed but not persisted", "monitor", name, "error", err)
	default:
		s.writeRegistryError(w, err)
		return
	}
	if s.onRemove != nil {
		s.onRemove(r.Context(), name)
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": name})
}

func (s *Server) handleProbeMonitor(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sched.ProbeNow(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toView(snap, true))
}

type historyPage struct {
	Monitor string          `json:"monitor"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Checks  []storage.Check `json:"checks"`
}

func (s *Server) handleMonitorHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, err := s.registry.Get(name)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}

	limit, offset := defaultHistoryLimit, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	page := historyPage{Monitor: name, Limit: limit, Offset: offset}
	if s.store == nil {
		page.Checks, page.Total = memoryHistory(m.Snapshot(), limit, offset)
		writeJSON(w, http.StatusOK, page)
		return
	}

	checks, total, err := s.store.History(r.Context(), name, limit, offset)
	if err != nil {
		s.logger.Error("failed to read history", "monitor", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if checks == nil {
		checks = []storage.Check{}
	}
	page.Checks, page.Total = checks, total
	writeJSON(w, http.StatusOK, page)
}

// memoryHistory pages the in-memory ring, newest first, when no check log
// is configured.
func memoryHistory(snap monitor.Snapshot, limit, offset int) ([]storage.Check, int) {
	total := len(snap.History)
	checks := []storage.Check{}
	for i := total - 1 - offset; i >= 0 && len(checks) < limit; i-- {
		rec := snap.History[i]
		status := "down"
		if rec.Up {
			status = "up"
		}
		checks = append(checks, storage.Check{
			Monitor:    snap.Name,
			Status:     status,
			ResponseMs: rec.ResponseTimeMs,
			Error:      rec.Error,
			CheckedAt:  rec.Timestamp,
		})
	}
	return checks, total
}

func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrDuplicateName):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrInvalidURL), errors.Is(err, registry.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("registry operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
