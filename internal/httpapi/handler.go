package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"fabricmap/core-go/internal/config"
	"fabricmap/core-go/internal/db"
	"fabricmap/core-go/internal/mapsync"
	"fabricmap/core-go/internal/metrics"
	"fabricmap/core-go/internal/sqlcgen"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// SyncService runs synchronizations. *mapsync.Scheduler satisfies this.
type SyncService interface {
	Trigger() bool
	Preview(ctx context.Context) (mapsync.Result, error)
	Last() (mapsync.Result, bool)
}

// RunQueries reads run history. *sqlcgen.Queries satisfies this.
type RunQueries interface {
	GetLatestSyncRun(ctx context.Context) (sqlcgen.SyncRun, error)
	GetSyncRun(ctx context.Context, id string) (sqlcgen.SyncRun, error)
	ListSyncRuns(ctx context.Context, limit int32) ([]sqlcgen.SyncRun, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log     zerolog.Logger
	db      pinger
	runs    RunQueries
	sync    SyncService
	metrics *metrics.Metrics
}

// NewHandler wires the admin API. pool may be nil when no run history is kept.
func NewHandler(log zerolog.Logger, pool *db.Pool, sync SyncService, m *metrics.Metrics) *Handler {
	h := &Handler{log: log, sync: sync, metrics: m}
	if pool != nil {
		h.db = pool
		h.runs = pool.Queries()
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/sync", func(r chi.Router) {
				r.Post("/", h.handleSync)
				r.Get("/runs", h.handleListRuns)
				r.Get("/runs/latest", h.handleLatestRun)
				r.Get("/runs/{id}", h.handleGetRun)
			})
			r.Get("/preview", h.handlePreview)
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

type syncRun struct {
	ID          string         `json:"id"`
	MapName     string         `json:"map_name"`
	Mode        string         `json:"mode"`
	Status      string         `json:"status"`
	Stats       map[string]any `json:"stats,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
}

func toSyncRun(r sqlcgen.SyncRun) syncRun {
	return syncRun{
		ID:          r.ID,
		MapName:     r.MapName,
		Mode:        r.Mode,
		Status:      r.Status,
		Stats:       r.Stats,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		LastError:   r.LastError,
	}
}

// fromResult describes an in-memory run when no history store is configured.
func fromResult(res mapsync.Result) syncRun {
	completed := res.CompletedAt
	run := syncRun{
		ID:      res.RunID,
		MapName: res.MapName,
		Mode:    string(res.Mode),
		Status:  res.Status,
		Stats: map[string]any{
			"devices": res.Devices,
			"links":   res.Links,
			"skipped": res.Skipped,
			"map_id":  res.MapID,
		},
		StartedAt:   res.StartedAt,
		CompletedAt: &completed,
	}
	if res.Error != "" {
		run.LastError = &res.Error
	}
	return run
}

func (h *Handler) ensureSync(w http.ResponseWriter) bool {
	if h.sync == nil {
		h.writeError(w, http.StatusServiceUnavailable, "sync_unavailable", "synchronization not configured", nil)
		return false
	}
	return true
}

func (h *Handler) ensureRuns(w http.ResponseWriter) bool {
	if h.runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02"
	}
	return false
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSync(w) {
		return
	}
	if !h.sync.Trigger() {
		h.writeError(w, http.StatusConflict, "sync_pending", "a sync run is already queued", nil)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.ensureRuns(w) {
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRunsLimit {
			h.writeError(w, http.StatusBadRequest, "validation_error", "limit must be between 1 and 200", nil)
			return
		}
		limit = n
	}

	rows, err := h.runs.ListSyncRuns(r.Context(), int32(limit))
	if err != nil {
		h.log.Error().Err(err).Msg("list sync runs failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list sync runs", nil)
		return
	}

	resp := make([]syncRun, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, toSyncRun(row))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		if h.sync != nil {
			if res, ok := h.sync.Last(); ok {
				h.writeJSON(w, http.StatusOK, fromResult(res))
				return
			}
		}
		h.writeError(w, http.StatusNotFound, "not_found", "no sync run yet", nil)
		return
	}

	run, err := h.runs.GetLatestSyncRun(r.Context())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "no sync run yet", nil)
			return
		}
		h.log.Error().Err(err).Msg("get latest sync run failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to get sync run", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, toSyncRun(run))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !h.ensureRuns(w) {
		return
	}

	id := chi.URLParam(r, "id")
	run, err := h.runs.GetSyncRun(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			h.writeError(w, http.StatusNotFound, "not_found", "sync run not found", nil)
		case isInvalidUUID(err):
			h.writeError(w, http.StatusBadRequest, "validation_error", "invalid run id", nil)
		default:
			h.log.Error().Err(err).Str("run_id", id).Msg("get sync run failed")
			h.writeError(w, http.StatusInternalServerError, "db_error", "failed to get sync run", nil)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, toSyncRun(run))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSync(w) {
		return
	}

	res, err := h.sync.Preview(r.Context())
	if err != nil {
		if errors.Is(err, config.ErrMalformed) {
			h.writeError(w, http.StatusUnprocessableEntity, "invalid_document", err.Error(), nil)
			return
		}
		h.log.Error().Err(err).Msg("preview failed")
		h.writeError(w, http.StatusBadGateway, "remote_error", "failed to build map preview", map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}
