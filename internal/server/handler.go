package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syntrixbase/bundlesync/internal/backend"
	"github.com/syntrixbase/bundlesync/internal/cache"
	"github.com/syntrixbase/bundlesync/internal/reconciler"
	"github.com/syntrixbase/bundlesync/internal/search"
)

// DefaultRequestTimeout bounds requests that call the backend.
const DefaultRequestTimeout = 30 * time.Second

// Reconciler is the part of the orchestrator served over HTTP.
type Reconciler interface {
	Phase() reconciler.Phase
	View(all bool) []reconciler.Row
	Get(id string) (reconciler.Row, error)
	Refresh(ctx context.Context, id string) (cache.FetchResult, error)
	Search(ctx context.Context, query string) *search.Job
	SearchState() reconciler.SearchState
}

// Handler serves the bundle and search API.
type Handler struct {
	rec      Reconciler
	gatherer prometheus.Gatherer
	decoder  *schema.Decoder
}

// NewHandler creates a handler for rec. Metrics are served from gatherer
// when it is non-nil.
func NewHandler(rec Reconciler, gatherer prometheus.Gatherer) *Handler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Handler{rec: rec, gatherer: gatherer, decoder: decoder}
}

// Register installs the routes on s.
func (h *Handler) Register(s Service) {
	s.RegisterHTTPHandler("GET /healthz", http.HandlerFunc(h.handleHealth))
	if h.gatherer != nil {
		s.RegisterHTTPHandler("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	s.RegisterHTTPHandler("GET /v1/bundles", http.HandlerFunc(h.handleListBundles))
	s.RegisterHTTPHandler("GET /v1/bundles/{id}", http.HandlerFunc(h.handleGetBundle))
	s.RegisterHTTPHandler("POST /v1/bundles/{id}/refresh",
		TimeoutMiddleware(DefaultRequestTimeout)(http.HandlerFunc(h.handleRefreshBundle)))

	s.RegisterHTTPHandler("PUT /v1/search", http.HandlerFunc(h.handleSetSearch))
	s.RegisterHTTPHandler("GET /v1/search", http.HandlerFunc(h.handleGetSearch))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"phase":  h.rec.Phase().String(),
	})
}

type listQuery struct {
	All   bool `schema:"all"`
	Limit int  `schema:"limit"`
}

type listResponse struct {
	Rows  []reconciler.Row `json:"rows"`
	Total int              `json:"total"`
}

func (h *Handler) handleListBundles(w http.ResponseWriter, r *http.Request) {
	var q listQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if q.Limit < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must not be negative")
		return
	}

	rows := h.rec.View(q.All)
	resp := listResponse{Rows: rows, Total: len(rows)}
	if q.Limit > 0 && len(rows) > q.Limit {
		resp.Rows = rows[:q.Limit]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	row, err := h.rec.Get(r.PathValue("id"))
	if err != nil {
		writeCacheError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type refreshResponse struct {
	Outcome string         `json:"outcome"`
	Row     reconciler.Row `json:"row"`
}

func (h *Handler) handleRefreshBundle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.rec.Refresh(r.Context(), id)
	switch {
	case err == nil, cache.IsStale(err):
		// a stale result means a newer write already landed
	case backend.IsTransient(err):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, ErrCodeGatewayTimeout, err.Error())
		return
	default:
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
		return
	}
	if res.Outcome == cache.OutcomeRemoved {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Bundle was deleted")
		return
	}

	row, err := h.rec.Get(id)
	if err != nil {
		writeCacheError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Outcome: res.Outcome.String(), Row: row})
}

type searchQuery struct {
	Q    string `schema:"q"`
	Wait bool   `schema:"wait"`
}

func (h *Handler) handleSetSearch(w http.ResponseWriter, r *http.Request) {
	var q searchQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	job := h.rec.Search(r.Context(), q.Q)
	if q.Wait {
		// a canceled wait still reports the job as it stands
		_ = job.Wait(r.Context())
	}

	status := http.StatusAccepted
	select {
	case <-job.Done():
		status = http.StatusOK
	default:
	}
	writeJSON(w, status, job.Progress())
}

func (h *Handler) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rec.SearchState())
}

func writeCacheError(w http.ResponseWriter, err error) {
	if errors.Is(err, cache.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Bundle not found")
		return
	}
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "Internal server error")
}
