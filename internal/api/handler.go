package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"repo-catalog-sync/internal/cache"
	custom_errors "repo-catalog-sync/internal/errors"
	"repo-catalog-sync/internal/github"
	"repo-catalog-sync/internal/model"
	"repo-catalog-sync/internal/syncer"
)

// Engine is the sync engine surface exposed over HTTP.
type Engine interface {
	ListAll(ctx context.Context) ([]model.Repository, error)
	ListNames(ctx context.Context) ([]string, error)
	Sync(ctx context.Context, batchSize int) (*model.SyncResult, error)
	SyncOne(ctx context.Context, name string) (*model.SyncOneResult, error)
	ClearCache()
	CacheStats() cache.Stats
}

// RateLimiter reports the source host's remaining API quota.
type RateLimiter interface {
	RateLimit(ctx context.Context) (*github.RateLimits, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the container for API dependencies.
type Handler struct {
	engine      Engine
	rateLimiter RateLimiter
	db          Pinger
	batchSize   int
	logger      *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
// batchSize is used by full syncs that do not pass batch_size.
func NewRouter(engine Engine, rateLimiter RateLimiter, db Pinger, batchSize int, logger *slog.Logger) http.Handler {
	if batchSize < 1 || batchSize > syncer.MaxBatchSize {
		batchSize = syncer.DefaultBatchSize
	}
	h := &Handler{
		engine:      engine,
		rateLimiter: rateLimiter,
		db:          db,
		batchSize:   batchSize,
		logger:      logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/repositories", h.listRepositories)
			r.Get("/repositories/names", h.listRepositoryNames)
			r.Post("/repositories/sync/{name}", h.syncRepository)
			r.Delete("/cache", h.clearCache)
			r.Get("/cache/stats", h.cacheStats)
			r.Get("/rate-limit", h.rateLimit)
		})
		// A full sync may enrich hundreds of repositories.
		r.With(middleware.Timeout(15*time.Minute)).Post("/repositories/sync", h.syncRepositories)
	})

	return r
}

// healthCheck reports database connectivity.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("Health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "unhealthy",
			"database": map[string]string{"status": "unhealthy", "error": err.Error()},
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"database": map[string]string{"status": "healthy"},
	})
}

// listRepositories returns every stored repository.
// GET /v1/repositories
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.engine.ListAll(r.Context())
	if err != nil {
		h.respondWithEngineError(w, "Failed to list repositories", err)
		return
	}
	respondWithJSON(w, http.StatusOK, model.RepositoryCollection{Count: len(repos), Repositories: repos})
}

// listRepositoryNames returns stored repository names.
// GET /v1/repositories/names
func (h *Handler) listRepositoryNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.engine.ListNames(r.Context())
	if err != nil {
		h.respondWithEngineError(w, "Failed to list repository names", err)
		return
	}
	respondWithJSON(w, http.StatusOK, names)
}

// syncRepositories reconciles the store with the source host.
// POST /v1/repositories/sync?batch_size=N
func (h *Handler) syncRepositories(w http.ResponseWriter, r *http.Request) {
	batchSize := h.batchSize
	if v := r.URL.Query().Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > syncer.MaxBatchSize {
			respondWithError(w, http.StatusBadRequest, "Invalid 'batch_size' parameter. Must be an integer between 1 and 50.")
			return
		}
		batchSize = n
	}

	result, err := h.engine.Sync(r.Context(), batchSize)
	if err != nil {
		h.respondWithEngineError(w, "Repository sync failed", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

// syncRepository refreshes a single repository.
// POST /v1/repositories/sync/{name}
func (h *Handler) syncRepository(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	result, err := h.engine.SyncOne(r.Context(), name)
	if err != nil {
		h.respondWithEngineError(w, "Single repository sync failed", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// clearCache drops every cached source-host response.
// DELETE /v1/cache
func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearCache()
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}

// cacheStats reports the response cache contents.
// GET /v1/cache/stats
func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.engine.CacheStats())
}

// rateLimit reports the source host's remaining API quota.
// GET /v1/rate-limit
func (h *Handler) rateLimit(w http.ResponseWriter, r *http.Request) {
	limits, err := h.rateLimiter.RateLimit(r.Context())
	if err != nil {
		h.respondWithEngineError(w, "Failed to fetch rate limits", err)
		return
	}
	respondWithJSON(w, http.StatusOK, limits)
}

func (h *Handler) respondWithEngineError(w http.ResponseWriter, msg string, err error) {
	status := custom_errors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	} else {
		h.logger.Warn(msg, "error", err)
	}
	respondWithError(w, status, err.Error())
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
