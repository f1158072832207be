package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/cloo-solutions/discover/internal/api"
	"github.com/cloo-solutions/discover/internal/api/handlers"
	"github.com/cloo-solutions/discover/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes int64 = 1 * 1024 * 1024

// Pinger reports whether the search cluster is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	// AuthValidator guards /api routes. Nil leaves them open.
	AuthValidator middleware.AuthValidator
	Cluster       Pinger
	ExportHandler *handlers.ExportHandler
	SearchHandler *handlers.SearchHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Cluster == nil {
			api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := cfg.Cluster.Ping(ctx); err != nil {
			log.Printf("readiness check failed: %v", err)
			api.Error(w, http.StatusServiceUnavailable, "search cluster unavailable")
			return
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/discover", func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.AuthValidator))

		r.Route("/export", func(r chi.Router) {
			r.Get("/", cfg.ExportHandler.Raw)
			r.Post("/", cfg.ExportHandler.Raw)
			r.Post("/csv", cfg.ExportHandler.CSV)
			r.Get("/state", cfg.ExportHandler.State)
			r.Get("/{id}", cfg.ExportHandler.Raw)
			r.Post("/{id}", cfg.ExportHandler.Raw)
		})

		r.Get("/exports", cfg.ExportHandler.ListLogs)
		r.Get("/exports/{id}", cfg.ExportHandler.GetLog)

		r.Post("/search", cfg.SearchHandler.Search)
	})

	return r
}
