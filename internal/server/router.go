package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/askbase/askbase/internal/api"
	"github.com/askbase/askbase/internal/api/handlers"
	"github.com/askbase/askbase/internal/api/middleware"
	"github.com/askbase/askbase/internal/session"
)

type RouterConfig struct {
	Resolver        *session.Resolver
	DocumentHandler *handlers.DocumentHandler
	QueryHandler    *handlers.QueryHandler
	ModelsHandler   *handlers.ModelsHandler
	MaxBodyBytes    int64

	// HealthInfo is merged into the /healthz payload (environment, configured
	// model names).
	HealthInfo map[string]string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = 10 * 1024 * 1024
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"status": "ok"}
		for k, v := range cfg.HealthInfo {
			payload[k] = v
		}
		api.Success(w, http.StatusOK, payload)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ProviderScope(cfg.Resolver))

		r.Post("/query", cfg.QueryHandler.Query)
		r.Get("/stream", cfg.QueryHandler.Stream)

		r.Post("/upload", cfg.DocumentHandler.Upload)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/stats", cfg.DocumentHandler.Stats)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})

		r.Get("/models", cfg.ModelsHandler.List)
	})

	return r
}
