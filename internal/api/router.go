package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// NewRouter builds the chi router. Health endpoints are unauthenticated and any
// request no route accepts, wrong method included, gets 404. The manual
// ingestion trigger is mounted only when adminToken is set, behind bearer
// auth and a per-IP limit of 10 requests per minute.
func NewRouter(handlers *Handlers, adminToken string, store, redis Pinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.NotFound)

	r.Get("/", handlers.Uptime)
	r.Get("/health", handlers.Health)
	r.Get("/readyz", ReadyHandlerFunc(store, redis, log))

	if adminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(10, time.Minute))
			r.Use(BearerAuth(adminToken))
			r.Post("/api/v1/ingest/run", handlers.RunIngest)
		})
	}

	return r
}

var _ http.Handler = (*chi.Mux)(nil)
