/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the crew planning frontend

ROUTE GROUPS:
  /api/workers/*    Worker status, history, interruption, recovery
  /api/standback/*  Stand-back ledger
  /api/admin/*      Manual rotation runs

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/rotationd/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Worker routes
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
			r.Get("/{id}", h.GetWorker)
			r.Get("/{id}/status", h.GetWorkerStatus)
			r.Get("/{id}/history", h.GetWorkerHistory)
			r.Post("/{id}/interrupt", h.InterruptWorker)
			r.Post("/{id}/recover", h.RecoverWorker)
			r.Put("/{id}/regime", h.ChangeRegime)
		})

		// Stand-back routes
		r.Route("/standback", func(r chi.Router) {
			r.Get("/", h.ListStandBack)
			r.Get("/{id}", h.GetStandBack)
			r.Post("/{id}/repayments", h.ApplyRepayment)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rotation/run", h.TriggerRotationRun)
		})
	})

	return r
}
