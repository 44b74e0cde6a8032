package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(
		s.requestIDMiddleware,
		s.accessLogMiddleware,
		s.recoveryMiddleware,
		s.corsMiddleware,
		middleware.RequestSize(maxRequestBodySize),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEntity)
				r.Get("/history", s.handleGetHistory)
				r.Post("/commands", s.handleCommand)
				r.Post("/preset", s.handleApplyPreset)
				r.Put("/modes", s.handleReplaceModes)
			})
		})

		r.Route("/mode-sets", func(r chi.Router) {
			r.Get("/", s.handleListModeSets)
			r.Get("/active", s.handleListModeSets)
			r.Put("/active", s.handleActivateModeSet)
		})

		r.Get("/presets", s.handleListPresets)

		r.Route("/controller", func(r chi.Router) {
			r.Get("/", s.handleGetController)
			r.Post("/refresh", s.handleRefresh)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the service health. Without a health source it only
// reports that the API is up.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": s.version,
		})
		return
	}
	writeJSON(w, http.StatusOK, s.health.Health())
}
