package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	if h.metrics != nil {
		router.Handle("/metrics", h.metrics)
	}

	router.Group(func(r chi.Router) {
		r.Use(h.withTraceID, withLogging)

		r.Get("/api/version", h.getVersion)
		r.Get("/api/status", h.getStatus)
		r.Get("/api/conflicts", h.getConflicts)
		r.Get("/api/failed", h.getFailed)
		r.Post("/api/sync", h.triggerSync)
	})

	router.MethodNotAllowed(CheckHTTPMethod(router))

	return router
}
