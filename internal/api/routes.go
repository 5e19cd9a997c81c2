package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/entries/stream", s.handleEntryStream)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(s.requestTimeout))

		r.Get("/entries", s.handleListEntries)
		r.Post("/entries", s.handleCreateEntry)
		r.Get("/entries/{id}", s.handleGetEntry)
		r.Put("/entries/{id}", s.handleUpdateEntry)
		r.Delete("/entries/{id}", s.handleDeleteEntry)
		r.Post("/entries/{id}/review", s.handleReviewEntry)
		r.Post("/entries/{id}/reset", s.handleResetEntry)

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/advance", s.handleAdvanceSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)

		r.Get("/identity", s.handleGetIdentity)
		r.Post("/identity/events", s.handleIdentityEvent)
		r.Post("/sync", s.handleSync)
		r.Get("/stats", s.handleStats)
	})
	return r
}
