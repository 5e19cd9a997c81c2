package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/session"
)

type advanceResponse struct {
	Session session.View     `json:"session"`
	Entry   models.WordEntry `json:"entry"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	q, err := s.engine.BuildSession(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	s.putSession(q)
	logger.FromContext(r.Context()).Info("session %s started with %d entries", q.ID(), q.Remaining())
	writeJSON(w, http.StatusCreated, q.View())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, ok := s.session(id)
	if !ok {
		handleError(w, r, errors.NewNotFoundError("session", id))
		return
	}
	writeJSON(w, http.StatusOK, q.View())
}

func (s *Server) handleAdvanceSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, ok := s.session(id)
	if !ok {
		handleError(w, r, errors.NewNotFoundError("session", id))
		return
	}

	var req qualityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	quality, err := req.value()
	if err != nil {
		handleError(w, r, err)
		return
	}

	q, entry, err := s.engine.Advance(r.Context(), q, quality)
	if err != nil {
		handleError(w, r, err)
		return
	}
	view := q.View()
	writeJSON(w, http.StatusOK, advanceResponse{Session: view, Entry: entry})

	// A finished queue has nothing left to serve.
	if view.Done {
		s.dropSession(id)
		c := view.Counters
		logger.FromContext(r.Context()).Info("session %s complete: reviewed=%d learned=%d failed=%d",
			id, c.TotalReviewed, c.LearnedThisSession, c.FailedThisSession)
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.dropSession(id) {
		handleError(w, r, errors.NewNotFoundError("session", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
