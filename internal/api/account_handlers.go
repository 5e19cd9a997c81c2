package api

import (
	"net/http"

	"github.com/vytor/lexisync/internal/identity"
)

func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := s.engine.Identity(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// handleIdentityEvent applies an identity provider transition. Remote
// failures during the follow-up reconciliation are part of the report.
func (s *Server) handleIdentityEvent(w http.ResponseWriter, r *http.Request) {
	var ev identity.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		handleError(w, r, err)
		return
	}
	report, err := s.engine.HandleIdentity(r.Context(), ev)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Sync(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Stats(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
