package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
)

const streamKeepAlive = 25 * time.Second

type entryRequest struct {
	Original        string `json:"original"`
	Translation     string `json:"translation"`
	Transcription   string `json:"transcription"`
	ExampleSentence string `json:"example_sentence"`
	LanguagePair    string `json:"language_pair"`
}

func (e entryRequest) draft(id string) models.WordEntry {
	return models.WordEntry{
		ID:              id,
		Original:        e.Original,
		Translation:     e.Translation,
		Transcription:   e.Transcription,
		ExampleSentence: e.ExampleSentence,
		LanguagePair:    e.LanguagePair,
	}
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	filter := models.EntryFilter{LanguagePair: r.URL.Query().Get("language_pair")}
	entries, err := s.engine.Entries(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	entry, err := s.engine.Save(r.Context(), req.draft(""))
	if err != nil {
		handleError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Debug("created entry %s", entry.ID)
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.engine.Entry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if _, err := s.engine.Entry(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	entry, err := s.engine.Save(r.Context(), req.draft(id))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReviewEntry(w http.ResponseWriter, r *http.Request) {
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
	entry, err := s.engine.Review(r.Context(), chi.URLParam(r, "id"), quality)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleResetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.engine.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleEntryStream sends the full entry set as an "entries" event after
// every change, starting with the current set.
func (s *Server) handleEntryStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		handleError(w, r, errors.NewInternalError(fmt.Errorf("streaming unsupported")))
		return
	}

	updates, cancel := s.engine.ObserveEntries()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("entry stream closed by client")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case entries, ok := <-updates:
			if !ok {
				log.Debug("entry stream ended")
				return
			}
			data, err := json.Marshal(map[string]any{"entries": entries})
			if err != nil {
				log.WithError(err).Error("failed to encode entries")
				continue
			}
			fmt.Fprintf(w, "event: entries\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
