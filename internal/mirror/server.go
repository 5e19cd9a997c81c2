package mirror

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
)

const keepAliveInterval = 25 * time.Second

// Server exposes a Store over HTTP for devices running a Client.
type Server struct {
	store *Store
}

func NewServer(store *Store) *Server {
	return &Server{store: store}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Route("/owners/{owner}", func(r chi.Router) {
		r.Get("/", s.handleOwner)
		r.Get("/entries", s.handleList)
		r.Put("/entries/{id}", s.handlePut)
		r.Delete("/entries/{id}", s.handleDelete)
		r.Get("/subscribe", s.handleSubscribe)
	})
	return r
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	n, err := s.store.Count(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "count": n})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.FetchAll(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entriesPayload{Entries: recs})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	owner, id := chi.URLParam(r, "owner"), chi.URLParam(r, "id")

	var rec models.EntryRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&rec); err != nil {
		writeError(w, r, errors.NewRemoteRejectedError("malformed entry record", err))
		return
	}
	if rec.ID != id {
		writeError(w, r, errors.NewRemoteRejectedError(fmt.Sprintf("record id %q does not match path id %q", rec.ID, id), nil))
		return
	}
	if err := s.store.Put(r.Context(), owner, rec); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	owner := chi.URLParam(r, "owner")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, errors.NewInternalError(fmt.Errorf("streaming unsupported")))
		return
	}

	// Single-slot mailbox: a newer snapshot replaces an unsent one.
	updates := make(chan []models.EntryRecord, 1)
	done, err := s.store.Subscribe(ctx, owner, func(recs []models.EntryRecord) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- recs:
		case <-ctx.Done():
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("subscriber disconnected")
			return
		case <-done:
			log.Debug("store closed, ending stream")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case recs := <-updates:
			data, err := json.Marshal(entriesPayload{Entries: recs})
			if err != nil {
				log.WithError(err).Error("failed to encode snapshot")
				continue
			}
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.Default().WithPrefix("mirror").WithFields(map[string]any{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(logger.NewContext(r.Context(), log)))
		log.WithFields(map[string]any{
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request completed")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.NewInternalError(err)
	}
	log := logger.FromContext(r.Context())
	if appErr.Status >= 500 {
		log.Error("mirror error: %v", appErr)
	} else {
		log.Warn("mirror request refused: %v", appErr)
	}
	writeJSON(w, appErr.Status, map[string]any{
		"error": map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}
