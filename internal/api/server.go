// Package api exposes the device engine over HTTP for a local UI.
package api

import (
	"context"
	"sync"
	"time"

	"github.com/vytor/lexisync/internal/engine"
	"github.com/vytor/lexisync/internal/session"
)

// Pinger is satisfied by *db.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	engine         *engine.Engine
	db             Pinger
	requestTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Queue
}

// NewServer builds the API over eng. db backs the readiness probe and may
// be nil.
func NewServer(eng *engine.Engine, db Pinger, requestTimeout time.Duration) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Server{
		engine:         eng,
		db:             db,
		requestTimeout: requestTimeout,
		sessions:       make(map[string]*session.Queue),
	}
}

func (s *Server) session(id string) (*session.Queue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.sessions[id]
	return q, ok
}

func (s *Server) putSession(q *session.Queue) {
	s.mu.Lock()
	s.sessions[q.ID()] = q
	s.mu.Unlock()
}

func (s *Server) dropSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}
