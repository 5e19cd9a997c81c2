package mirror

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/vytor/lexisync/internal/broadcast"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/repository"
)

// Store is a Mirror backed by a MirrorRepository. It fans every change out to
// the owner's subscribers. The device uses it directly when no remote URL is
// configured and Server exposes it over HTTP.
type Store struct {
	repo     repository.MirrorRepository
	validate *validator.Validate

	mu   sync.Mutex
	hubs map[string]*broadcast.Hub[[]models.EntryRecord]

	// pubMu orders list+publish so a stale snapshot never follows a newer one.
	pubMu sync.Mutex
}

func NewStore(repo repository.MirrorRepository) *Store {
	return &Store{
		repo:     repo,
		validate: validator.New(),
		hubs:     make(map[string]*broadcast.Hub[[]models.EntryRecord]),
	}
}

func (s *Store) FetchAll(ctx context.Context, ownerID string) ([]models.EntryRecord, error) {
	log := logger.FromContext(ctx).WithPrefix("mirror_store").WithField("owner", ownerID)
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	recs, err := s.repo.List(ctx, ownerID)
	if err != nil {
		log.WithError(err).Error("failed to list records")
		return nil, errors.NewRemoteUnavailableError("fetch", err)
	}
	log.Debug("fetched %d records", len(recs))
	return recs, nil
}

func (s *Store) Put(ctx context.Context, ownerID string, rec models.EntryRecord) error {
	log := logger.FromContext(ctx).WithPrefix("mirror_store").WithFields(map[string]any{
		"owner":    ownerID,
		"entry_id": rec.ID,
	})
	if err := checkOwner(ownerID); err != nil {
		return err
	}
	if err := s.validate.Struct(rec); err != nil {
		log.WithError(err).Warn("rejecting invalid record")
		return errors.NewRemoteRejectedError("invalid entry record", err)
	}
	if err := s.repo.Put(ctx, ownerID, rec); err != nil {
		log.WithError(err).Error("failed to store record")
		return errors.NewRemoteUnavailableError("put", err)
	}
	log.Debug("stored record")
	s.publish(ctx, ownerID)
	return nil
}

// Delete is idempotent: removing an absent record succeeds.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	log := logger.FromContext(ctx).WithPrefix("mirror_store").WithFields(map[string]any{
		"owner":    ownerID,
		"entry_id": id,
	})
	if err := checkOwner(ownerID); err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, ownerID, id)
	if err != nil {
		log.WithError(err).Error("failed to delete record")
		return errors.NewRemoteUnavailableError("delete", err)
	}
	if removed {
		log.Debug("deleted record")
		s.publish(ctx, ownerID)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, ownerID string, onSnapshot func([]models.EntryRecord)) (<-chan struct{}, error) {
	log := logger.FromContext(ctx).WithPrefix("mirror_store").WithField("owner", ownerID)
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}

	hub := s.hub(ownerID)

	// Publishes happen under pubMu, so nothing is missed between joining the
	// hub and reading the initial set. The hub's retained value is dropped;
	// only this subscriber gets the fresh set.
	s.pubMu.Lock()
	ch, cancel := hub.Subscribe()
	select {
	case <-ch:
	default:
	}
	recs, err := s.FetchAll(ctx, ownerID)
	s.pubMu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}
	log.Debug("subscription opened (%d subscribers)", hub.Len())

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		onSnapshot(recs)
		for {
			select {
			case <-ctx.Done():
				log.Debug("subscription closed")
				return
			case recs, ok := <-ch:
				if !ok {
					log.Debug("subscription ended by store shutdown")
					return
				}
				onSnapshot(recs)
			}
		}
	}()
	return done, nil
}

// Count returns the number of records stored for ownerID.
func (s *Store) Count(ctx context.Context, ownerID string) (int, error) {
	if err := checkOwner(ownerID); err != nil {
		return 0, err
	}
	n, err := s.repo.Count(ctx, ownerID)
	if err != nil {
		return 0, errors.NewRemoteUnavailableError("count", err)
	}
	return n, nil
}

// Close ends all subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, h := range s.hubs {
		h.Close()
		delete(s.hubs, owner)
	}
}

func (s *Store) hub(ownerID string) *broadcast.Hub[[]models.EntryRecord] {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[ownerID]
	if !ok {
		h = broadcast.New[[]models.EntryRecord]()
		s.hubs[ownerID] = h
	}
	return h
}

func (s *Store) publish(ctx context.Context, ownerID string) {
	s.mu.Lock()
	h, ok := s.hubs[ownerID]
	s.mu.Unlock()
	if !ok || h.Len() == 0 {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	recs, err := s.repo.List(ctx, ownerID)
	if err != nil {
		logger.FromContext(ctx).WithPrefix("mirror_store").WithError(err).
			Warn("failed to load snapshot for owner %s", ownerID)
		return
	}
	h.Publish(recs)
}

func checkOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return errors.NewRemoteRejectedError("owner id is required", nil)
	}
	return nil
}
