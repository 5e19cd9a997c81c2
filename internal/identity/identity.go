// Package identity models the account transitions reported by the identity
// provider and persists the identity the device currently acts as.
package identity

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/repository"
)

type Kind string

const (
	KindAnonymous     Kind = "anonymous"
	KindAuthenticated Kind = "authenticated"
	KindLinked        Kind = "linked"
)

// Event is one identity transition.
type Event struct {
	Kind  Kind   `json:"kind" validate:"oneof=anonymous authenticated linked"`
	ID    string `json:"id,omitempty" validate:"max=128"`
	OldID string `json:"old_id,omitempty" validate:"max=128"`
	NewID string `json:"new_id,omitempty" validate:"max=128"`
}

func Anonymous(id string) Event     { return Event{Kind: KindAnonymous, ID: id} }
func Authenticated(id string) Event { return Event{Kind: KindAuthenticated, ID: id} }
func Linked(oldID, newID string) Event {
	return Event{Kind: KindLinked, OldID: oldID, NewID: newID}
}

var validate = validator.New()

// Validate checks that the event names the ids its kind needs.
func (e Event) Validate() error {
	if err := validate.Struct(e); err != nil {
		return errors.NewValidationError("kind", "must be one of anonymous, authenticated, linked")
	}
	switch e.Kind {
	case KindLinked:
		if strings.TrimSpace(e.OldID) == "" || strings.TrimSpace(e.NewID) == "" {
			return errors.NewValidationError("old_id/new_id", "linked events need both ids")
		}
	default:
		if strings.TrimSpace(e.ID) == "" {
			return errors.NewValidationError("id", "required")
		}
	}
	return nil
}

// Target returns the identity the device acts as after the event.
func (e Event) Target() string {
	if e.Kind == KindLinked {
		return e.NewID
	}
	return e.ID
}

// NewAnonymous creates a fresh device-local anonymous identity.
func NewAnonymous(now time.Time) models.Identity {
	return models.Identity{ID: "anon-" + uuid.NewString(), UpdatedAt: now}
}

// Key is the blob key the current identity is stored under.
const Key = "identity"

// Store persists the current identity next to the entry blobs.
type Store struct {
	repo repository.BlobRepository
}

func NewStore(repo repository.BlobRepository) *Store {
	return &Store{repo: repo}
}

// Load returns the stored identity, or a zero Identity when none was saved.
func (s *Store) Load(ctx context.Context) (models.Identity, error) {
	data, err := s.repo.Get(ctx, Key)
	if err != nil {
		return models.Identity{}, err
	}
	if data == nil {
		return models.Identity{}, nil
	}
	var id models.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return models.Identity{}, errors.NewLocalCorruptDecodeError(Key, err)
	}
	return id, nil
}

func (s *Store) Save(ctx context.Context, id models.Identity) error {
	data, err := json.Marshal(id)
	if err == nil {
		err = s.repo.Put(ctx, Key, data)
	}
	if err != nil {
		logger.FromContext(ctx).WithPrefix("identity").WithError(err).Error("failed to persist identity")
		return errors.NewLocalPersistError(Key, err)
	}
	return nil
}
