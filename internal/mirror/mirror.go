// Package mirror provides the remote document mirror the device reconciles
// against: an owner-scoped collection of entry records with push snapshots.
package mirror

import (
	"context"

	"github.com/vytor/lexisync/internal/models"
)

// Mirror is the remote document store contract.
//
// Every call is a single attempt. Failures are AppErrors coded
// REMOTE_UNAVAILABLE (transient) or REMOTE_REJECTED (permanent).
type Mirror interface {
	FetchAll(ctx context.Context, ownerID string) ([]models.EntryRecord, error)
	Put(ctx context.Context, ownerID string, rec models.EntryRecord) error
	Delete(ctx context.Context, ownerID, id string) error
	// Subscribe establishes a change subscription and returns once it is live.
	// onSnapshot receives the owner's full record set, first immediately and
	// then after every change. Calls are sequential. The returned channel is
	// closed once no more snapshots will be delivered: ctx was cancelled, the
	// stream dropped or the store shut down.
	Subscribe(ctx context.Context, ownerID string, onSnapshot func([]models.EntryRecord)) (<-chan struct{}, error)
}

var (
	_ Mirror = (*Store)(nil)
	_ Mirror = (*Client)(nil)
)
