package worker

import (
	"context"

	"github.com/vytor/lexisync/internal/models"
)

// Uploader pushes single entry changes to the remote mirror.
// This avoids import cycles by not importing the reconcile package
type Uploader interface {
	SyncUp(ctx context.Context, ownerID string, e models.WordEntry) error
	Remove(ctx context.Context, ownerID, id string) error
}
