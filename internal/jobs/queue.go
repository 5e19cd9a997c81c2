package jobs

import "github.com/vytor/lexisync/internal/models"

// SyncQueue provides an abstraction for enqueueing background sync jobs.
// done is called with the outcome once the job ran; it is not called when
// enqueueing fails.
type SyncQueue interface {
	EnqueueSyncUp(ownerID string, entry models.WordEntry, done func(error)) error
	EnqueueRemoval(ownerID, id string, done func(error)) error
}
