package jobs

import (
	"fmt"

	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/worker"
)

// WorkerQueue implements SyncQueue on a worker pool. Enqueueing never blocks:
// when the pool is saturated the job is refused and the entry simply stays
// unsynced until the next reconciliation pass.
type WorkerQueue struct {
	pool     *worker.Pool
	uploader worker.Uploader
}

// NewWorkerQueue creates a new WorkerQueue implementation
func NewWorkerQueue(pool *worker.Pool, uploader worker.Uploader) *WorkerQueue {
	return &WorkerQueue{pool: pool, uploader: uploader}
}

func (q *WorkerQueue) EnqueueSyncUp(ownerID string, entry models.WordEntry, done func(error)) error {
	err := q.pool.TrySubmit(&worker.SyncUpJob{
		Uploader: q.uploader,
		OwnerID:  ownerID,
		Entry:    entry,
		OnDone:   done,
	})
	if err != nil {
		return fmt.Errorf("enqueue sync-up of %s (%d pending): %w", entry.ID, q.pool.QueueSize(), err)
	}
	return nil
}

func (q *WorkerQueue) EnqueueRemoval(ownerID, id string, done func(error)) error {
	err := q.pool.TrySubmit(&worker.RemoveJob{
		Uploader: q.uploader,
		OwnerID:  ownerID,
		EntryID:  id,
		OnDone:   done,
	})
	if err != nil {
		return fmt.Errorf("enqueue removal of %s (%d pending): %w", id, q.pool.QueueSize(), err)
	}
	return nil
}

var _ SyncQueue = (*WorkerQueue)(nil)
