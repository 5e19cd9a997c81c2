package worker

import (
	"context"

	"github.com/vytor/lexisync/internal/models"
)

// SyncUpJob uploads one mutated entry. It is a single attempt; OnDone
// receives the outcome either way.
type SyncUpJob struct {
	Uploader Uploader
	OwnerID  string
	Entry    models.WordEntry
	OnDone   func(error)
}

func (j *SyncUpJob) Name() string { return "sync_up" }

func (j *SyncUpJob) Run(ctx context.Context) error {
	err := j.Uploader.SyncUp(ctx, j.OwnerID, j.Entry)
	if j.OnDone != nil {
		j.OnDone(err)
	}
	return err
}

// RemoveJob deletes the remote copy of a locally deleted entry.
type RemoveJob struct {
	Uploader Uploader
	OwnerID  string
	EntryID  string
	OnDone   func(error)
}

func (j *RemoveJob) Name() string { return "remove_entry" }

func (j *RemoveJob) Run(ctx context.Context) error {
	err := j.Uploader.Remove(ctx, j.OwnerID, j.EntryID)
	if j.OnDone != nil {
		j.OnDone(err)
	}
	return err
}
