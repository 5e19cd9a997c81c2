package repository

import (
	"context"
	"time"

	"github.com/vytor/lexisync/internal/models"
)

// Blob is one key/value pair of durable device storage.
type Blob struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// BlobRepository is the key→blob persistence primitive behind the local cache.
type BlobRepository interface {
	// Get returns nil, nil when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Blob, error)
	// ReplacePrefix atomically swaps every blob under prefix for the given set.
	ReplacePrefix(ctx context.Context, prefix string, blobs map[string][]byte) error
}

// MirrorRepository stores remote mirror documents, one collection per owner.
type MirrorRepository interface {
	List(ctx context.Context, ownerID string) ([]models.EntryRecord, error)
	// Get returns nil, nil when the record is absent.
	Get(ctx context.Context, ownerID, id string) (*models.EntryRecord, error)
	Put(ctx context.Context, ownerID string, rec models.EntryRecord) error
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, ownerID, id string) (bool, error)
	Count(ctx context.Context, ownerID string) (int, error)
}
