package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/repository"
)

type blobRepository struct {
	db *sql.DB
}

// NewBlobRepository creates a new BlobRepository implementation
func NewBlobRepository(db *sql.DB) repository.BlobRepository {
	return &blobRepository{db: db}
}

func (r *blobRepository) Get(ctx context.Context, key string) ([]byte, error) {
	log := logger.FromContext(ctx).WithPrefix("blob_repo")

	query, args, err := sqlBuilder.Select("value").From("blobs").Where(squirrel.Eq{"key": key}).ToSql()
	if err != nil {
		return nil, err
	}
	var value []byte
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("blob not found: key=%s", key)
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get blob %s: %v", key, err)
		return nil, err
	}
	return value, nil
}

func (r *blobRepository) Put(ctx context.Context, key string, value []byte) error {
	log := logger.FromContext(ctx).WithPrefix("blob_repo")
	log.Debug("putting blob: key=%s, size=%d", key, len(value))

	query, args, err := upsertBlob(key, value, time.Now().UTC()).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to put blob %s: %v", key, err)
		return err
	}
	return nil
}

func (r *blobRepository) Delete(ctx context.Context, key string) error {
	log := logger.FromContext(ctx).WithPrefix("blob_repo")
	log.Debug("deleting blob: key=%s", key)

	query, args, err := sqlBuilder.Delete("blobs").Where(squirrel.Eq{"key": key}).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to delete blob %s: %v", key, err)
		return err
	}
	return nil
}

func (r *blobRepository) List(ctx context.Context, prefix string) ([]repository.Blob, error) {
	log := logger.FromContext(ctx).WithPrefix("blob_repo")

	query, args, err := sqlBuilder.Select("key", "value", "updated_at").
		From("blobs").
		Where(keyHasPrefix("key", prefix)).
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list blobs: %v", err)
		return nil, err
	}
	defer rows.Close()

	var blobs []repository.Blob
	for rows.Next() {
		var b repository.Blob
		if err := rows.Scan(&b.Key, &b.Value, &b.UpdatedAt); err != nil {
			log.Error("failed to scan blob row: %v", err)
			return nil, err
		}
		blobs = append(blobs, b)
	}
	log.Debug("found %d blobs with prefix %q", len(blobs), prefix)
	return blobs, rows.Err()
}

func (r *blobRepository) ReplacePrefix(ctx context.Context, prefix string, blobs map[string][]byte) error {
	log := logger.FromContext(ctx).WithPrefix("blob_repo")
	log.Debug("replacing %d blobs under prefix %q", len(blobs), prefix)

	keys := make([]string, 0, len(blobs))
	for k := range blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	now := time.Now().UTC()

	return tx(ctx, r.db, func(tx *sql.Tx) error {
		query, args, err := sqlBuilder.Delete("blobs").Where(keyHasPrefix("key", prefix)).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.Error("failed to clear prefix %q: %v", prefix, err)
			return err
		}
		for _, k := range keys {
			query, args, err := upsertBlob(k, blobs[k], now).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				log.Error("failed to write blob %s: %v", k, err)
				return err
			}
		}
		return nil
	})
}

func upsertBlob(key string, value []byte, now time.Time) squirrel.InsertBuilder {
	return sqlBuilder.Insert("blobs").
		Columns("key", "value", "updated_at").
		Values(key, value, now).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at")
}
