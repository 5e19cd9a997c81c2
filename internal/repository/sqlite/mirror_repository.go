package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/repository"
)

type mirrorRepository struct {
	db *sql.DB
}

// NewMirrorRepository creates a new MirrorRepository implementation
func NewMirrorRepository(db *sql.DB) repository.MirrorRepository {
	return &mirrorRepository{db: db}
}

func (r *mirrorRepository) List(ctx context.Context, ownerID string) ([]models.EntryRecord, error) {
	log := logger.FromContext(ctx).WithPrefix("mirror_repo").WithField("owner", ownerID)

	query, args, err := sqlBuilder.Select("id", "payload").
		From("mirror_records").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("updated_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list records: %v", err)
		return nil, err
	}
	defer rows.Close()

	records := []models.EntryRecord{}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			log.Error("failed to scan record row: %v", err)
			return nil, err
		}
		var rec models.EntryRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			log.Warn("skipping undecodable record %s: %v", id, err)
			continue
		}
		records = append(records, rec)
	}
	log.Debug("found %d records", len(records))
	return records, rows.Err()
}

func (r *mirrorRepository) Get(ctx context.Context, ownerID, id string) (*models.EntryRecord, error) {
	log := logger.FromContext(ctx).WithPrefix("mirror_repo")

	query, args, err := sqlBuilder.Select("payload").
		From("mirror_records").
		Where(squirrel.Eq{"owner_id": ownerID, "id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var payload []byte
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("record not found: owner=%s, id=%s", ownerID, id)
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get record: %v", err)
		return nil, err
	}
	var rec models.EntryRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *mirrorRepository) Put(ctx context.Context, ownerID string, rec models.EntryRecord) error {
	log := logger.FromContext(ctx).WithPrefix("mirror_repo")
	log.Debug("putting record: owner=%s, id=%s", ownerID, rec.ID)

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	query, args, err := sqlBuilder.Insert("mirror_records").
		Columns("owner_id", "id", "original_key", "payload", "updated_at").
		Values(ownerID, rec.ID, models.OriginalKey(rec.Original), payload, time.Now().UTC()).
		Suffix(`ON CONFLICT(owner_id, id) DO UPDATE SET
    original_key = excluded.original_key,
    payload = excluded.payload,
    updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to put record: %v", err)
		return err
	}
	return nil
}

func (r *mirrorRepository) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	log := logger.FromContext(ctx).WithPrefix("mirror_repo")
	log.Debug("deleting record: owner=%s, id=%s", ownerID, id)

	query, args, err := sqlBuilder.Delete("mirror_records").
		Where(squirrel.Eq{"owner_id": ownerID, "id": id}).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to delete record: %v", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *mirrorRepository) Count(ctx context.Context, ownerID string) (int, error) {
	query, args, err := sqlBuilder.Select("COUNT(*)").
		From("mirror_records").
		Where(squirrel.Eq{"owner_id": ownerID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		logger.FromContext(ctx).WithPrefix("mirror_repo").Error("failed to count records: %v", err)
		return 0, err
	}
	return n, nil
}
