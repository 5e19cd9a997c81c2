// Package reconcile keeps the local entry set consistent with the remote
// mirror: routine uploads, full reconciliation passes and identity
// migration.
package reconcile

import (
	"context"
	"time"

	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/mirror"
	"github.com/vytor/lexisync/internal/models"
)

// Report summarises one reconciliation or migration.
type Report struct {
	Owner             string `json:"owner"`
	Trigger           string `json:"trigger"`
	Fetched           int    `json:"fetched"`
	Rejected          int    `json:"rejected"`
	Uploaded          int    `json:"uploaded"`
	UploadFailures    int    `json:"upload_failures"`
	Migrated          int    `json:"migrated"`
	MigrationFailures int    `json:"migration_failures"`
	Entries           int    `json:"entries"`
	Error             string `json:"error,omitempty"`
}

// PassResult is the remote side of a full pass, ready to be merged into the
// local set on the owner goroutine.
type PassResult struct {
	Owner string
	// Remote holds the fetched records as synced entries.
	Remote []models.WordEntry
	// Uploaded holds the local snapshots that were stored remotely.
	Uploaded []models.WordEntry
	Report   Report
}

// Apply merges the pass into current, the local set as it is now. An
// uploaded entry counts as remote when its local copy did not change while
// the upload was in flight, or when that copy was marked synced meanwhile.
func (p *PassResult) Apply(current []models.WordEntry, pending map[string]bool) []models.WordEntry {
	byID := make(map[string]models.WordEntry, len(current))
	for _, e := range current {
		byID[e.ID] = e
	}

	remote := make([]models.WordEntry, 0, len(p.Remote)+len(p.Uploaded))
	remoteIDs := make(map[string]bool, len(p.Remote))
	for _, e := range p.Remote {
		remote = append(remote, e)
		remoteIDs[e.ID] = true
	}
	for _, u := range p.Uploaded {
		c, ok := byID[u.ID]
		switch {
		case !ok || remoteIDs[u.ID]:
		case c.SyncFlag:
			remote = append(remote, c)
		case c.Equal(u):
			synced := u.WithOwner(p.Owner)
			synced.SyncFlag = true
			remote = append(remote, synced)
		}
	}
	return Merge(current, remote, pending)
}

type Reconciler struct {
	mirror mirror.Mirror
	now    func() time.Time
}

func New(m mirror.Mirror, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{mirror: m, now: now}
}

// Fetch loads the owner's remote set as synced entries. Records that cannot
// become entries are skipped and counted.
func (r *Reconciler) Fetch(ctx context.Context, ownerID string) ([]models.WordEntry, int, error) {
	recs, err := r.mirror.FetchAll(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	entries, rejected := r.ToEntries(ctx, ownerID, recs)
	return entries, rejected, nil
}

// ToEntries converts records of ownerID, skipping unusable ones.
func (r *Reconciler) ToEntries(ctx context.Context, ownerID string, recs []models.EntryRecord) ([]models.WordEntry, int) {
	log := logger.FromContext(ctx).WithPrefix("reconciler").WithField("owner", ownerID)

	now := r.now()
	entries := make([]models.WordEntry, 0, len(recs))
	rejected := 0
	for _, rec := range recs {
		e, err := models.EntryFromRecord(rec, ownerID, now)
		if err != nil {
			rejected++
			log.WithError(errors.NewRemoteRejectedError("unusable remote record", err)).Warn("skipping record")
			continue
		}
		entries = append(entries, e)
	}
	return entries, rejected
}

// SyncUp uploads e under ownerID. It is a single attempt.
func (r *Reconciler) SyncUp(ctx context.Context, ownerID string, e models.WordEntry) error {
	log := logger.FromContext(ctx).WithPrefix("reconciler").WithFields(map[string]any{
		"owner":    ownerID,
		"entry_id": e.ID,
	})
	if err := r.mirror.Put(ctx, ownerID, models.RecordFromEntry(e, r.now())); err != nil {
		log.WithError(err).Warn("sync-up failed, entry stays unsynced")
		return err
	}
	log.Debug("entry uploaded")
	return nil
}

// Remove deletes the remote copy of id. It is a single attempt.
func (r *Reconciler) Remove(ctx context.Context, ownerID, id string) error {
	log := logger.FromContext(ctx).WithPrefix("reconciler").WithFields(map[string]any{
		"owner":    ownerID,
		"entry_id": id,
	})
	if err := r.mirror.Delete(ctx, ownerID, id); err != nil {
		log.WithError(err).Warn("remote delete failed")
		return err
	}
	return nil
}

// Subscribe forwards the owner's pushed snapshots as synced entries. The
// returned channel closes when delivery stops.
func (r *Reconciler) Subscribe(ctx context.Context, ownerID string, onSnapshot func(remote []models.WordEntry, rejected int)) (<-chan struct{}, error) {
	return r.mirror.Subscribe(ctx, ownerID, func(recs []models.EntryRecord) {
		entries, rejected := r.ToEntries(ctx, ownerID, recs)
		onSnapshot(entries, rejected)
	})
}

// Migrate copies every record owned by fromID to toID. Each copy is
// independent: failures are counted and logged, never rolled back. The
// source records are left in place.
func (r *Reconciler) Migrate(ctx context.Context, fromID, toID string) (Report, error) {
	log := logger.FromContext(ctx).WithPrefix("reconciler").WithFields(map[string]any{
		"from": fromID,
		"to":   toID,
	})
	report := Report{Owner: toID, Trigger: "migration"}
	if fromID == "" || toID == "" || fromID == toID {
		return report, nil
	}

	recs, err := r.mirror.FetchAll(ctx, fromID)
	if err != nil {
		log.WithError(err).Error("failed to fetch entries to migrate")
		report.Error = err.Error()
		return report, err
	}
	report.Fetched = len(recs)

	for _, rec := range recs {
		if err := r.mirror.Put(ctx, toID, rec); err != nil {
			report.MigrationFailures++
			log.WithError(err).WithField("entry_id", rec.ID).Warn("failed to migrate entry")
			continue
		}
		report.Migrated++
	}
	log.Info("migrated %d of %d entries", report.Migrated, len(recs))
	return report, nil
}

// Pass runs the remote half of a full reconciliation for ownerID against the
// local snapshot: fetch the remote set, then upload every unsynced local
// entry the remote does not know by id or original. The caller merges the
// result with PassResult.Apply.
func (r *Reconciler) Pass(ctx context.Context, ownerID string, local []models.WordEntry) (*PassResult, error) {
	log := logger.FromContext(ctx).WithPrefix("reconciler").WithField("owner", ownerID)
	log.Debug("starting reconciliation pass with %d local entries", len(local))
	start := time.Now()

	remote, rejected, err := r.Fetch(ctx, ownerID)
	if err != nil {
		log.WithError(err).Error("failed to fetch remote entries")
		return nil, err
	}
	res := &PassResult{
		Owner:  ownerID,
		Remote: remote,
		Report: Report{Owner: ownerID, Fetched: len(remote) + rejected, Rejected: rejected},
	}

	ids := make(map[string]bool, len(remote))
	keys := make(map[string]bool, len(remote))
	for _, e := range remote {
		ids[e.ID] = true
		keys[e.Key()] = true
	}

	for _, e := range local {
		if e.SyncFlag || ids[e.ID] || keys[e.Key()] {
			continue
		}
		if err := r.SyncUp(ctx, ownerID, e); err != nil {
			res.Report.UploadFailures++
			continue
		}
		keys[e.Key()] = true
		res.Uploaded = append(res.Uploaded, e)
	}
	res.Report.Uploaded = len(res.Uploaded)

	log.Info("pass fetched %d records (%d rejected), uploaded %d, %d upload failures in %v",
		res.Report.Fetched, rejected, res.Report.Uploaded, res.Report.UploadFailures, time.Since(start))
	return res, nil
}
