package engine

import (
	"context"

	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/identity"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/reconcile"
)

// HandleIdentity reacts to an identity provider transition.
//
//   - anonymous: the device acts anonymously; syncing stops.
//   - authenticated: entries of a previous anonymous identity are copied to
//     the account, then a full pass runs and the subscription starts.
//   - linked: entries of old_id are copied to new_id, then as above.
//
// Remote failures are reported in the returned Report, not as an error.
func (e *Engine) HandleIdentity(ctx context.Context, ev identity.Event) (reconcile.Report, error) {
	log := logger.FromContext(ctx).WithPrefix("engine").WithField("event", string(ev.Kind))
	if err := ev.Validate(); err != nil {
		return reconcile.Report{}, err
	}

	var from string
	err := e.do(ctx, func() {
		prev := e.identity
		next := models.Identity{ID: ev.Target(), Permanent: ev.Kind != identity.KindAnonymous, UpdatedAt: e.now()}
		switch ev.Kind {
		case identity.KindAuthenticated:
			if !prev.Permanent && prev.ID != next.ID {
				from = prev.ID
			}
		case identity.KindLinked:
			from = ev.OldID
		}
		e.setIdentity(ctx, next)
		log.Info("identity changed from %s (permanent=%t) to %s (permanent=%t)", prev.ID, prev.Permanent, next.ID, next.Permanent)
	})
	if err != nil {
		return reconcile.Report{}, err
	}

	target := ev.Target()
	if ev.Kind == identity.KindAnonymous {
		return reconcile.Report{Owner: target, Trigger: string(ev.Kind)}, nil
	}

	var migration reconcile.Report
	if from != "" {
		migration, err = e.rec.Migrate(ctx, from, target)
		if err != nil {
			log.WithError(err).Warn("migration from %s failed, continuing with reconciliation", from)
		}
	}

	report, err := e.runPass(ctx, target, string(ev.Kind))
	if err != nil {
		return report, err
	}
	report.Migrated = migration.Migrated
	report.MigrationFailures = migration.MigrationFailures
	if report.Error == "" && migration.Error != "" {
		report.Error = migration.Error
	}

	err = e.do(ctx, func() {
		if e.identity.Permanent && e.identity.ID == target {
			e.startSubscription(target)
		}
	})
	return report, err
}

// Sync runs a full reconciliation pass on demand. It needs a permanent
// identity.
func (e *Engine) Sync(ctx context.Context) (reconcile.Report, error) {
	var id models.Identity
	if err := e.do(ctx, func() { id = e.identity }); err != nil {
		return reconcile.Report{}, err
	}
	if !id.Permanent {
		return reconcile.Report{}, errors.NewIdentityRequiredError("sync")
	}

	report, err := e.runPass(ctx, id.ID, "manual")
	if err != nil {
		return report, err
	}
	err = e.do(ctx, func() {
		if e.identity.Permanent && e.identity.ID == id.ID {
			e.startSubscription(id.ID)
		}
	})
	return report, err
}

// runPass performs an awaited full pass for owner: remote I/O on the calling
// goroutine, merge on the owner goroutine.
func (e *Engine) runPass(ctx context.Context, owner, trigger string) (reconcile.Report, error) {
	report := reconcile.Report{Owner: owner, Trigger: trigger}

	var (
		local []models.WordEntry
		seq   uint64
	)
	if err := e.do(ctx, func() { local, seq = e.cache.List(), e.pushSeq }); err != nil {
		return report, err
	}

	res, err := e.rec.Pass(ctx, owner, local)
	if err != nil {
		report.Error = err.Error()
		return report, nil
	}
	res.Report.Trigger = trigger
	report = res.Report

	err = e.do(ctx, func() {
		n, applied := e.applyPass(ctx, res, seq, false)
		report.Entries = n
		if !applied {
			report.Error = "identity changed during reconciliation"
		}
	})
	return report, err
}

// applyPass merges res into the cache. Results for an owner that is no
// longer current are discarded. seq is the push sequence observed when res
// was fetched; if a pushed snapshot was merged since, the synced entries it
// left are the newer remote view and replace res.Remote. After a pushed
// snapshot, unsynced survivors get a routine sync-up since that pass uploads
// nothing itself.
func (e *Engine) applyPass(ctx context.Context, res *reconcile.PassResult, seq uint64, pushed bool) (int, bool) {
	log := logger.FromContext(ctx).WithPrefix("engine").WithField("owner", res.Owner)
	if !e.identity.Permanent || e.identity.ID != res.Owner {
		log.Debug("discarding reconciliation for inactive owner")
		return 0, false
	}

	if !pushed && seq != e.pushSeq {
		log.Debug("remote view advanced during the pass, merging against pushed state")
		remote := make([]models.WordEntry, 0, len(res.Remote))
		for _, en := range e.cache.List() {
			if en.SyncFlag {
				remote = append(remote, en)
			}
		}
		res.Remote = remote
	}

	if len(e.deleting) > 0 {
		remote := make([]models.WordEntry, 0, len(res.Remote))
		for _, r := range res.Remote {
			if !e.deleting[r.ID] {
				remote = append(remote, r)
			}
		}
		res.Remote = remote
	}

	pending := make(map[string]bool, len(e.pending))
	for id := range e.pending {
		pending[id] = true
	}
	merged := res.Apply(e.cache.List(), pending)
	if err := e.cache.Replace(ctx, merged); err != nil {
		log.WithError(err).Error("reconciled set not persisted, keeping it in memory")
	}

	if pushed {
		e.pushSeq++
		for _, en := range merged {
			if !en.SyncFlag && !pending[en.ID] {
				e.syncUp(ctx, en)
			}
		}
	}
	log.Debug("reconciled local set to %d entries", len(merged))
	return len(merged), true
}

// setIdentity switches the active identity and persists it.
func (e *Engine) setIdentity(ctx context.Context, next models.Identity) {
	if e.subOwner != next.ID || !next.Permanent {
		e.stopSubscription()
	}
	e.identity = next
	if err := e.ids.Save(ctx, next); err != nil {
		e.log.WithError(err).Warn("identity change not persisted")
	}
}

// startSubscription (re)opens the change subscription for owner. Pushed
// snapshots are reconciled on the owner goroutine. When the subscription
// ends on its own it is cleared, and the next successful sync-up, Sync or
// identity event opens a new one.
func (e *Engine) startSubscription(owner string) {
	e.stopSubscription()

	ctx, cancel := context.WithCancel(e.bg)
	e.subGen++
	gen := e.subGen
	e.subOwner, e.subCancel = owner, cancel
	log := e.log.WithField("owner", owner)

	go func() {
		done, err := e.rec.Subscribe(ctx, owner, func(remote []models.WordEntry, rejected int) {
			e.post(func() {
				if e.subGen != gen {
					return
				}
				res := &reconcile.PassResult{
					Owner:  owner,
					Remote: remote,
					Report: reconcile.Report{Owner: owner, Trigger: "push", Fetched: len(remote) + rejected, Rejected: rejected},
				}
				e.applyPass(ctx, res, e.pushSeq, true)
			})
		})
		if err == nil {
			log.Debug("change subscription live")
			<-done
			if ctx.Err() != nil {
				return
			}
			log.Warn("change subscription ended")
		} else {
			log.WithError(err).Warn("change subscription failed")
		}
		e.post(func() {
			if e.subGen == gen {
				e.stopSubscription()
			}
		})
	}()
}

func (e *Engine) stopSubscription() {
	if e.subCancel != nil {
		e.subCancel()
	}
	e.subGen++
	e.subOwner, e.subCancel = "", nil
}

// syncUp starts one routine upload of entry for the current permanent
// identity. The entry is marked synced only if it is unchanged when the
// upload succeeds.
func (e *Engine) syncUp(ctx context.Context, entry models.WordEntry) {
	if !e.identity.Permanent {
		return
	}
	owner := e.identity.ID
	log := logger.FromContext(ctx).WithPrefix("engine").WithField("entry_id", entry.ID)

	if entry.Owner() != owner {
		entry = entry.WithOwner(owner)
		if err := e.cache.Upsert(ctx, entry); err != nil {
			log.WithError(err).Warn("ownership change not persisted")
		}
	}

	snapshot := entry
	e.pending[entry.ID]++
	err := e.queue.EnqueueSyncUp(owner, snapshot, func(err error) {
		e.post(func() { e.syncUpDone(owner, snapshot, err) })
	})
	if err != nil {
		e.release(entry.ID)
		log.WithError(err).Warn("sync-up not queued, entry stays unsynced")
	}
}

func (e *Engine) syncUpDone(owner string, snapshot models.WordEntry, err error) {
	e.release(snapshot.ID)
	log := e.log.WithFields(map[string]any{"entry_id": snapshot.ID, "owner": owner})
	if err != nil {
		log.WithError(err).Info("sync-up failed, entry stays unsynced")
		return
	}
	if !e.identity.Permanent || e.identity.ID != owner {
		return
	}
	if e.subCancel == nil {
		log.Info("remote reachable again, reopening change subscription")
		e.startSubscription(owner)
	}
	cur, ok := e.cache.Get(snapshot.ID)
	if !ok || !cur.Equal(snapshot) {
		log.Debug("entry changed during sync-up, leaving it unsynced")
		return
	}
	if err := e.cache.MarkSynced(e.bg, snapshot.ID); err != nil {
		log.WithError(err).Warn("sync flag not persisted")
	}
}

func (e *Engine) release(id string) {
	if e.pending[id] <= 1 {
		delete(e.pending, id)
		return
	}
	e.pending[id]--
}
