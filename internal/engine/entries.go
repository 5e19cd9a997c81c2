package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/session"
	"github.com/vytor/lexisync/internal/srs"
)

// ObserveEntries streams the full entry set after every change, starting
// with the current set. Only the latest set is kept for a slow reader.
func (e *Engine) ObserveEntries() (<-chan []models.WordEntry, func()) {
	return e.cache.Subscribe()
}

// Entries lists the entries passing filter.
func (e *Engine) Entries(ctx context.Context, filter models.EntryFilter) ([]models.WordEntry, error) {
	var out []models.WordEntry
	err := e.do(ctx, func() {
		out = []models.WordEntry{}
		for _, en := range e.cache.List() {
			if filter.Match(en) {
				out = append(out, en)
			}
		}
	})
	return out, err
}

func (e *Engine) Entry(ctx context.Context, id string) (models.WordEntry, error) {
	var (
		out   models.WordEntry
		found bool
	)
	if err := e.do(ctx, func() { out, found = e.cache.Get(id) }); err != nil {
		return models.WordEntry{}, err
	}
	if !found {
		return models.WordEntry{}, errors.NewNotFoundError("entry", id)
	}
	return out, nil
}

// Save inserts draft as a new entry, or updates the text fields of the entry
// with draft's id. Review state is never taken from draft.
func (e *Engine) Save(ctx context.Context, draft models.WordEntry) (models.WordEntry, error) {
	var (
		out   models.WordEntry
		opErr error
	)
	if err := e.do(ctx, func() { out, opErr = e.save(ctx, draft) }); err != nil {
		return models.WordEntry{}, err
	}
	return out, opErr
}

func (e *Engine) save(ctx context.Context, draft models.WordEntry) (models.WordEntry, error) {
	log := logger.FromContext(ctx).WithPrefix("engine")

	draft.Original = strings.TrimSpace(draft.Original)
	draft.Translation = strings.TrimSpace(draft.Translation)
	draft.Transcription = strings.TrimSpace(draft.Transcription)
	draft.ExampleSentence = strings.TrimSpace(draft.ExampleSentence)
	draft.LanguagePair = strings.TrimSpace(draft.LanguagePair)

	entry, exists := e.cache.Get(draft.ID)
	if !exists || draft.ID == "" {
		id := draft.ID
		if id == "" {
			id = uuid.NewString()
		}
		entry = models.WordEntry{
			ID:                id,
			SrsEasinessFactor: models.DefaultEasinessFactor,
			CreatedAt:         e.now(),
			LanguagePair:      draft.LanguagePair,
		}
	} else if draft.LanguagePair != "" && entry.LanguagePair != "" && !strings.EqualFold(draft.LanguagePair, entry.LanguagePair) {
		return models.WordEntry{}, errors.NewValidationError("language_pair", "cannot be changed once set")
	} else if entry.LanguagePair == "" {
		entry.LanguagePair = draft.LanguagePair
	}

	entry.Original = draft.Original
	entry.Translation = draft.Translation
	entry.Transcription = draft.Transcription
	entry.ExampleSentence = draft.ExampleSentence

	if err := e.validate.Struct(entry); err != nil {
		return models.WordEntry{}, errors.NewValidationError("entry", err.Error())
	}
	for _, other := range e.cache.List() {
		if other.ID != entry.ID && other.Key() == entry.Key() {
			return models.WordEntry{}, errors.NewValidationError("original", "an entry for "+entry.Original+" already exists")
		}
	}

	log.Debug("saving entry %s (new=%t)", entry.ID, !exists)
	return e.commit(ctx, entry)
}

// Review applies a quality rating from 0 to 5 to the entry.
func (e *Engine) Review(ctx context.Context, id string, quality int) (models.WordEntry, error) {
	var (
		out   models.WordEntry
		opErr error
	)
	if err := e.do(ctx, func() { out, opErr = e.review(ctx, id, quality) }); err != nil {
		return models.WordEntry{}, err
	}
	return out, opErr
}

func (e *Engine) review(ctx context.Context, id string, quality int) (models.WordEntry, error) {
	if !srs.ValidQuality(quality) {
		return models.WordEntry{}, errors.NewValidationError("quality", "must be between 0 and 5")
	}
	cur, ok := e.cache.Get(id)
	if !ok {
		return models.WordEntry{}, errors.NewNotFoundError("entry", id)
	}
	return e.commit(ctx, srs.ApplyReview(cur, quality, e.now()))
}

// Reset returns the entry to the never-studied state, due now.
func (e *Engine) Reset(ctx context.Context, id string) (models.WordEntry, error) {
	var (
		out   models.WordEntry
		opErr error
	)
	err := e.do(ctx, func() {
		cur, ok := e.cache.Get(id)
		if !ok {
			opErr = errors.NewNotFoundError("entry", id)
			return
		}
		out, opErr = e.commit(ctx, srs.Reset(cur, e.now()))
	})
	if err != nil {
		return models.WordEntry{}, err
	}
	return out, opErr
}

// commit writes a locally mutated entry through the cache and starts its
// routine sync-up. The in-memory change stands even when persisting fails.
func (e *Engine) commit(ctx context.Context, entry models.WordEntry) (models.WordEntry, error) {
	entry.SyncFlag = false
	if e.identity.Permanent {
		entry = entry.WithOwner(e.identity.ID)
	}
	err := e.cache.Upsert(ctx, entry)
	e.syncUp(ctx, entry)
	return entry, err
}

// Delete removes the entry locally and, for a permanent identity, from the
// mirror on a best-effort basis.
func (e *Engine) Delete(ctx context.Context, id string) error {
	var opErr error
	if err := e.do(ctx, func() { opErr = e.remove(ctx, id) }); err != nil {
		return err
	}
	return opErr
}

func (e *Engine) remove(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).WithPrefix("engine").WithField("entry_id", id)

	cur, ok := e.cache.Get(id)
	if !ok {
		return errors.NewNotFoundError("entry", id)
	}
	_, err := e.cache.Delete(ctx, id)

	if !e.identity.Permanent {
		return err
	}
	owner := e.identity.ID
	if !cur.SyncFlag && cur.Owner() != owner && e.pending[id] == 0 {
		return err
	}
	e.deleting[id] = true
	qerr := e.queue.EnqueueRemoval(owner, id, func(rerr error) {
		e.post(func() {
			delete(e.deleting, id)
			if rerr != nil {
				e.log.WithError(rerr).WithField("entry_id", id).Warn("remote delete failed, entry may reappear on next pass")
			}
		})
	})
	if qerr != nil {
		delete(e.deleting, id)
		log.WithError(qerr).Warn("remote delete not queued")
	}
	return err
}

// BuildSession selects the next review session from the current entries.
func (e *Engine) BuildSession(ctx context.Context) (*session.Queue, error) {
	var q *session.Queue
	err := e.do(ctx, func() {
		q = e.builder.Build(e.cache.List(), e.now())
	})
	if err == nil {
		logger.FromContext(ctx).WithPrefix("engine").Debug("built session %s with %d entries", q.ID(), q.Remaining())
	}
	return q, err
}

// Advance records quality for the queue's current entry, applying the review
// like Review does, and returns the queue with the reviewed entry.
func (e *Engine) Advance(ctx context.Context, q *session.Queue, quality int) (*session.Queue, models.WordEntry, error) {
	var (
		out   models.WordEntry
		opErr error
	)
	err := e.do(ctx, func() {
		id, ok := q.Current()
		if !ok {
			opErr = errors.NewValidationError("session", "session is complete")
			return
		}
		if !srs.ValidQuality(quality) {
			opErr = errors.NewValidationError("quality", "must be between 0 and 5")
			return
		}
		before, ok := e.cache.Get(id)
		if !ok {
			q.Skip()
			opErr = errors.NewNotFoundError("entry", id)
			return
		}
		var perr error
		out, perr = e.commit(ctx, srs.ApplyReview(before, quality, e.now()))
		if err := q.Record(before, out, quality); err != nil {
			opErr = errors.NewInternalError(err)
			return
		}
		opErr = perr
	})
	if err != nil {
		return q, models.WordEntry{}, err
	}
	return q, out, opErr
}

// Identity returns the identity the device currently acts as.
func (e *Engine) Identity(ctx context.Context) (models.Identity, error) {
	var id models.Identity
	err := e.do(ctx, func() { id = e.identity })
	return id, err
}

// Stats summarises the local entry set.
func (e *Engine) Stats(ctx context.Context) (models.EntryStats, error) {
	var st models.EntryStats
	err := e.do(ctx, func() {
		now := e.now()
		var qualitySum, efSum, intervalSum float64
		for _, en := range e.cache.List() {
			st.TotalEntries++
			st.TotalReviews += en.ReviewCount
			qualitySum += en.AverageQuality * float64(en.ReviewCount)
			efSum += en.SrsEasinessFactor
			intervalSum += en.SrsInterval
			if en.IsLearned {
				st.Learned++
			}
			if srs.IsDue(en, now) {
				st.Due++
			}
			if srs.IsNew(en) {
				st.New++
			}
			if !en.SyncFlag {
				st.Unsynced++
			}
		}
		if st.TotalReviews > 0 {
			st.AvgQuality = qualitySum / float64(st.TotalReviews)
		}
		if st.TotalEntries > 0 {
			st.AvgEaseFactor = efSum / float64(st.TotalEntries)
			st.AvgIntervalDay = intervalSum / float64(st.TotalEntries)
		}
	})
	return st, err
}
