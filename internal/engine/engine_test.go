package engine_test

import (
	"context"
	"fmt"
	"math/rand"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lexisync/internal/cache"
	"github.com/vytor/lexisync/internal/engine"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/identity"
	"github.com/vytor/lexisync/internal/jobs"
	"github.com/vytor/lexisync/internal/mirror"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/reconcile"
	"github.com/vytor/lexisync/internal/repository"
	"github.com/vytor/lexisync/internal/repository/sqlite"
	"github.com/vytor/lexisync/internal/session"
	"github.com/vytor/lexisync/internal/testutil"
	"github.com/vytor/lexisync/internal/testutil/mocks"
	"github.com/vytor/lexisync/internal/worker"
)

type fixture struct {
	engine *engine.Engine
	store  *mirror.Store
	blobs  repository.BlobRepository
	rec    *reconcile.Reconciler
	queue  jobs.SyncQueue
	clock  *testutil.Clock
}

// newFixture wires an engine against an in-process mirror store, or against
// m when given. opts run before the engine starts.
func newFixture(t *testing.T, m mirror.Mirror, opts ...func(*fixture)) *fixture {
	t.Helper()
	f := &fixture{clock: testutil.NewClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))}

	localDB := testutil.NewTestDB(t)
	f.blobs = sqlite.NewBlobRepository(localDB)

	if m == nil {
		mirrorDB := testutil.NewTestDB(t)
		f.store = mirror.NewStore(sqlite.NewMirrorRepository(mirrorDB))
		m = f.store
		t.Cleanup(func() {
			f.store.Close()
			testutil.MustClose(t, mirrorDB)
		})
	}

	f.rec = reconcile.New(m, f.clock.Now)
	pool := worker.NewPool(2, 16)
	pool.Start(context.Background())
	f.queue = jobs.NewWorkerQueue(pool, f.rec)
	for _, opt := range opts {
		opt(f)
	}

	f.engine = f.newEngine(t)
	t.Cleanup(func() {
		f.engine.Stop()
		pool.Stop()
		testutil.MustClose(t, localDB)
	})
	return f
}

func (f *fixture) newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New(engine.Deps{
		Cache:      cache.New(f.blobs),
		Identities: identity.NewStore(f.blobs),
		Reconciler: f.rec,
		Queue:      f.queue,
	}, engine.Options{
		Now:     f.clock.Now,
		Rand:    rand.New(rand.NewSource(7)),
		Session: session.DefaultConfig(),
	})
	require.NoError(t, e.Start(context.Background()))
	return e
}

func (f *fixture) save(t *testing.T, original string) models.WordEntry {
	t.Helper()
	e, err := f.engine.Save(context.Background(), models.WordEntry{
		Original:     original,
		Translation:  "tr:" + original,
		LanguagePair: "en-uk",
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) entry(t *testing.T, id string) models.WordEntry {
	t.Helper()
	e, err := f.engine.Entry(context.Background(), id)
	require.NoError(t, err)
	return e
}

func TestEngine_StartsAnonymous(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.engine.Identity(context.Background())
	require.NoError(t, err)
	assert.False(t, id.Permanent)
	assert.NotEmpty(t, id.ID)
}

func TestEngine_SaveDefaults(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	e := f.save(t, "  hello ")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "hello", e.Original)
	assert.Equal(t, 0, e.ReviewCount)
	assert.Equal(t, 0, e.SrsRepetition)
	assert.Equal(t, models.DefaultEasinessFactor, e.SrsEasinessFactor)
	assert.False(t, e.SyncFlag)
	assert.Nil(t, e.OwnerID)
	assert.Equal(t, f.clock.Now(), e.CreatedAt)

	_, err := f.engine.Save(ctx, models.WordEntry{Original: "HELLO", Translation: "again"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), "duplicate original")

	_, err = f.engine.Save(ctx, models.WordEntry{Original: "world"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), "missing translation")
}

func TestEngine_UpdateKeepsReviewState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.save(t, "hello")
	_, err := f.engine.Review(ctx, e.ID, 4)
	require.NoError(t, err)

	updated, err := f.engine.Save(ctx, models.WordEntry{ID: e.ID, Original: "hello", Translation: "привіт", ReviewCount: 99})
	require.NoError(t, err)
	assert.Equal(t, "привіт", updated.Translation)
	assert.Equal(t, 1, updated.ReviewCount)
	assert.Equal(t, "en-uk", updated.LanguagePair)

	_, err = f.engine.Save(ctx, models.WordEntry{ID: e.ID, Original: "hello", Translation: "x", LanguagePair: "en-de"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), "language pair is immutable")
}

func TestEngine_ReviewScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.save(t, "hello")

	after1, err := f.engine.Review(ctx, e.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, after1.SrsRepetition)
	assert.Equal(t, 1.0, after1.SrsInterval)

	after2, err := f.engine.Review(ctx, e.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, after2.SrsRepetition)
	assert.Equal(t, 6.0, after2.SrsInterval)

	after3, err := f.engine.Review(ctx, e.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, after3.SrsRepetition)
	assert.True(t, after3.IsLearned)
	assert.InDelta(t, 6*after3.SrsEasinessFactor, after3.SrsInterval, 1e-9)

	_, err = f.engine.Review(ctx, e.ID, 6)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	_, err = f.engine.Review(ctx, "missing", 3)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	reset, err := f.engine.Reset(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.ReviewCount)
	assert.False(t, reset.IsLearned)
	require.NotNil(t, reset.NextReviewDate)
	assert.Equal(t, f.clock.Now(), *reset.NextReviewDate)
}

func TestEngine_ObserveEntries(t *testing.T) {
	f := newFixture(t, nil)
	ch, cancel := f.engine.ObserveEntries()
	defer cancel()

	assert.Empty(t, <-ch)
	f.save(t, "hello")

	select {
	case entries := <-ch:
		require.Len(t, entries, 1)
		assert.Equal(t, "hello", entries[0].Original)
	case <-time.After(time.Second):
		t.Fatal("no update observed")
	}
}

func TestEngine_DeleteAnonymous(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.save(t, "hello")

	require.NoError(t, f.engine.Delete(ctx, e.ID))
	err := f.engine.Delete(ctx, e.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	entries, err := f.engine.Entries(ctx, models.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngine_EntriesFilter(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.save(t, "hello")
	_, err := f.engine.Save(ctx, models.WordEntry{Original: "hallo", Translation: "hi", LanguagePair: "de-en"})
	require.NoError(t, err)

	entries, err := f.engine.Entries(ctx, models.EntryFilter{LanguagePair: "DE-EN"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hallo", entries[0].Original)
}

func TestEngine_SyncRequiresIdentity(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIdentityRequired))
}

func TestEngine_SignUpMigratesAnonymousEntries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	x := f.save(t, "X")

	report, err := f.engine.HandleIdentity(ctx, identity.Authenticated("u1"))
	require.NoError(t, err)
	assert.Empty(t, report.Error)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 1, report.Entries)

	got := f.entry(t, x.ID)
	assert.Equal(t, "u1", got.Owner())
	assert.True(t, got.SyncFlag)

	recs, err := f.store.FetchAll(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, x.ID, recs[0].ID)

	id, err := f.engine.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.ID)
	assert.True(t, id.Permanent)
}

func TestEngine_SignInMergesExistingAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := f.clock.Now()

	remote := testutil.Entry("remote-hello", "Hello", now.Add(-time.Hour))
	require.NoError(t, f.store.Put(ctx, "u1", models.RecordFromEntry(remote, now)))

	f.save(t, "hello")
	cat := f.save(t, "cat")

	_, err := f.engine.HandleIdentity(ctx, identity.Authenticated("u1"))
	require.NoError(t, err)

	entries, err := f.engine.Entries(ctx, models.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "remote-hello", entries[0].ID, "the account's copy wins for the same original")
	assert.Equal(t, cat.ID, entries[1].ID)
	for _, e := range entries {
		assert.True(t, e.SyncFlag)
	}
}

func TestEngine_LinkedCopiesOldAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := f.clock.Now()
	require.NoError(t, f.store.Put(ctx, "old", models.RecordFromEntry(testutil.Entry("o1", "dog", now), now)))

	report, err := f.engine.HandleIdentity(ctx, identity.Linked("old", "new"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)

	got := f.entry(t, "o1")
	assert.Equal(t, "new", got.Owner())

	oldRecs, err := f.store.FetchAll(ctx, "old")
	require.NoError(t, err)
	assert.Len(t, oldRecs, 1, "migration copies, it does not move")
}

func TestEngine_RoutineSyncUpAndPush(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.engine.HandleIdentity(ctx, identity.Authenticated("u1"))
	require.NoError(t, err)

	z := f.save(t, "zebra")
	require.Eventually(t, func() bool {
		got, err := f.engine.Entry(ctx, z.ID)
		return err == nil && got.SyncFlag
	}, 2*time.Second, 10*time.Millisecond)

	n, err := f.store.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Another device adds an entry; the subscription brings it in.
	now := f.clock.Now()
	require.NoError(t, f.store.Put(ctx, "u1", models.RecordFromEntry(testutil.Entry("other-device", "lion", now), now)))
	require.Eventually(t, func() bool {
		got, err := f.engine.Entry(ctx, "other-device")
		return err == nil && got.SyncFlag && got.Owner() == "u1"
	}, 2*time.Second, 10*time.Millisecond)

	// Deleting propagates to the mirror.
	require.NoError(t, f.engine.Delete(ctx, z.ID))
	require.Eventually(t, func() bool {
		n, err := f.store.Count(ctx, "u1")
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_ReopensDroppedSubscription(t *testing.T) {
	mirrorDB := testutil.NewTestDB(t)
	store := mirror.NewStore(sqlite.NewMirrorRepository(mirrorDB))
	srv := httptest.NewServer(mirror.NewServer(store).Routes())
	t.Cleanup(func() {
		store.Close()
		srv.Close()
		testutil.MustClose(t, mirrorDB)
	})

	f := newFixture(t, mirror.NewClient(srv.URL, 5*time.Second))
	ctx := context.Background()
	_, err := f.engine.HandleIdentity(ctx, identity.Authenticated("u1"))
	require.NoError(t, err)

	z := f.save(t, "zebra")
	require.Eventually(t, func() bool {
		got, err := f.engine.Entry(ctx, z.ID)
		return err == nil && got.SyncFlag
	}, 2*time.Second, 10*time.Millisecond)

	srv.CloseClientConnections()

	// A change made while the stream is down shows up once a successful
	// sync-up reopens it.
	now := f.clock.Now()
	require.NoError(t, store.Put(ctx, "u1", models.RecordFromEntry(testutil.Entry("while-down", "owl", now), now)))
	require.Eventually(t, func() bool {
		if _, err := f.engine.Review(ctx, z.ID, 4); err != nil {
			return false
		}
		got, err := f.engine.Entry(ctx, "while-down")
		return err == nil && got.SyncFlag
	}, 5*time.Second, 50*time.Millisecond)

	// The reopened stream is live.
	require.NoError(t, store.Put(ctx, "u1", models.RecordFromEntry(testutil.Entry("other-device", "lion", now), now)))
	require.Eventually(t, func() bool {
		got, err := f.engine.Entry(ctx, "other-device")
		return err == nil && got.SyncFlag && got.Owner() == "u1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_RemoteUnavailableKeepsEntries(t *testing.T) {
	m := new(mocks.MockMirror)
	down := errors.NewRemoteUnavailableError("fetch", fmt.Errorf("connection refused"))
	m.On("FetchAll", mock.Anything, mock.Anything).Return(nil, down)
	m.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil, down)
	m.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(down)

	f := newFixture(t, m)
	ctx := context.Background()
	x := f.save(t, "X")

	report, err := f.engine.HandleIdentity(ctx, identity.Authenticated("u1"))
	require.NoError(t, err)
	assert.NotEmpty(t, report.Error)

	got := f.entry(t, x.ID)
	assert.False(t, got.SyncFlag)

	_, err = f.engine.Sync(ctx)
	require.NoError(t, err)

	st, err := f.engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Unsynced)
}

func TestEngine_QueueFullLeavesEntryForNextPass(t *testing.T) {
	q := new(mocks.MockSyncQueue)
	q.On("EnqueueSyncUp", "u1", mock.Anything, mock.Anything).Return(worker.ErrQueueFull)
	f := newFixture(t, nil, func(f *fixture) { f.queue = q })
	ctx := context.Background()

	_, err := f.engine.HandleIdentity(ctx, identity.Authenticated("u1"))
	require.NoError(t, err)

	z := f.save(t, "zebra")
	assert.Equal(t, "u1", z.Owner())
	assert.False(t, f.entry(t, z.ID).SyncFlag)
	q.AssertCalled(t, "EnqueueSyncUp", "u1", mock.Anything, mock.Anything)

	report, err := f.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.True(t, f.entry(t, z.ID).SyncFlag)
}

func TestEngine_SignOutStopsSync(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.engine.HandleIdentity(ctx, identity.Authenticated("u1"))
	require.NoError(t, err)

	report, err := f.engine.HandleIdentity(ctx, identity.Anonymous("anon-2"))
	require.NoError(t, err)
	assert.Equal(t, "anon-2", report.Owner)

	e := f.save(t, "offline")
	assert.Nil(t, e.OwnerID)

	_, err = f.engine.Sync(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIdentityRequired))
}

func TestEngine_IdentitySurvivesRestart(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	x := f.save(t, "X")
	_, err := f.engine.HandleIdentity(ctx, identity.Authenticated("u1"))
	require.NoError(t, err)
	f.engine.Stop()

	f.engine = f.newEngine(t)
	id, err := f.engine.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.ID)
	assert.True(t, id.Permanent)

	got := f.entry(t, x.ID)
	assert.True(t, got.SyncFlag)
}

func TestEngine_SessionFailThenPass(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.save(t, "apple")
	f.save(t, "banana")

	q, err := f.engine.BuildSession(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, q.Remaining())

	failedOnce := false
	for !q.Done() {
		id, _ := q.Current()
		quality := 4
		if id == a.ID && !failedOnce {
			quality, failedOnce = 1, true
		}
		_, _, err := f.engine.Advance(ctx, q, quality)
		require.NoError(t, err)
	}

	appearances := 0
	for _, id := range q.History() {
		if id == a.ID {
			appearances++
		}
	}
	assert.Equal(t, 2, appearances)

	final := f.entry(t, a.ID)
	assert.Equal(t, 1, final.SrsRepetition)
	assert.Equal(t, 1.0, final.SrsInterval)
	assert.False(t, final.IsLearned)
	assert.Equal(t, 3, q.Counters().TotalReviewed)
	assert.Equal(t, 1, q.Counters().FailedThisSession)

	_, _, err = f.engine.Advance(ctx, q, 4)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestEngine_Stats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.save(t, "apple")
	f.save(t, "banana")
	_, err := f.engine.Review(ctx, a.ID, 5)
	require.NoError(t, err)
	_, err = f.engine.Review(ctx, a.ID, 3)
	require.NoError(t, err)

	st, err := f.engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalEntries)
	assert.Equal(t, 2, st.TotalReviews)
	assert.Equal(t, 1, st.New)
	assert.Equal(t, 2, st.Unsynced)
	assert.InDelta(t, 4.0, st.AvgQuality, 1e-9)
}

func TestEngine_Stopped(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.Stop()

	_, err := f.engine.Entries(context.Background(), models.EntryFilter{})
	assert.Equal(t, engine.ErrStopped, err)
}
