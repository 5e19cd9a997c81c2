package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/identity"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/repository/sqlite"
	"github.com/vytor/lexisync/internal/testutil"
)

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name  string
		event identity.Event
		ok    bool
	}{
		{"anonymous", identity.Anonymous("anon-1"), true},
		{"authenticated", identity.Authenticated("u1"), true},
		{"linked", identity.Linked("anon-1", "u1"), true},
		{"unknown kind", identity.Event{Kind: "guest", ID: "x"}, false},
		{"missing id", identity.Authenticated(" "), false},
		{"linked without old id", identity.Linked("", "u1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
		})
	}
}

func TestEvent_Target(t *testing.T) {
	assert.Equal(t, "u1", identity.Authenticated("u1").Target())
	assert.Equal(t, "u2", identity.Linked("u1", "u2").Target())
}

func TestStore_RoundTrip(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer testutil.MustClose(t, db)
	repo := sqlite.NewBlobRepository(db)
	store := identity.NewStore(repo)
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	now := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	anon := identity.NewAnonymous(now)
	assert.False(t, anon.Permanent)
	assert.Contains(t, anon.ID, "anon-")

	require.NoError(t, store.Save(ctx, models.Identity{ID: "u1", Permanent: true, UpdatedAt: now}))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.True(t, got.Permanent)

	require.NoError(t, repo.Put(ctx, identity.Key, []byte("nope")))
	_, err = store.Load(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLocalCorruptDecode))
}
