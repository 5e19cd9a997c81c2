package testutil

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vytor/lexisync/internal/db"
	"github.com/vytor/lexisync/internal/models"
)

// NewTestDB creates an in-memory SQLite database with all migrations applied.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	return database.DB
}

// MustClose closes a resource and fails the test on error.
func MustClose(t *testing.T, closer interface{ Close() error }) {
	require.NoError(t, closer.Close())
}

// Clock is a settable time source safe for concurrent use.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Entry builds a fresh, never-reviewed entry for original.
func Entry(id, original string, created time.Time) models.WordEntry {
	return models.WordEntry{
		ID:                id,
		Original:          original,
		Translation:       "tr:" + original,
		LanguagePair:      "en-uk",
		SrsEasinessFactor: models.DefaultEasinessFactor,
		CreatedAt:         created,
	}
}

// Synced returns a copy of e owned by owner with its sync flag set.
func Synced(e models.WordEntry, owner string) models.WordEntry {
	e = e.WithOwner(owner)
	e.SyncFlag = true
	return e
}
