package srs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/srs"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newEntry(original string) models.WordEntry {
	return models.WordEntry{
		ID:                "id-" + original,
		Original:          original,
		Translation:       "translation of " + original,
		SrsEasinessFactor: models.DefaultEasinessFactor,
		CreatedAt:         t0,
	}
}

func TestApplyReview_HelloScenario(t *testing.T) {
	entry := newEntry("hello")

	entry = srs.ApplyReview(entry, 4, t0)
	assert.Equal(t, 1, entry.SrsRepetition)
	assert.Equal(t, 1.0, entry.SrsInterval)
	assert.False(t, entry.IsLearned)

	entry = srs.ApplyReview(entry, 4, t0)
	assert.Equal(t, 2, entry.SrsRepetition)
	assert.Equal(t, 6.0, entry.SrsInterval)
	assert.False(t, entry.IsLearned)

	entry = srs.ApplyReview(entry, 5, t0)
	assert.Equal(t, 3, entry.SrsRepetition)
	assert.True(t, entry.IsLearned)
	assert.InDelta(t, 2.6, entry.SrsEasinessFactor, 1e-9)
	assert.InDelta(t, 6*entry.SrsEasinessFactor, entry.SrsInterval, 1e-9)
	assert.Equal(t, 3, entry.ReviewCount)
	assert.InDelta(t, 13.0/3.0, entry.AverageQuality, 1e-9)
}

func TestApplyReview_IntervalProgression(t *testing.T) {
	entry := newEntry("progression")
	expected := []float64{1, 6, 15, 37.5, 93.75}

	for i, want := range expected {
		prevRep := entry.SrsRepetition
		entry = srs.ApplyReview(entry, 4, t0)
		assert.Equal(t, prevRep+1, entry.SrsRepetition, "review %d", i+1)
		assert.InDelta(t, want, entry.SrsInterval, 1e-9, "review %d", i+1)
	}

	entry = srs.ApplyReview(entry, 2, t0)
	assert.Equal(t, 0, entry.SrsRepetition)
	assert.Equal(t, 1.0, entry.SrsInterval)

	entry = srs.ApplyReview(entry, 4, t0)
	assert.Equal(t, 1, entry.SrsRepetition)
	assert.Equal(t, 1.0, entry.SrsInterval)
}

func TestApplyReview_FailureClearsLearned(t *testing.T) {
	tests := []struct {
		name    string
		quality int
	}{
		{name: "total failure", quality: 0},
		{name: "wrong", quality: 1},
		{name: "almost", quality: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := newEntry("learned")
			entry.SrsRepetition = 7
			entry.SrsInterval = 120
			entry.SrsEasinessFactor = 2.9
			entry.IsLearned = true

			updated := srs.ApplyReview(entry, tt.quality, t0)

			assert.False(t, updated.IsLearned)
			assert.Equal(t, 0, updated.SrsRepetition)
			assert.Equal(t, 1.0, updated.SrsInterval)
			assert.Equal(t, 2.9, updated.SrsEasinessFactor, "easiness factor is unchanged on failure")
			require.NotNil(t, updated.NextReviewDate)
			assert.Equal(t, t0.Add(24*time.Hour), *updated.NextReviewDate)
		})
	}
}

func TestApplyReview_MinEasinessFactor(t *testing.T) {
	entry := newEntry("hard word")

	for i := 0; i < 20; i++ {
		entry = srs.ApplyReview(entry, 3, t0)
		assert.GreaterOrEqual(t, entry.SrsEasinessFactor, models.MinEasinessFactor, "easiness factor should not drop below 1.3")
	}
	assert.Equal(t, models.MinEasinessFactor, entry.SrsEasinessFactor)
}

func TestApplyReview_TruncatesIntervalToWholeDays(t *testing.T) {
	entry := newEntry("drift")
	entry.SrsRepetition = 2
	entry.SrsInterval = 6
	entry.SrsEasinessFactor = 2.5

	updated := srs.ApplyReview(entry, 5, t0)

	assert.InDelta(t, 15.6, updated.SrsInterval, 1e-9)
	require.NotNil(t, updated.NextReviewDate)
	assert.Equal(t, t0.Add(15*24*time.Hour), *updated.NextReviewDate)
	require.NotNil(t, updated.LastReviewDate)
	assert.Equal(t, t0, *updated.LastReviewDate)
}

func TestApplyReview_ClampsQuality(t *testing.T) {
	high := srs.ApplyReview(newEntry("a"), 9, t0)
	five := srs.ApplyReview(newEntry("a"), 5, t0)
	assert.True(t, high.Equal(five))

	low := srs.ApplyReview(newEntry("b"), -4, t0)
	assert.Equal(t, 0.0, low.AverageQuality)
	assert.Equal(t, 0, low.SrsRepetition)
}

func TestApplyReview_DoesNotMutateInput(t *testing.T) {
	entry := newEntry("immutable")
	_ = srs.ApplyReview(entry, 5, t0)

	assert.Equal(t, 0, entry.ReviewCount)
	assert.Nil(t, entry.NextReviewDate)
}

func TestReset(t *testing.T) {
	entry := newEntry("reset me")
	for i := 0; i < 4; i++ {
		entry = srs.ApplyReview(entry, 5, t0)
	}
	later := t0.Add(48 * time.Hour)

	reset := srs.Reset(entry, later)

	assert.Equal(t, 0.0, reset.SrsInterval)
	assert.Equal(t, 0, reset.SrsRepetition)
	assert.Equal(t, models.DefaultEasinessFactor, reset.SrsEasinessFactor)
	assert.Equal(t, 0, reset.ReviewCount)
	assert.Equal(t, 0.0, reset.AverageQuality)
	assert.False(t, reset.IsLearned)
	assert.Nil(t, reset.LastReviewDate)
	require.NotNil(t, reset.NextReviewDate)
	assert.Equal(t, later, *reset.NextReviewDate)
	assert.True(t, srs.IsDue(reset, later))
	assert.True(t, srs.IsNew(reset))
}

func TestIsDue(t *testing.T) {
	past := t0.Add(-time.Hour)
	future := t0.Add(time.Hour)

	tests := []struct {
		name    string
		next    *time.Time
		learned bool
		want    bool
	}{
		{name: "never scheduled", next: nil, want: true},
		{name: "never scheduled but learned", next: nil, learned: true, want: true},
		{name: "overdue", next: &past, want: true},
		{name: "exactly now", next: &t0, want: true},
		{name: "in the future", next: &future, want: false},
		{name: "overdue but learned", next: &past, learned: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := newEntry("due")
			entry.NextReviewDate = tt.next
			entry.IsLearned = tt.learned
			assert.Equal(t, tt.want, srs.IsDue(entry, t0))
		})
	}
}

func TestIsNew(t *testing.T) {
	entry := newEntry("fresh")
	assert.True(t, srs.IsNew(entry))

	entry = srs.ApplyReview(entry, 1, t0)
	assert.False(t, srs.IsNew(entry), "a failed review still counts as reviewed")
}
