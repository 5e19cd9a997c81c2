package models

import (
	"sort"
	"strings"
	"time"
)

const (
	DefaultEasinessFactor = 2.5
	MinEasinessFactor     = 1.3

	// LearnedRepetitions is the streak of passing reviews after which an entry counts as learned.
	LearnedRepetitions = 3
)

// WordEntry is a vocabulary item together with its review state.
type WordEntry struct {
	ID                string     `json:"id"`
	Original          string     `json:"original" validate:"required,max=512"`
	Translation       string     `json:"translation" validate:"required,max=1024"`
	Transcription     string     `json:"transcription,omitempty" validate:"max=512"`
	ExampleSentence   string     `json:"example_sentence,omitempty" validate:"max=2048"`
	LanguagePair      string     `json:"language_pair,omitempty" validate:"omitempty,max=16"`
	IsLearned         bool       `json:"is_learned"`
	ReviewCount       int        `json:"review_count" validate:"gte=0"`
	AverageQuality    float64    `json:"average_quality" validate:"gte=0,lte=5"`
	SrsInterval       float64    `json:"srs_interval" validate:"gte=0"`
	SrsRepetition     int        `json:"srs_repetition" validate:"gte=0"`
	SrsEasinessFactor float64    `json:"srs_easiness_factor" validate:"gte=1.3"`
	LastReviewDate    *time.Time `json:"last_review_date,omitempty"`
	NextReviewDate    *time.Time `json:"next_review_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	OwnerID           *string    `json:"owner_id,omitempty"`
	SyncFlag          bool       `json:"sync_flag"`
}

// OriginalKey normalises an original text into the case-insensitive key used
// to detect the same word saved on different devices.
func OriginalKey(original string) string {
	return strings.ToLower(strings.TrimSpace(original))
}

// Key returns the entry's cross-device merge key.
func (e WordEntry) Key() string {
	return OriginalKey(e.Original)
}

// Owner returns the owner id or "" for purely local entries.
func (e WordEntry) Owner() string {
	if e.OwnerID == nil {
		return ""
	}
	return *e.OwnerID
}

// WithOwner returns a copy of e tagged with ownerID.
func (e WordEntry) WithOwner(ownerID string) WordEntry {
	if ownerID == "" {
		e.OwnerID = nil
		return e
	}
	id := ownerID
	e.OwnerID = &id
	return e
}

// Equal reports whether two entries carry the same field values.
func (e WordEntry) Equal(o WordEntry) bool {
	return e.ID == o.ID &&
		e.Original == o.Original &&
		e.Translation == o.Translation &&
		e.Transcription == o.Transcription &&
		e.ExampleSentence == o.ExampleSentence &&
		e.LanguagePair == o.LanguagePair &&
		e.IsLearned == o.IsLearned &&
		e.ReviewCount == o.ReviewCount &&
		e.AverageQuality == o.AverageQuality &&
		e.SrsInterval == o.SrsInterval &&
		e.SrsRepetition == o.SrsRepetition &&
		e.SrsEasinessFactor == o.SrsEasinessFactor &&
		timePtrEqual(e.LastReviewDate, o.LastReviewDate) &&
		timePtrEqual(e.NextReviewDate, o.NextReviewDate) &&
		e.CreatedAt.Equal(o.CreatedAt) &&
		e.Owner() == o.Owner() &&
		e.SyncFlag == o.SyncFlag
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	LanguagePair string
}

// Match reports whether e passes the filter.
func (f EntryFilter) Match(e WordEntry) bool {
	if f.LanguagePair != "" && !strings.EqualFold(f.LanguagePair, e.LanguagePair) {
		return false
	}
	return true
}

// SortEntries orders entries by creation time, then id.
func SortEntries(entries []WordEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
