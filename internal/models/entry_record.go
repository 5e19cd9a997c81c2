package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnusableRecord marks a remote record that decoded but cannot become a WordEntry.
var ErrUnusableRecord = errors.New("unusable entry record")

// EntryRecord is the document shape stored in the remote mirror.
// Optional numeric fields are pointers so that a missing field can be told
// apart from a zero value.
type EntryRecord struct {
	ID                string     `json:"id" validate:"required"`
	Original          string     `json:"original" validate:"required"`
	Translation       string     `json:"translation" validate:"required"`
	Transcription     string     `json:"transcription,omitempty"`
	ExampleSentence   string     `json:"example_sentence,omitempty"`
	LanguagePair      string     `json:"language_pair,omitempty"`
	IsLearned         bool       `json:"is_learned"`
	ReviewCount       *int       `json:"review_count,omitempty"`
	AverageQuality    *float64   `json:"average_quality,omitempty"`
	SrsInterval       *float64   `json:"srs_interval,omitempty"`
	SrsRepetition     *int       `json:"srs_repetition,omitempty"`
	SrsEasinessFactor *float64   `json:"srs_easiness_factor,omitempty"`
	LastReviewDate    *time.Time `json:"last_review_date,omitempty"`
	NextReviewDate    *time.Time `json:"next_review_date,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// RecordFromEntry converts a local entry into its remote document.
// Ownership and sync state are not part of the document; the owner is the
// collection the record is stored under.
func RecordFromEntry(e WordEntry, now time.Time) EntryRecord {
	reviewCount := e.ReviewCount
	avg := e.AverageQuality
	interval := e.SrsInterval
	rep := e.SrsRepetition
	ef := e.SrsEasinessFactor
	created := e.CreatedAt
	updated := now
	return EntryRecord{
		ID:                e.ID,
		Original:          e.Original,
		Translation:       e.Translation,
		Transcription:     e.Transcription,
		ExampleSentence:   e.ExampleSentence,
		LanguagePair:      e.LanguagePair,
		IsLearned:         e.IsLearned,
		ReviewCount:       &reviewCount,
		AverageQuality:    &avg,
		SrsInterval:       &interval,
		SrsRepetition:     &rep,
		SrsEasinessFactor: &ef,
		LastReviewDate:    e.LastReviewDate,
		NextReviewDate:    e.NextReviewDate,
		CreatedAt:         &created,
		UpdatedAt:         &updated,
	}
}

// EntryFromRecord converts a remote document into a synced local entry owned
// by ownerID.
//
// Defaults for missing or out-of-range fields:
//   - srs_easiness_factor: 2.5 when missing, raised to 1.3 when lower
//   - review_count, srs_repetition: 0 when missing or negative
//   - average_quality, srs_interval: 0 when missing or negative
//   - created_at: updated_at when missing, otherwise now
//   - is_learned: kept only when srs_repetition reached 3
//
// A record without id, original or translation returns ErrUnusableRecord.
func EntryFromRecord(r EntryRecord, ownerID string, now time.Time) (WordEntry, error) {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return WordEntry{}, fmt.Errorf("%w: missing id", ErrUnusableRecord)
	case strings.TrimSpace(r.Original) == "":
		return WordEntry{}, fmt.Errorf("%w: record %s has no original", ErrUnusableRecord, r.ID)
	case strings.TrimSpace(r.Translation) == "":
		return WordEntry{}, fmt.Errorf("%w: record %s has no translation", ErrUnusableRecord, r.ID)
	}

	e := WordEntry{
		ID:                r.ID,
		Original:          r.Original,
		Translation:       r.Translation,
		Transcription:     r.Transcription,
		ExampleSentence:   r.ExampleSentence,
		LanguagePair:      r.LanguagePair,
		ReviewCount:       nonNegativeInt(r.ReviewCount),
		AverageQuality:    nonNegativeFloat(r.AverageQuality),
		SrsInterval:       nonNegativeFloat(r.SrsInterval),
		SrsRepetition:     nonNegativeInt(r.SrsRepetition),
		SrsEasinessFactor: DefaultEasinessFactor,
		LastReviewDate:    r.LastReviewDate,
		NextReviewDate:    r.NextReviewDate,
		SyncFlag:          true,
	}
	if r.SrsEasinessFactor != nil {
		e.SrsEasinessFactor = *r.SrsEasinessFactor
		if e.SrsEasinessFactor < MinEasinessFactor {
			e.SrsEasinessFactor = MinEasinessFactor
		}
	}
	e.IsLearned = r.IsLearned && e.SrsRepetition >= LearnedRepetitions

	switch {
	case r.CreatedAt != nil:
		e.CreatedAt = *r.CreatedAt
	case r.UpdatedAt != nil:
		e.CreatedAt = *r.UpdatedAt
	default:
		e.CreatedAt = now
	}
	return e.WithOwner(ownerID), nil
}

func nonNegativeInt(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func nonNegativeFloat(v *float64) float64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
