package srs

import (
	"math"
	"time"

	"github.com/vytor/lexisync/internal/models"
)

const (
	MinQuality  = 0
	MaxQuality  = 5
	PassQuality = 3
)

// ClampQuality forces q into the 0..5 rating range.
func ClampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}

// ValidQuality reports whether q is a rating the scheduler accepts unchanged.
func ValidQuality(q int) bool {
	return q >= MinQuality && q <= MaxQuality
}

// IsPass reports whether a rating counts as successful recall.
func IsPass(q int) bool {
	return q >= PassQuality
}

// ApplyReview updates entry scheduling using an SM-2 variant.
// quality: 0=total failure .. 5=perfect recall; values outside that range are clamped.
func ApplyReview(entry models.WordEntry, quality int, now time.Time) models.WordEntry {
	q := ClampQuality(quality)

	n := entry.ReviewCount + 1
	entry.AverageQuality = (entry.AverageQuality*float64(n-1) + float64(q)) / float64(n)
	entry.ReviewCount = n
	entry.LastReviewDate = models.TimePtr(now)

	if IsPass(q) {
		fq := float64(q)
		ef := entry.SrsEasinessFactor - 0.8 + 0.28*fq - 0.02*fq*fq
		if ef < models.MinEasinessFactor {
			ef = models.MinEasinessFactor
		}
		entry.SrsEasinessFactor = ef
		entry.SrsRepetition++

		switch entry.SrsRepetition {
		case 1:
			entry.SrsInterval = 1
		case 2:
			entry.SrsInterval = 6
		default:
			entry.SrsInterval = entry.SrsInterval * ef
		}
		entry.IsLearned = entry.SrsRepetition >= models.LearnedRepetitions
	} else {
		entry.SrsRepetition = 0
		entry.SrsInterval = 1
		entry.IsLearned = false
	}

	// Whole days only; the fractional part of the interval is dropped.
	days := int(math.Trunc(entry.SrsInterval))
	entry.NextReviewDate = models.TimePtr(now.Add(time.Duration(days) * 24 * time.Hour))
	return entry
}

// Reset restores the review state of entry to that of a word that was never studied,
// due immediately.
func Reset(entry models.WordEntry, now time.Time) models.WordEntry {
	entry.SrsInterval = 0
	entry.SrsRepetition = 0
	entry.SrsEasinessFactor = models.DefaultEasinessFactor
	entry.NextReviewDate = models.TimePtr(now)
	entry.LastReviewDate = nil
	entry.ReviewCount = 0
	entry.AverageQuality = 0
	entry.IsLearned = false
	return entry
}

// IsDue reports whether entry should be offered for review at now.
func IsDue(entry models.WordEntry, now time.Time) bool {
	if entry.NextReviewDate == nil {
		return true
	}
	return !entry.NextReviewDate.After(now) && !entry.IsLearned
}

// IsNew reports whether entry was never reviewed.
func IsNew(entry models.WordEntry) bool {
	return entry.SrsRepetition == 0 && entry.ReviewCount == 0
}
