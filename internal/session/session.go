// Package session builds review sessions and tracks their progress.
package session

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/srs"
)

// Config bounds a session.
type Config struct {
	DueLimit         int
	Size             int
	MaxPresentations int
}

func DefaultConfig() Config {
	return Config{DueLimit: 10, Size: 20, MaxPresentations: 3}
}

// Builder selects and orders session queues.
type Builder struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBuilder(cfg Config, rng *rand.Rand) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Builder{cfg: cfg, rng: rng}
}

// Build selects up to DueLimit due entries, oldest schedule first and never
// scheduled before anything else, then fills up to Size with new entries and
// shuffles the result.
func (b *Builder) Build(entries []models.WordEntry, now time.Time) *Queue {
	var due, fresh []models.WordEntry
	for _, e := range entries {
		switch {
		case srs.IsDue(e, now):
			due = append(due, e)
		case srs.IsNew(e):
			fresh = append(fresh, e)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].NextReviewDate, due[j].NextReviewDate
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return true
		case b == nil:
			return false
		}
		return a.Before(*b)
	})
	if len(due) > b.cfg.DueLimit {
		due = due[:b.cfg.DueLimit]
	}

	ids := make([]string, 0, b.cfg.Size)
	selected := make(map[string]bool, b.cfg.Size)
	for _, e := range due {
		if len(ids) == b.cfg.Size {
			break
		}
		ids = append(ids, e.ID)
		selected[e.ID] = true
	}
	// Never-reviewed entries are both due and new; they may fill here too.
	for _, e := range entries {
		if len(ids) == b.cfg.Size {
			break
		}
		if selected[e.ID] || !srs.IsNew(e) {
			continue
		}
		ids = append(ids, e.ID)
		selected[e.ID] = true
	}

	b.mu.Lock()
	b.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	b.mu.Unlock()

	return newQueue(ids, b.cfg.MaxPresentations)
}

// Counters are the per-session tallies.
type Counters struct {
	TotalReviewed      int `json:"total_reviewed"`
	LearnedThisSession int `json:"learned_this_session"`
	FailedThisSession  int `json:"failed_this_session"`
}

// Queue is one session's ordered sequence of entry ids, including repeats
// appended after failed reviews. It is not persisted.
type Queue struct {
	id string

	mu               sync.Mutex
	items            []string
	pos              int
	copies           map[string]int
	history          []string
	counters         Counters
	maxPresentations int
}

func newQueue(ids []string, maxPresentations int) *Queue {
	if maxPresentations < 1 {
		maxPresentations = 1
	}
	q := &Queue{
		id:               uuid.NewString(),
		items:            ids,
		copies:           make(map[string]int, len(ids)),
		maxPresentations: maxPresentations,
	}
	for _, id := range ids {
		q.copies[id]++
	}
	return q
}

func (q *Queue) ID() string { return q.id }

// Current returns the entry id to present next.
func (q *Queue) Current() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pos >= len(q.items) {
		return "", false
	}
	return q.items[q.pos], true
}

// Done reports whether the queue is exhausted. An empty session is done
// from the start.
func (q *Queue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pos >= len(q.items)
}

// Remaining counts presentations still queued, the current one included.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.pos
}

func (q *Queue) Counters() Counters {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counters
}

// History returns the entry ids presented so far, in order.
func (q *Queue) History() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.history...)
}

// Record applies the outcome of presenting the current entry. before and
// after are the entry's states around the review. A failed entry is queued
// again at the end while it has fewer than the maximum number of copies.
func (q *Queue) Record(before, after models.WordEntry, quality int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pos >= len(q.items) {
		return fmt.Errorf("session %s is complete", q.id)
	}
	if cur := q.items[q.pos]; cur != before.ID {
		return fmt.Errorf("session %s expects entry %s, got %s", q.id, cur, before.ID)
	}
	q.pos++
	q.history = append(q.history, before.ID)
	q.counters.TotalReviewed++

	if !srs.IsPass(quality) {
		q.counters.FailedThisSession++
		if q.copies[before.ID] < q.maxPresentations {
			q.items = append(q.items, before.ID)
			q.copies[before.ID]++
		}
		return nil
	}
	if before.SrsRepetition < models.LearnedRepetitions && after.SrsRepetition >= models.LearnedRepetitions {
		q.counters.LearnedThisSession++
	}
	return nil
}

// Skip drops the current entry without counting it, e.g. after it was
// deleted mid-session.
func (q *Queue) Skip() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pos < len(q.items) {
		q.pos++
	}
}

// View is a read-only snapshot of a queue.
type View struct {
	ID        string   `json:"id"`
	Current   string   `json:"current,omitempty"`
	Remaining int      `json:"remaining"`
	Counters  Counters `json:"counters"`
	Done      bool     `json:"done"`
}

func (q *Queue) View() View {
	q.mu.Lock()
	defer q.mu.Unlock()
	v := View{
		ID:        q.id,
		Remaining: len(q.items) - q.pos,
		Counters:  q.counters,
		Done:      q.pos >= len(q.items),
	}
	if !v.Done {
		v.Current = q.items[q.pos]
	}
	return v
}
