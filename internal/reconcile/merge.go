package reconcile

import "github.com/vytor/lexisync/internal/models"

// Merge computes the local entry set after a full reconciliation.
//
// remote holds the owner's records already converted to synced entries. The
// result contains one entry per case-insensitive original among remote (see
// prefer for the pick), plus every unsynced local entry that no remote entry
// knows by id or by original. Synced local entries the remote no longer has
// are dropped.
//
// pending lists ids with an upload in flight. Such an unsynced local entry
// replaces the remote copy with the same id instead of being overwritten by
// it, unless a different remote entry already claims its original.
func Merge(local, remote []models.WordEntry, pending map[string]bool) []models.WordEntry {
	chosen := make(map[string]models.WordEntry, len(remote))
	remoteIDs := make(map[string]bool, len(remote))
	for _, e := range remote {
		remoteIDs[e.ID] = true
		k := e.Key()
		if cur, ok := chosen[k]; !ok || prefer(e, cur) {
			chosen[k] = e
		}
	}
	keyByID := make(map[string]string, len(chosen))
	for k, e := range chosen {
		keyByID[e.ID] = k
	}

	var kept []models.WordEntry
	for _, l := range local {
		if l.SyncFlag {
			continue
		}
		if c, ok := chosen[l.Key()]; ok && c.ID != l.ID {
			continue
		}
		if remoteIDs[l.ID] {
			if !pending[l.ID] {
				continue
			}
			if k, ok := keyByID[l.ID]; ok {
				delete(chosen, k)
			}
		}
		kept = append(kept, l)
	}

	out := make([]models.WordEntry, 0, len(chosen)+len(kept))
	for _, e := range chosen {
		out = append(out, e)
	}
	out = append(out, kept...)
	models.SortEntries(out)
	return out
}

// prefer reports whether a should win over b when both share an original:
// the most recently reviewed, then the most reviewed, then the smaller id.
func prefer(a, b models.WordEntry) bool {
	switch {
	case a.LastReviewDate != nil && b.LastReviewDate == nil:
		return true
	case a.LastReviewDate == nil && b.LastReviewDate != nil:
		return false
	case a.LastReviewDate != nil && !a.LastReviewDate.Equal(*b.LastReviewDate):
		return a.LastReviewDate.After(*b.LastReviewDate)
	case a.ReviewCount != b.ReviewCount:
		return a.ReviewCount > b.ReviewCount
	}
	return a.ID < b.ID
}
