package store

import (
	"encoding/json"

	"bbsharvest/internal/models"
)

// Merge appends incoming records to existing ones, dropping any incoming record
// whose id is already present. The first record seen for an id wins and the
// relative order of both lists is kept.
//
// Records without an id are never matched by id. They are only dropped when an
// identical record is already part of existing, which keeps re-merging an
// already merged corpus a no-op.
func Merge(existing, incoming []models.ArticleRecord) []models.ArticleRecord {
	merged := make([]models.ArticleRecord, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)

	ids := make(map[string]struct{}, len(existing)+len(incoming))
	anonymous := make(map[string]struct{})

	for i := range existing {
		if existing[i].HasID() {
			ids[existing[i].ID] = struct{}{}
		} else if fp, ok := fingerprint(&existing[i]); ok {
			anonymous[fp] = struct{}{}
		}
	}

	for i := range incoming {
		r := &incoming[i]

		if !r.HasID() {
			if fp, ok := fingerprint(r); ok {
				if _, dup := anonymous[fp]; dup {
					continue
				}
			}

			merged = append(merged, *r)

			continue
		}

		if _, dup := ids[r.ID]; dup {
			continue
		}

		ids[r.ID] = struct{}{}
		merged = append(merged, *r)
	}

	return merged
}

// MergeStats describes the outcome of a merge.
type MergeStats struct {
	Existing int
	Incoming int
	Added    int
	Total    int
}

// MergeWithStats is Merge plus counters for logging.
func MergeWithStats(existing, incoming []models.ArticleRecord) ([]models.ArticleRecord, MergeStats) {
	merged := Merge(existing, incoming)

	return merged, MergeStats{
		Existing: len(existing),
		Incoming: len(incoming),
		Added:    len(merged) - len(existing),
		Total:    len(merged),
	}
}

func fingerprint(r *models.ArticleRecord) (string, bool) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", false
	}

	return string(data), true
}
