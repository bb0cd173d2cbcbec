package crawler

import (
	"strconv"
	"strings"
	"time"

	"bbsharvest/internal/models"
)

// millisecondThreshold separates epoch seconds from epoch milliseconds.
const millisecondThreshold = 1_000_000_000_000

// ParseTimestamp interprets an integer epoch string. Values above 1e12 are
// milliseconds. Empty or non-integer input reports false.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	if n > millisecondThreshold {
		return time.UnixMilli(n).UTC(), true
	}

	return time.Unix(n, 0).UTC(), true
}

// EffectiveTime is the update time when parseable, else the publish time.
func EffectiveTime(r *models.ArticleRecord) (time.Time, bool) {
	if t, ok := ParseTimestamp(r.UpdateTime); ok {
		return t, true
	}

	return ParseTimestamp(r.PublishTime)
}

// SeenSet is the working set of identifiers already captured. It only grows.
type SeenSet struct {
	ids map[string]struct{}
}

// NewSeenSet creates a set holding the given non-empty identifiers.
func NewSeenSet(ids ...string) *SeenSet {
	s := &SeenSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}

	return s
}

// SeenSetFromRecords seeds a set from previously persisted records.
func SeenSetFromRecords(records []models.ArticleRecord) *SeenSet {
	s := &SeenSet{ids: make(map[string]struct{}, len(records))}
	for i := range records {
		s.Add(records[i].ID)
	}

	return s
}

// Add inserts id. Empty identifiers are ignored.
func (s *SeenSet) Add(id string) {
	if id == "" {
		return
	}

	s.ids[id] = struct{}{}
}

// Contains reports whether id has been seen.
func (s *SeenSet) Contains(id string) bool {
	_, ok := s.ids[id]

	return ok
}

// Len returns the number of identifiers in the set.
func (s *SeenSet) Len() int {
	return len(s.ids)
}

// Verdict is the outcome of filtering one record.
type Verdict int

// Filter verdicts.
const (
	Accepted Verdict = iota
	RejectedDuplicate
	RejectedStale
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case RejectedDuplicate:
		return "duplicate"
	case RejectedStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Evaluate decides whether record is new relative to seen and since. A zero
// since disables the time check. Records whose time cannot be determined are
// accepted. Accepted identifiers are added to seen.
func Evaluate(record *models.ArticleRecord, seen *SeenSet, since time.Time) Verdict {
	if record.HasID() && seen.Contains(record.ID) {
		return RejectedDuplicate
	}

	if !since.IsZero() {
		if t, ok := EffectiveTime(record); ok && !t.After(since) {
			return RejectedStale
		}
	}

	seen.Add(record.ID)

	return Accepted
}

// Accept reports whether the record passes the dedup and time filters.
func Accept(record *models.ArticleRecord, seen *SeenSet, since time.Time) bool {
	return Evaluate(record, seen, since) == Accepted
}
