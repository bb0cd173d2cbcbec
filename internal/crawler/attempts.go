package crawler

import (
	"fmt"
	"time"
)

// PageOutcome classifies one page request.
type PageOutcome string

// Page outcomes.
const (
	PageOK        PageOutcome = "ok"
	PageFailed    PageOutcome = "failed"
	PageMalformed PageOutcome = "malformed"
)

// AttemptResult records the result of one page request.
type AttemptResult struct {
	Timestamp time.Time
	Error     string
	Outcome   PageOutcome
	Page      int
	Items     int
	Accepted  int
	Duration  time.Duration
}

// AttemptLog is the ordered list of page requests of one crawl loop.
type AttemptLog struct {
	attempts []AttemptResult
}

// Record appends one page attempt.
func (l *AttemptLog) Record(page int, outcome PageOutcome, err error, duration time.Duration) *AttemptResult {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	l.attempts = append(l.attempts, AttemptResult{
		Timestamp: time.Now(),
		Page:      page,
		Outcome:   outcome,
		Error:     errMsg,
		Duration:  duration,
	})

	return &l.attempts[len(l.attempts)-1]
}

// Attempts returns the recorded attempts.
func (l *AttemptLog) Attempts() []AttemptResult {
	return l.attempts
}

// Stats aggregates the log.
func (l *AttemptLog) Stats() AttemptStats {
	var s AttemptStats

	for _, a := range l.attempts {
		s.Total++

		switch a.Outcome {
		case PageOK:
			s.OK++
		case PageFailed:
			s.Failed++
		case PageMalformed:
			s.Malformed++
		}

		s.Duration += a.Duration
	}

	return s
}

// ConsecutiveFailures returns how many of the latest attempts were not OK.
func (l *AttemptLog) ConsecutiveFailures() int {
	n := 0

	for i := len(l.attempts) - 1; i >= 0; i-- {
		if l.attempts[i].Outcome == PageOK {
			break
		}

		n++
	}

	return n
}

// AttemptStats contains statistics about page requests.
type AttemptStats struct {
	Total     int
	OK        int
	Failed    int
	Malformed int
	Duration  time.Duration
}

// String returns a string representation of attempt stats.
func (s AttemptStats) String() string {
	return fmt.Sprintf(
		"Pages: %d total, %d ok, %d failed, %d malformed (%.2fs)",
		s.Total,
		s.OK,
		s.Failed,
		s.Malformed,
		s.Duration.Seconds(),
	)
}
