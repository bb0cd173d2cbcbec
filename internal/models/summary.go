package models

import "time"

// StopReason explains why a crawl loop reached its terminal state.
type StopReason string

// Loop termination reasons.
const (
	StopTotalPages StopReason = "total_pages_reached"
	StopShortPage  StopReason = "short_page"
	StopMaxPages   StopReason = "max_pages_reached"
	StopCanceled   StopReason = "canceled"
)

// RunSummary holds per-target counters collected by one crawl loop.
type RunSummary struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Target         string        `json:"target"`
	StopReason     StopReason    `json:"stop_reason"`
	LastPage       int           `json:"last_page"`
	PagesFetched   int           `json:"pages_fetched"`
	PagesFailed    int           `json:"pages_failed"`
	PagesMalformed int           `json:"pages_malformed"`
	TotalCount     int           `json:"total_count"`
	RawRecords     int           `json:"raw_records"`
	Accepted       int           `json:"accepted"`
	Duplicates     int           `json:"duplicates"`
	TimeFiltered   int           `json:"time_filtered"`
}

// RunReport describes one harvest run across all of its targets. CorpusSize
// is -1 when the run did not write a combined corpus.
type RunReport struct {
	RunID        string        `json:"run_id"`
	Mode         string        `json:"mode"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Since        time.Time     `json:"since,omitzero"`
	Targets      []RunSummary  `json:"targets"`
	NewRecords   int           `json:"new_records"`
	CorpusSize   int           `json:"corpus_size"`
	Files        []string      `json:"files"`
	HistorySaved bool          `json:"history_saved"`
}
