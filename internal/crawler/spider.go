package crawler

import (
	"context"
	"fmt"
	"math"
	"time"

	"bbsharvest/internal/logger"
	"bbsharvest/internal/metrics"
	"bbsharvest/internal/models"
)

// Loop defaults.
const (
	DefaultPageSize           = 12
	DefaultMaxPages           = 100
	DefaultEarlyExitAfterPage = 3

	// failureWarnThreshold is the run of failed pages after which every
	// further failure is logged as a possible systematic outage.
	failureWarnThreshold = 3
)

// Options controls one crawl loop.
type Options struct {
	// Since enables the time filter when non-zero.
	Since time.Time
	// Seen is shared by every target of a batch. Nil starts an empty set.
	Seen               *SeenSet
	MaxPages           int
	PageSize           int
	RequestDelay       time.Duration
	EarlyExitAfterPage int
	Incremental        bool
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}

	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}

	if o.EarlyExitAfterPage <= 0 {
		o.EarlyExitAfterPage = DefaultEarlyExitAfterPage
	}

	if o.Seen == nil {
		o.Seen = NewSeenSet()
	}

	return o
}

// filtering reports whether records go through dedup and the time filter.
// A plain full crawl keeps every record the upstream returns.
func (o Options) filtering() bool {
	return o.Incremental || !o.Since.IsZero()
}

// Result is what one crawl loop hands back to its caller.
type Result struct {
	Target   models.CrawlTarget
	Records  []models.ArticleRecord
	Summary  models.RunSummary
	Attempts AttemptLog
}

// Spider drives fetch, parse and filter across the pages of a target.
// Pages are fetched strictly one at a time.
type Spider struct {
	fetcher PageFetcher
	parser  *Parser
	log     *logger.Logger
	metrics *metrics.Collector
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewSpider creates a spider. m may be nil.
func NewSpider(fetcher PageFetcher, log *logger.Logger, m *metrics.Collector) *Spider {
	return &Spider{
		fetcher: fetcher,
		parser:  NewParser(),
		log:     log,
		metrics: m,
		sleep:   sleepContext,
	}
}

// WithLogger returns a copy of the spider that logs to l.
func (s *Spider) WithLogger(l *logger.Logger) *Spider {
	c := *s
	c.log = l

	return &c
}

// Crawl runs the loop for one target until a termination condition holds.
// On cancellation it returns the partial result together with the context error.
func (s *Spider) Crawl(ctx context.Context, target models.CrawlTarget, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	res := &Result{
		Target:  target,
		Records: []models.ArticleRecord{},
	}
	res.Summary.Target = target.Key
	res.Summary.StartedAt = time.Now().UTC()

	log := s.log.With("target", target.Key)

	mode := "full"
	if opts.Incremental {
		mode = "incremental"
	}

	startArgs := []any{"mode", mode, "name", target.DisplayName(), "page_size", opts.PageSize, "max_pages", opts.MaxPages}
	if !opts.Since.IsZero() {
		startArgs = append(startArgs, "since", opts.Since.Format(time.RFC3339))
	}

	log.Info("crawl started", startArgs...)

	lastTotal := -1
	pageIndex := 1

	for {
		if err := ctx.Err(); err != nil {
			return s.canceled(res, log, err)
		}

		res.Summary.LastPage = pageIndex

		stop, err := s.step(ctx, log, res, opts, pageIndex, &lastTotal)
		if err != nil {
			return s.canceled(res, log, err)
		}

		if stop == "" && pageIndex >= opts.MaxPages {
			stop = models.StopMaxPages
		}

		if stop != "" {
			res.Summary.StopReason = stop

			break
		}

		pageIndex++

		if err := s.sleep(ctx, opts.RequestDelay); err != nil {
			return s.canceled(res, log, err)
		}
	}

	res.Summary.Duration = time.Since(res.Summary.StartedAt)

	log.Info("crawl finished",
		"mode", mode,
		"stop_reason", res.Summary.StopReason,
		"pages", res.Summary.PagesFetched,
		"failed_pages", res.Summary.PagesFailed,
		"malformed_pages", res.Summary.PagesMalformed,
		"records", len(res.Records),
		"duplicates", res.Summary.Duplicates,
		"time_filtered", res.Summary.TimeFiltered,
		"seen", opts.Seen.Len(),
	)

	return res, nil
}

// step handles one page. It returns a stop reason when the loop must end, and
// an error only when ctx was canceled during the request.
func (s *Spider) step(ctx context.Context, log *logger.Logger, res *Result, opts Options, pageIndex int, lastTotal *int) (models.StopReason, error) {
	target := res.Target.Key
	started := time.Now()

	payload, err := s.fetcher.FetchPage(ctx, res.Target, pageIndex, opts.PageSize)
	took := time.Since(started)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		res.Summary.PagesFailed++
		res.Attempts.Record(pageIndex, PageFailed, err, took)
		s.metrics.ObservePage(target, metrics.OutcomeFailed, took)

		args := []any{"page", pageIndex, "error", err}
		if n := res.Attempts.ConsecutiveFailures(); n >= failureWarnThreshold {
			args = append(args, "consecutive_failures", n)
		}

		log.Warn("page fetch failed, moving to next page", args...)

		return "", nil
	}

	page, err := ExtractPage(payload)
	if err != nil {
		res.Summary.PagesMalformed++
		res.Attempts.Record(pageIndex, PageMalformed, err, took)
		s.metrics.ObservePage(target, metrics.OutcomeMalformed, took)
		log.Warn("page payload malformed, moving to next page", "page", pageIndex, "error", err)

		return "", nil
	}

	res.Summary.PagesFetched++
	attempt := res.Attempts.Record(pageIndex, PageOK, nil, took)
	s.metrics.ObservePage(target, metrics.OutcomeOK, took)

	if page.HasTotal {
		totalPages := int(math.Ceil(float64(page.TotalCount) / float64(opts.PageSize)))

		if page.TotalCount != *lastTotal {
			*lastTotal = page.TotalCount
			res.Summary.TotalCount = page.TotalCount
			log.Info("total count reported", "total_count", page.TotalCount, "total_pages", totalPages)
		}

		if pageIndex > totalPages {
			log.Info("all pages fetched", "total_pages", totalPages)

			return models.StopTotalPages, nil
		}
	}

	records := s.parser.ParseItems(page.Items)
	attempt.Items = len(page.Items)
	res.Summary.RawRecords += len(page.Items)

	accepted := s.accumulate(log, res, opts, pageIndex, records)
	attempt.Accepted = accepted

	if opts.Incremental && accepted == 0 && pageIndex > opts.EarlyExitAfterPage {
		s.metrics.ObserveEarlyExitSignal(target)
		log.Info("no new records on this page, incremental catch-up is likely complete", "page", pageIndex)
	}

	if len(page.Items) < opts.PageSize {
		log.Info("short page, treating as last page", "page", pageIndex, "items", len(page.Items), "page_size", opts.PageSize)

		return models.StopShortPage, nil
	}

	return "", nil
}

// accumulate filters the page's records into the result and returns how many were accepted.
func (s *Spider) accumulate(log *logger.Logger, res *Result, opts Options, pageIndex int, records []models.ArticleRecord) int {
	target := res.Target.Key

	if !opts.filtering() {
		res.Records = append(res.Records, records...)
		res.Summary.Accepted += len(records)
		s.metrics.ObserveRecords(target, metrics.VerdictAccepted, len(records))
		log.Info("page fetched", "page", pageIndex, "records", len(records))

		return len(records)
	}

	var accepted, duplicates, stale int

	for i := range records {
		switch Evaluate(&records[i], opts.Seen, opts.Since) {
		case Accepted:
			res.Records = append(res.Records, records[i])
			accepted++
		case RejectedDuplicate:
			duplicates++
		case RejectedStale:
			stale++
		}
	}

	res.Summary.Accepted += accepted
	res.Summary.Duplicates += duplicates
	res.Summary.TimeFiltered += stale

	s.metrics.ObserveRecords(target, metrics.VerdictAccepted, accepted)
	s.metrics.ObserveRecords(target, metrics.VerdictDuplicate, duplicates)
	s.metrics.ObserveRecords(target, metrics.VerdictStale, stale)

	log.Info("page fetched",
		"page", pageIndex,
		"records", len(records),
		"new", accepted,
		"duplicates", duplicates,
		"time_filtered", stale,
	)

	return accepted
}

func (s *Spider) canceled(res *Result, log *logger.Logger, err error) (*Result, error) {
	res.Summary.StopReason = models.StopCanceled
	res.Summary.Duration = time.Since(res.Summary.StartedAt)
	log.Warn("crawl interrupted", "page", res.Summary.LastPage, "records", len(res.Records))

	return res, fmt.Errorf("crawl of %s interrupted: %w", res.Target.Key, err)
}

// BatchResult holds the per-target results of a batch, keyed by target key.
type BatchResult struct {
	Results map[string]*Result
	Order   []string
}

// Records concatenates the records of every target in crawl order.
func (b *BatchResult) Records() []models.ArticleRecord {
	var all []models.ArticleRecord

	for _, key := range b.Order {
		all = append(all, b.Results[key].Records...)
	}

	return all
}

// Total returns the number of records across all targets.
func (b *BatchResult) Total() int {
	n := 0
	for _, r := range b.Results {
		n += len(r.Records)
	}

	return n
}

// Summaries returns the per-target summaries in crawl order.
func (b *BatchResult) Summaries() []models.RunSummary {
	out := make([]models.RunSummary, 0, len(b.Order))
	for _, key := range b.Order {
		out = append(out, b.Results[key].Summary)
	}

	return out
}

// CrawlBatch crawls targets one after another, pausing between them. The
// seen set in opts is shared so a record is captured by one target only.
func (s *Spider) CrawlBatch(ctx context.Context, targets []models.CrawlTarget, opts Options, between time.Duration) (*BatchResult, error) {
	if opts.Seen == nil {
		opts.Seen = NewSeenSet()
	}

	batch := &BatchResult{Results: make(map[string]*Result, len(targets))}

	for i, target := range targets {
		if i > 0 {
			if err := s.sleep(ctx, between); err != nil {
				return batch, fmt.Errorf("batch interrupted: %w", err)
			}
		}

		res, err := s.Crawl(ctx, target, opts)
		if res != nil {
			if _, dup := batch.Results[target.Key]; !dup {
				batch.Order = append(batch.Order, target.Key)
			}

			batch.Results[target.Key] = res
		}

		if err != nil {
			return batch, err
		}

		s.log.Info("target crawl complete", "target", target.Key, "records", len(res.Records))
	}

	return batch, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
