// Package harvest runs the crawl modes end to end: it resolves targets, drives
// the crawler, merges the results into the stored corpus and records history.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bbsharvest/internal/config"
	"bbsharvest/internal/crawler"
	"bbsharvest/internal/logger"
	"bbsharvest/internal/metrics"
	"bbsharvest/internal/models"
	"bbsharvest/internal/store"
)

// Mode selects how a run crawls and what it persists.
type Mode string

// Run modes.
const (
	ModeSingle      Mode = "single"
	ModeBatch       Mode = "batch"
	ModeIncremental Mode = "incremental"
)

// ErrUnknownMode is returned for a mode that is none of the above.
var ErrUnknownMode = errors.New("unknown run mode")

// ParseMode converts a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSingle, ModeBatch, ModeIncremental:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Request describes one run.
type Request struct {
	Mode Mode
	// Targets selects target keys. Single mode uses the first key, or the
	// registry's current target when empty. Batch and incremental modes
	// crawl every target when empty.
	Targets []string
	// Incremental turns a single-target crawl into an incremental one.
	Incremental bool
	// Since overrides the time filter start.
	Since    time.Time
	MaxPages int
}

// Service wires the crawler to the stores.
type Service struct {
	cfg      *config.Config
	registry *crawler.Registry
	spider   *crawler.Spider
	corpus   *store.CorpusStore
	history  *store.HistoryStore
	metrics  *metrics.Collector
	log      *logger.Logger
	now      func() time.Time
}

// NewService builds a service from cfg. m may be nil.
func NewService(cfg *config.Config, fetcher crawler.PageFetcher, log *logger.Logger, m *metrics.Collector) (*Service, error) {
	registry, err := crawler.NewRegistry(cfg.ResolvedTargets(), cfg.Spider.DefaultTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to register targets: %w", err)
	}

	return &Service{
		cfg:      cfg,
		registry: registry,
		spider:   crawler.NewSpider(fetcher, log, m),
		corpus:   store.NewCorpusStore(cfg.Data.Dir, cfg.Data.BaseFilename, cfg.Data.WriteCSV, log),
		history:  store.NewHistoryStore(cfg.Data.HistoryPath(), log),
		metrics:  m,
		log:      log,
		now:      time.Now,
	}, nil
}

// Registry returns the target registry.
func (s *Service) Registry() *crawler.Registry {
	return s.registry
}

// Run executes req and reports the outcome to the metrics collector.
func (s *Service) Run(ctx context.Context, req Request) (*models.RunReport, error) {
	var (
		report *models.RunReport
		err    error
	)

	switch req.Mode {
	case ModeSingle:
		report, err = s.runSingle(ctx, req)
	case ModeBatch:
		report, err = s.runBatch(ctx, req)
	case ModeIncremental:
		report, err = s.runIncremental(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}

	corpusSize := -1
	if report != nil {
		corpusSize = report.CorpusSize
	}

	s.metrics.ObserveRun(string(req.Mode), err, corpusSize, s.now())

	return report, err
}

func (s *Service) begin(mode Mode, since time.Time) (*models.RunReport, *logger.Logger, *crawler.Spider) {
	report := &models.RunReport{
		RunID:      uuid.NewString(),
		Mode:       string(mode),
		StartedAt:  s.now().UTC(),
		Since:      since,
		CorpusSize: -1,
	}

	log := s.log.With("run_id", report.RunID, "mode", string(mode))

	return report, log, s.spider.WithLogger(log)
}

func (s *Service) finish(report *models.RunReport, log *logger.Logger) {
	report.Duration = s.now().Sub(report.StartedAt)

	log.Info("harvest run finished",
		"targets", len(report.Targets),
		"new_records", report.NewRecords,
		"corpus_size", report.CorpusSize,
		"files", len(report.Files),
		"duration", report.Duration.Round(time.Millisecond).String(),
	)
}

func (s *Service) options(req Request) crawler.Options {
	maxPages := s.cfg.Spider.MaxPages
	if req.MaxPages > 0 {
		maxPages = req.MaxPages
	}

	return crawler.Options{
		Since:              req.Since,
		MaxPages:           maxPages,
		PageSize:           s.cfg.Spider.PageSize,
		RequestDelay:       s.cfg.Spider.GetRequestDelay(),
		EarlyExitAfterPage: s.cfg.Spider.EarlyExitAfterPage,
	}
}

func (s *Service) selectTargets(keys []string) ([]models.CrawlTarget, error) {
	targets, unknown := s.registry.Select(keys)
	for _, key := range unknown {
		s.log.Warn("unknown target skipped", "target", key)
	}

	if len(targets) == 0 {
		return nil, crawler.ErrNoTargets
	}

	return targets, nil
}

// RunSingle crawls one target and writes <base>_<key>.json. With incremental
// set, records already in the combined corpus are skipped and the last crawl
// time is the default time filter.
func (s *Service) RunSingle(ctx context.Context, key string, incremental bool, since time.Time) (*models.RunReport, error) {
	req := Request{Mode: ModeSingle, Incremental: incremental, Since: since}
	if key != "" {
		req.Targets = []string{key}
	}

	return s.Run(ctx, req)
}

// RunBatch crawls the given targets, or all of them, one after another.
func (s *Service) RunBatch(ctx context.Context, keys []string, since time.Time) (*models.RunReport, error) {
	return s.Run(ctx, Request{Mode: ModeBatch, Targets: keys, Since: since})
}

// RunIncremental crawls the given targets, or all of them, for records not in
// the stored corpus, merges them in and records the run in the history file.
func (s *Service) RunIncremental(ctx context.Context, keys []string) (*models.RunReport, error) {
	return s.Run(ctx, Request{Mode: ModeIncremental, Targets: keys})
}

func (s *Service) runSingle(ctx context.Context, req Request) (*models.RunReport, error) {
	target := s.registry.Current()

	if len(req.Targets) > 0 {
		t, ok := s.registry.Get(req.Targets[0])
		if !ok {
			return nil, fmt.Errorf("%w: %s", crawler.ErrUnknownTarget, req.Targets[0])
		}

		target = t
	}

	opts := s.options(req)
	opts.Incremental = req.Incremental

	if req.Incremental {
		if opts.Since.IsZero() {
			if h, ok := s.history.Load(); ok {
				opts.Since = h.LastCrawlTime
			}
		}

		stored, err := s.corpus.LoadAll()
		if err != nil {
			return nil, err
		}

		opts.Seen = crawler.SeenSetFromRecords(stored)
	}

	report, log, spider := s.begin(ModeSingle, opts.Since)

	res, err := spider.Crawl(ctx, target, opts)
	if res != nil {
		report.Targets = append(report.Targets, res.Summary)
	}

	if err != nil {
		return report, err
	}

	report.NewRecords = len(res.Records)

	if len(res.Records) == 0 {
		log.Info("no records collected, nothing to save", "target", target.Key)
	} else {
		if err := s.corpus.SaveTarget(target.Key, res.Records); err != nil {
			return report, fmt.Errorf("failed to persist %s: %w", target.Key, err)
		}

		report.Files = append(report.Files, s.corpus.TargetPath(target.Key))
	}

	s.finish(report, log)

	return report, nil
}

func (s *Service) runBatch(ctx context.Context, req Request) (*models.RunReport, error) {
	targets, err := s.selectTargets(req.Targets)
	if err != nil {
		return nil, err
	}

	opts := s.options(req)
	report, log, spider := s.begin(ModeBatch, opts.Since)

	batch, err := spider.CrawlBatch(ctx, targets, opts, s.cfg.Spider.GetBatchDelay())
	if batch != nil {
		report.Targets = batch.Summaries()
	}

	if err != nil {
		return report, err
	}

	for _, key := range batch.Order {
		records := batch.Results[key].Records
		if len(records) == 0 {
			continue
		}

		if err := s.corpus.SaveTarget(key, records); err != nil {
			return report, fmt.Errorf("failed to persist %s: %w", key, err)
		}

		report.Files = append(report.Files, s.corpus.TargetPath(key))
	}

	all := batch.Records()
	report.NewRecords = len(all)

	if len(all) > 0 {
		if err := s.corpus.SaveAll(all); err != nil {
			return report, fmt.Errorf("failed to persist combined corpus: %w", err)
		}

		report.Files = append(report.Files, s.corpus.AllPath())
		report.CorpusSize = len(all)
	}

	s.finish(report, log)

	return report, nil
}

func (s *Service) runIncremental(ctx context.Context, req Request) (*models.RunReport, error) {
	targets, err := s.selectTargets(req.Targets)
	if err != nil {
		return nil, err
	}

	opts := s.options(req)
	opts.Incremental = true

	if opts.Since.IsZero() {
		if h, ok := s.history.Load(); ok {
			opts.Since = h.LastCrawlTime
		}
	}

	existing, err := s.corpus.LoadAll()
	if err != nil {
		return nil, err
	}

	opts.Seen = crawler.SeenSetFromRecords(existing)

	report, log, spider := s.begin(ModeIncremental, opts.Since)

	if opts.Since.IsZero() {
		log.Info("no previous crawl time, collecting everything not yet stored", "known_ids", opts.Seen.Len())
	}

	batch, err := spider.CrawlBatch(ctx, targets, opts, s.cfg.Spider.GetBatchDelay())
	if batch != nil {
		report.Targets = batch.Summaries()
	}

	if err != nil {
		log.Warn("incremental run interrupted, nothing persisted and history left unchanged")

		return report, err
	}

	merged, stats := store.MergeWithStats(existing, batch.Records())
	log.Info("merged new records into corpus",
		"existing", stats.Existing,
		"incoming", stats.Incoming,
		"added", stats.Added,
		"total", stats.Total,
	)

	report.NewRecords = stats.Added

	if err := s.corpus.SaveAll(merged); err != nil {
		return report, fmt.Errorf("failed to persist combined corpus: %w", err)
	}

	report.Files = append(report.Files, s.corpus.AllPath())
	report.CorpusSize = len(merged)

	for _, key := range batch.Order {
		records := batch.Results[key].Records

		if err := s.corpus.SaveIncremental(key, records); err != nil {
			return report, fmt.Errorf("failed to persist increment of %s: %w", key, err)
		}

		report.Files = append(report.Files, s.corpus.IncrementalPath(key))
	}

	h := models.CrawlHistory{LastCrawlTime: s.now().UTC(), TotalArticles: len(merged)}
	if err := s.history.Save(h); err != nil {
		return report, err
	}

	report.HistorySaved = true

	s.finish(report, log)

	return report, nil
}
