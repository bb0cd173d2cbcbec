// Package scheduler runs harvest jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bbsharvest/internal/logger"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler triggers jobs from standard five-field cron expressions. A tick
// that fires while the previous run of the same job is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *logger.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a scheduler in loc. A nil loc means UTC.
func New(log *logger.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Schedule registers job under name. Scheduling a name again replaces the
// previous entry. Every run receives ctx.
func (s *Scheduler) Schedule(ctx context.Context, name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		s.run(ctx, name, job)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	s.entries[name] = id
	s.log.Info("job scheduled", "job", name, "cron", spec, "next_run", s.cron.Entry(id).Next)

	return nil
}

// RunNow runs the named job once, outside the schedule but under the same
// overlap guard.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()

	if !ok {
		return false
	}

	s.cron.Entry(id).WrappedJob.Run()

	return true
}

// Next returns the next activation time of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}

	return s.cron.Entry(id).Next, true
}

// Start begins dispatching in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops dispatching and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	s.log.Info("scheduled job started", "job", name)

	if err := job(ctx); err != nil {
		s.log.Error("scheduled job failed", "job", name, "error", err, "duration", time.Since(started).String())

		return
	}

	s.log.Info("scheduled job finished", "job", name, "duration", time.Since(started).String())
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if msg == "skip" {
		l.log.Warn("previous run still in progress, tick skipped")

		return
	}

	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
