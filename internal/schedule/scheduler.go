// Package schedule triggers ingestion runs on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/cognicore/corpact/pkg/corpact/ingest"
	"github.com/cognicore/corpact/pkg/corpact/internalerr"
)

// RunFunc performs one ingestion run.
type RunFunc func(ctx context.Context) (ingest.Report, error)

// Scheduler fires RunFunc on a schedule. A tick that arrives while a run
// is still in flight is skipped.
type Scheduler struct {
	run     RunFunc
	cron    *cron.Cron
	logger  arbor.ILogger
	timeout time.Duration

	mu      sync.Mutex
	busy    sync.Mutex
	ctx     context.Context
	runs    int
	skipped int
}

// Parse validates a standard five-field expression or a descriptor such
// as "@daily" or "@every 1h".
func Parse(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %v: %w", spec, err, internalerr.ErrInvalidConfig)
	}
	return sched, nil
}

// New creates a scheduler. timeout bounds each run; zero means no bound.
func New(run RunFunc, logger arbor.ILogger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Scheduler{
		run:     run,
		cron:    cron.New(),
		logger:  logger,
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Start registers spec and begins firing. Runs derive their context from
// ctx, so cancelling it aborts the run in flight.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	sched, err := Parse(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Schedule(sched, cron.FuncJob(s.tick))
	s.cron.Start()

	s.logger.Info().
		Str("schedule", spec).
		Str("next", sched.Next(time.Now()).Format(time.RFC3339)).
		Msg("Ingestion scheduler started")
	return nil
}

// Stop halts the schedule and waits for a run in flight to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Ingestion scheduler stopped")
}

// Stats returns the number of completed and skipped ticks.
func (s *Scheduler) Stats() (runs, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.skipped
}

// RunNow performs a run immediately under the same overlap guard as the
// schedule. ran is false when a run was already in flight.
func (s *Scheduler) RunNow() (report ingest.Report, ran bool, err error) {
	return s.trigger()
}

func (s *Scheduler) tick() {
	_, _, _ = s.trigger()
}

func (s *Scheduler) trigger() (ingest.Report, bool, error) {
	if !s.busy.TryLock() {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous ingestion run still in progress, skipping tick")
		return ingest.Report{}, false, nil
	}
	defer s.busy.Unlock()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Info().Msg("Starting scheduled ingestion")
	report, err := s.run(ctx)

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("run_id", report.RunID).
			Msg("Scheduled ingestion failed")
		return report, true, err
	}

	s.logger.Info().
		Str("run_id", report.RunID).
		Int("saved", report.Saved).
		Int("duplicates", report.Duplicates).
		Int("fetch_errors", report.FetchErrors).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Scheduled ingestion completed")
	return report, true, nil
}
