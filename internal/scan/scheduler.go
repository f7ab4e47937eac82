package scan

import (
	"context"
	"time"

	"scamguard/internal/config"
	"scamguard/pkg/logger"
)

// Scheduler drives the two scan jobs in-process: the periodic scan on a
// fixed interval and the nightly aggregation at a configured wall-clock
// time. Mutual exclusion per job type is enforced by the run tracker, not
// here, so multiple instances can share one database safely.
type Scheduler struct {
	cfg    config.ScanConfig
	engine *Engine
	logger *logger.Logger
}

func NewScheduler(cfg config.ScanConfig, engine *Engine, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		logger: log.WithComponent("scheduler"),
	}
}

// Run blocks until ctx is cancelled, firing jobs as they come due. An
// initial periodic scan runs immediately on startup.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("periodic_interval", s.cfg.PeriodicInterval).
		Int("nightly_hour", s.cfg.NightlyHour).
		Int("nightly_minute", s.cfg.NightlyMinute).
		Msg("scheduler started")

	periodic := time.NewTicker(s.cfg.PeriodicInterval)
	defer periodic.Stop()

	nightly := time.NewTimer(time.Until(s.nextNightly(time.Now().UTC())))
	defer nightly.Stop()

	s.firePeriodic(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-periodic.C:
			s.firePeriodic(ctx)
		case <-nightly.C:
			s.fireNightly(ctx)
			nightly.Reset(time.Until(s.nextNightly(time.Now().UTC())))
		}
	}
}

func (s *Scheduler) firePeriodic(ctx context.Context) {
	if err := s.engine.RunPeriodicScan(ctx); err != nil {
		s.logger.Error().Err(err).Msg("periodic scan failed")
	}
}

func (s *Scheduler) fireNightly(ctx context.Context) {
	// Aggregate the day that just ended.
	date := time.Now().UTC().AddDate(0, 0, -1)
	if err := s.engine.RunNightlySummary(ctx, date); err != nil {
		s.logger.Error().Err(err).Msg("nightly aggregation failed")
	}
}

// nextNightly returns the next occurrence of the configured nightly time,
// strictly after now.
func (s *Scheduler) nextNightly(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.NightlyHour, s.cfg.NightlyMinute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
