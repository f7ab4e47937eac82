package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"scamguard/internal/domain/models"
	"scamguard/internal/infrastructure/database/repository"
)

// RunPeriodicScan fetches recent outbound messages, classifies them through
// the detector pipeline, and persists flags. Exactly one run record tracks
// the execution; per-message failures are logged and counted but never abort
// the run. If a run of the same type is already in progress the scan is
// skipped without error.
func (e *Engine) RunPeriodicScan(ctx context.Context) error {
	return e.runScan(ctx, models.RunPeriodic)
}

// RunManualScan is the operator-triggered variant of the periodic scan. It
// shares the pipeline but is tracked under its own run type, so it can run
// even while a scheduled scan would be due.
func (e *Engine) RunManualScan(ctx context.Context) error {
	return e.runScan(ctx, models.RunManual)
}

func (e *Engine) runScan(ctx context.Context, runType models.RunType) error {
	run, err := e.runs.Start(ctx, runType)
	if err != nil {
		if errors.Is(err, repository.ErrRunInProgress) {
			e.logger.Info().Str("run_type", string(runType)).Msg("scan already in progress, skipping")
			return nil
		}
		return fmt.Errorf("starting run: %w", err)
	}

	log := e.logger.WithRunID(run.ID.String())
	log.Info().Str("run_type", string(runType)).Msg("scan started")

	// Bookkeeping writes survive cancellation of the scan itself.
	bookCtx := context.WithoutCancel(ctx)

	until := time.Now().UTC()
	since := until.Add(-e.cfg.LookbackWindow)

	messages, err := e.source.FetchUnscanned(ctx, since, until)
	if err != nil {
		log.Error().Err(err).Msg("fetching messages failed")
		if ferr := e.runs.Fail(bookCtx, run.ID, fmt.Sprintf("fetch failed: %v", err)); ferr != nil {
			log.Error().Err(ferr).Msg("recording run failure failed")
		}
		return fmt.Errorf("fetching messages: %w", err)
	}

	var (
		mu        sync.Mutex
		scanned   int
		detected  int
		breakdown = map[string]int{}
	)
	aiState := e.newAIState()

	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(messages)
	}

	for start := 0; start < len(messages); start += batchSize {
		// Cancellation is honored between batches; in-flight messages finish.
		if err := ctx.Err(); err != nil {
			log.Warn().Int("scanned", scanned).Msg("scan cancelled")
			if ferr := e.runs.Fail(bookCtx, run.ID, fmt.Sprintf("cancelled: %v", err)); ferr != nil {
				log.Error().Err(ferr).Msg("recording run failure failed")
			}
			return err
		}

		end := start + batchSize
		if end > len(messages) {
			end = len(messages)
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, e.workers())
		for i := range messages[start:end] {
			msg := &messages[start+i]
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				flag := e.classify(ctx, msg, aiState)

				persisted := false
				if flag != nil {
					if err := e.persistFlag(ctx, flag); err != nil {
						log.Error().Err(err).Str("sms_id", msg.ID.String()).Msg("persisting flag failed")
					} else {
						persisted = true
					}
				}

				mu.Lock()
				defer mu.Unlock()
				scanned++
				if !persisted {
					return
				}
				detected++
				breakdown["risk:"+string(flag.RiskLevel)]++
				for _, method := range strings.Split(flag.DetectionMethod, ",") {
					breakdown["method:"+method]++
				}
			}()
		}
		wg.Wait()
	}

	if err := e.runs.Complete(bookCtx, run.ID, scanned, detected, breakdown); err != nil {
		log.Error().Err(err).Msg("completing run failed")
		return fmt.Errorf("completing run: %w", err)
	}

	log.Info().
		Int("scanned", scanned).
		Int("detected", detected).
		Msg("scan completed")
	return nil
}

func (e *Engine) workers() int {
	if e.cfg.Workers <= 0 {
		return 1
	}
	return e.cfg.Workers
}
