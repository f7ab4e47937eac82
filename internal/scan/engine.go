package scan

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"scamguard/internal/ai"
	"scamguard/internal/config"
	"scamguard/internal/detection"
	"scamguard/internal/domain/models"
	"scamguard/pkg/logger"
)

// MessageSource reads outbound messages from the external message store.
type MessageSource interface {
	FetchUnscanned(ctx context.Context, since, until time.Time) ([]models.Message, error)
}

// FlagStore persists scam flags with idempotent per-message dedup.
type FlagStore interface {
	Upsert(ctx context.Context, flag *models.ScamFlag) (*models.ScamFlag, error)
	ListForDate(ctx context.Context, date time.Time) ([]*models.ScamFlag, error)
}

// RunTracker records scan executions and enforces per-type mutual exclusion.
type RunTracker interface {
	Start(ctx context.Context, runType models.RunType) (*models.DetectionRun, error)
	Complete(ctx context.Context, id uuid.UUID, scanned, detected int, breakdown map[string]int) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
}

// ReportStore persists nightly reports keyed by date.
type ReportStore interface {
	Upsert(ctx context.Context, report *models.NightlyReport) (*models.NightlyReport, error)
}

// Engine is the detection and risk classification pipeline. It exposes
// exactly two entry points, RunPeriodicScan and RunNightlySummary; the
// scheduler that invokes them lives outside.
type Engine struct {
	cfg        config.ScanConfig
	matcher    *detection.PatternMatcher
	behavioral *detection.BehavioralDetector
	fusion     *detection.Fusion
	reviewer   *ai.Reviewer // nil when AI review is disabled
	rules      *detection.RuleSet

	source  MessageSource
	flags   FlagStore
	runs    RunTracker
	reports ReportStore

	retryBackoff time.Duration
	maxRetries   int

	logger *logger.Logger
}

// NewEngine wires the pipeline. reviewer may be nil.
func NewEngine(
	cfg config.ScanConfig,
	matcher *detection.PatternMatcher,
	behavioral *detection.BehavioralDetector,
	fusion *detection.Fusion,
	reviewer *ai.Reviewer,
	rules *detection.RuleSet,
	source MessageSource,
	flags FlagStore,
	runs RunTracker,
	reports ReportStore,
	log *logger.Logger,
) *Engine {
	return &Engine{
		cfg:          cfg,
		matcher:      matcher,
		behavioral:   behavioral,
		fusion:       fusion,
		reviewer:     reviewer,
		rules:        rules,
		source:       source,
		flags:        flags,
		runs:         runs,
		reports:      reports,
		retryBackoff: time.Second,
		maxRetries:   3,
		logger:       log.WithComponent("scan-engine"),
	}
}

// Rules exposes the active rule set for promotion of learned candidates.
func (e *Engine) Rules() *detection.RuleSet {
	return e.rules
}

// aiState tracks AI availability for one run: the quota degrade flag and
// the per-run consultation cap. Shared across the run's workers.
type aiState struct {
	down  atomic.Bool
	used  atomic.Int64
	limit int64
}

func (e *Engine) newAIState() *aiState {
	st := &aiState{limit: int64(^uint64(0) >> 1)}
	if e.reviewer != nil {
		if budget := e.reviewer.RunBudget(); budget > 0 {
			st.limit = int64(budget)
		}
	}
	return st
}

// reserve takes one consultation slot, reporting whether AI review is still
// available for this run.
func (s *aiState) reserve() bool {
	if s.down.Load() {
		return false
	}
	return s.used.Add(1) <= s.limit
}

// classify runs the detectors and fusion for one message and, when the
// fused score falls in the escalation band and the run's AI budget allows,
// consults the AI reviewer. The returned flag is nil for below-floor
// messages.
func (e *Engine) classify(ctx context.Context, msg *models.Message, st *aiState) *models.ScamFlag {
	signals := e.matcher.Check(msg.Body)
	signals = append(signals, e.behavioral.Check(ctx, msg)...)

	verdict := e.fusion.Fuse(signals)
	if !verdict.Flagged {
		return nil
	}

	var rationale string
	if e.reviewer != nil && e.reviewer.ShouldEscalate(verdict.RiskScore) && st.reserve() {
		review, err := e.reviewer.Refine(ctx, msg, signals, verdict)
		if err != nil {
			// Quota exhausted: heuristics-only for the rest of the run.
			e.logger.Warn().Msg("AI review quota exhausted, degrading to heuristics-only")
			st.down.Store(true)
		} else {
			verdict = review.Verdict
			rationale = review.Rationale
		}
	}

	flag := &models.ScamFlag{
		SMSID:             msg.ID,
		AccountID:         msg.AccountID,
		IsScam:            true,
		RiskLevel:         verdict.RiskLevel,
		RiskScore:         verdict.RiskScore,
		DetectionMethod:   verdict.DetectionMethod,
		DetectionCategory: verdict.Category,
		PatternMatched:    verdict.PatternMatched,
		BehavioralFlags:   verdict.BehavioralFlags,
		AIRationale:       rationale,
		MessageText:       msg.Body,
		FromNumber:        msg.FromNumber,
		ToNumber:          msg.ToNumber,
		SentAt:            msg.SentAt,
	}
	return flag
}

// persistFlag writes a flag with bounded retry for transient store errors.
func (e *Engine) persistFlag(ctx context.Context, flag *models.ScamFlag) error {
	operation := func() error {
		_, err := e.flags.Upsert(ctx, flag)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(e.retryBackoff)),
		uint64(e.maxRetries),
	), ctx)
	return backoff.Retry(operation, policy)
}
