package ai

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"scamguard/internal/config"
	"scamguard/internal/detection"
	"scamguard/internal/domain/models"
	"scamguard/pkg/logger"
)

// ErrQuotaExhausted signals that no further AI reviews are available; callers
// degrade to heuristics-only for the remainder of the run.
var ErrQuotaExhausted = errors.New("ai review quota exhausted")

// Quota gates AI reviews against a shared daily budget.
type Quota interface {
	// Consume takes one review from the daily budget, reporting whether any
	// remained.
	Consume(ctx context.Context) (bool, error)
}

// Reviewer escalates ambiguous verdicts to the AI provider. It is the outer
// guard around the provider: escalation band, rate limit, quota, timeout
// fallback, and the downgrade guard all live here, so provider failures never
// fail a message.
type Reviewer struct {
	cfg      config.AIConfig
	provider Provider
	fusion   *detection.Fusion
	limiter  *rate.Limiter
	quota    Quota
	logger   *logger.Logger
}

// Review is the outcome of one AI consultation.
type Review struct {
	Verdict   detection.Verdict
	Rationale string
	Candidate *models.CandidateRule
}

// NewReviewer creates a reviewer. quota may be nil when the budget is not
// enforced (tests, summarization mode).
func NewReviewer(cfg config.AIConfig, provider Provider, fusion *detection.Fusion, quota Quota, log *logger.Logger) *Reviewer {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &Reviewer{
		cfg:      cfg,
		provider: provider,
		fusion:   fusion,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		quota:    quota,
		logger:   log.WithComponent("ai-reviewer"),
	}
}

// RunBudget caps AI consultations within a single scan run.
func (r *Reviewer) RunBudget() int {
	if !r.cfg.Enabled {
		return 0
	}
	return r.cfg.MaxReviewsPerRun
}

// MiningBudget caps how many flags the nightly learner may send back through
// the classifier in one aggregation.
func (r *Reviewer) MiningBudget() int {
	if !r.cfg.Enabled {
		return 0
	}
	return r.cfg.MaxReviewsDaily
}

// ShouldEscalate reports whether a fused score falls in the escalation band.
func (r *Reviewer) ShouldEscalate(score float64) bool {
	return r.cfg.Enabled && score >= r.cfg.EscalationLow && score < r.cfg.EscalationHigh
}

// Refine consults the provider and applies its score adjustment to the fused
// verdict. Provider errors and timeouts are non-fatal: the pre-AI verdict is
// returned unchanged. ErrQuotaExhausted is the only error surfaced, so the
// caller can stop escalating for the rest of the run.
func (r *Reviewer) Refine(ctx context.Context, msg *models.Message, signals []models.DetectionSignal, verdict detection.Verdict) (Review, error) {
	review := Review{Verdict: verdict}

	if r.quota != nil {
		ok, err := r.quota.Consume(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Msg("quota check failed, skipping AI review")
			return review, nil
		}
		if !ok {
			return review, ErrQuotaExhausted
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return review, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	result, err := r.provider.Classify(callCtx, &ClassifyRequest{
		MessageText: msg.Body,
		Category:    verdict.Category,
		Signals:     signals,
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			return review, ErrQuotaExhausted
		}
		r.logger.Warn().Err(err).Str("sms_id", msg.ID.String()).Msg("AI review failed, using fused score")
		return review, nil
	}

	review.Verdict = r.apply(verdict, result)
	review.Rationale = result.Rationale
	review.Candidate = candidateFrom(result, msg.Body)
	return review, nil
}

// apply folds the AI adjustment into the verdict. The adjusted score stays in
// [0,100], and a pre-AI CRITICAL verdict can never land below HIGH without an
// explicit confirmed override.
func (r *Reviewer) apply(verdict detection.Verdict, result *ClassifyResult) detection.Verdict {
	adjusted := verdict.RiskScore + result.ScoreAdjustment
	if adjusted < 0 {
		adjusted = 0
	}
	if adjusted > 100 {
		adjusted = 100
	}

	level := r.fusion.Level(adjusted)
	if verdict.RiskLevel == models.RiskCritical && !result.ConfirmedOverride {
		if level != models.RiskCritical && level != models.RiskHigh {
			r.logger.Warn().
				Float64("pre_ai_score", verdict.RiskScore).
				Float64("adjusted_score", adjusted).
				Msg("blocked unconfirmed AI downgrade of CRITICAL verdict")
			adjusted = r.fusion.HighFloor()
			level = r.fusion.Level(adjusted)
		}
	}

	out := verdict
	out.RiskScore = adjusted
	out.RiskLevel = level
	out.DetectionMethod = appendMethod(verdict.DetectionMethod, models.DetectorAIReview)
	if result.IsScam && models.ValidCategory(result.ScamType) && out.Category == nil {
		c := result.ScamType
		out.Category = &c
	}
	return out
}

// SummarizeDay produces the nightly narrative. On provider failure a fallback
// narrative is returned rather than an error: the report is written either way.
func (r *Reviewer) SummarizeDay(ctx context.Context, req *SummaryRequest) string {
	if !r.cfg.Enabled {
		return ""
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return ""
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	result, err := r.provider.Summarize(callCtx, req)
	if err != nil {
		r.logger.Warn().Err(err).Msg("AI summary failed")
		return ""
	}
	return result.Narrative
}

// MineCandidate runs the classify path over an already-flagged message to
// hunt for rule candidates during nightly aggregation.
func (r *Reviewer) MineCandidate(ctx context.Context, flag *models.ScamFlag) (*models.CandidateRule, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	result, err := r.provider.Classify(callCtx, &ClassifyRequest{
		MessageText: flag.MessageText,
		Category:    flag.DetectionCategory,
	})
	if err != nil {
		return nil, err
	}
	return candidateFrom(result, flag.MessageText), nil
}

// candidateFrom turns a high-confidence new-pattern suggestion into a
// candidate rule, or nil.
func candidateFrom(result *ClassifyResult, example string) *models.CandidateRule {
	if !result.NewPatternDetected || result.PatternRegex == "" || result.Confidence <= 0.8 {
		return nil
	}
	category := result.ScamType
	if !models.ValidCategory(category) {
		category = models.CategoryOther
	}
	if len(example) > 100 {
		example = example[:100]
	}
	return &models.CandidateRule{
		Pattern:        result.PatternRegex,
		Category:       category,
		Confidence:     result.Confidence,
		ExampleMessage: example,
	}
}

// appendMethod adds a detector name to the method union, keeping it a
// sorted, duplicate-free list.
func appendMethod(method, name string) string {
	parts := []string{}
	if method != "" {
		parts = strings.Split(method, ",")
	}
	for _, p := range parts {
		if p == name {
			return method
		}
	}
	parts = append(parts, name)
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
