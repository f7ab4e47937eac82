package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scamguard/internal/ai"
	"scamguard/internal/domain/models"
	"scamguard/internal/infrastructure/database/repository"
)

// RunNightlySummary aggregates one UTC calendar day of flags into a nightly
// report: counts by risk level, category, and detection method, the reviewed
// false-positive rate, candidate rules mined from high-risk flags, and an AI
// narrative. Reprocessing a date overwrites its report.
func (e *Engine) RunNightlySummary(ctx context.Context, date time.Time) error {
	run, err := e.runs.Start(ctx, models.RunNightly)
	if err != nil {
		if errors.Is(err, repository.ErrRunInProgress) {
			e.logger.Info().Msg("nightly aggregation already in progress, skipping")
			return nil
		}
		return fmt.Errorf("starting run: %w", err)
	}

	day := date.UTC().Truncate(24 * time.Hour)
	log := e.logger.WithRunID(run.ID.String())
	log.Info().Str("report_date", day.Format("2006-01-02")).Msg("nightly aggregation started")

	bookCtx := context.WithoutCancel(ctx)

	flags, err := e.flags.ListForDate(ctx, day)
	if err != nil {
		log.Error().Err(err).Msg("listing flags failed")
		if ferr := e.runs.Fail(bookCtx, run.ID, fmt.Sprintf("listing flags failed: %v", err)); ferr != nil {
			log.Error().Err(ferr).Msg("recording run failure failed")
		}
		return fmt.Errorf("listing flags: %w", err)
	}

	report := e.aggregate(day, flags)
	report.NewPatterns = e.mineCandidates(ctx, flags)
	report.ActionItems = actionItems(report)

	if e.reviewer != nil {
		report.AISummary = e.reviewer.SummarizeDay(ctx, e.summaryRequest(report))
	}

	if _, err := e.reports.Upsert(bookCtx, report); err != nil {
		log.Error().Err(err).Msg("writing report failed")
		if ferr := e.runs.Fail(bookCtx, run.ID, fmt.Sprintf("writing report failed: %v", err)); ferr != nil {
			log.Error().Err(ferr).Msg("recording run failure failed")
		}
		return fmt.Errorf("writing report: %w", err)
	}

	breakdown := map[string]int{}
	for level, n := range report.ByRiskLevel {
		breakdown["risk:"+level] = n
	}
	if err := e.runs.Complete(bookCtx, run.ID, len(flags), report.TotalScamsDetected, breakdown); err != nil {
		log.Error().Err(err).Msg("completing run failed")
		return fmt.Errorf("completing run: %w", err)
	}

	log.Info().
		Int("total_scams", report.TotalScamsDetected).
		Int("new_patterns", len(report.NewPatterns)).
		Msg("nightly aggregation completed")
	return nil
}

// aggregate builds the count sections of the report from the day's flags.
func (e *Engine) aggregate(day time.Time, flags []*models.ScamFlag) *models.NightlyReport {
	report := &models.NightlyReport{
		ReportDate:         day,
		TotalScamsDetected: len(flags),
		ByRiskLevel:        map[string]int{},
		ByCategory:         map[string]int{},
		DetectionMethods:   map[string]int{},
	}

	var confirmed, falsePositives int
	for _, flag := range flags {
		report.ByRiskLevel[string(flag.RiskLevel)]++
		if flag.DetectionCategory != nil {
			report.ByCategory[string(*flag.DetectionCategory)]++
		}
		for _, method := range strings.Split(flag.DetectionMethod, ",") {
			if method != "" {
				report.DetectionMethods[method]++
			}
		}

		if !flag.Reviewed || flag.ReviewStatus == nil {
			continue
		}
		switch *flag.ReviewStatus {
		case models.ReviewConfirmedScam:
			confirmed++
		case models.ReviewFalsePositive:
			falsePositives++
		}
	}

	// The rate only exists once at least one flag has a review verdict.
	if reviewed := confirmed + falsePositives; reviewed > 0 {
		rate := float64(falsePositives) / float64(reviewed) * 100
		report.FalsePositiveRate = &rate
	}
	return report
}

// mineCandidates sends the day's high-risk unreviewed flags back through the
// AI classifier hunting for rule candidates. The per-day review budget caps
// how many flags are examined; mining failures skip the flag.
func (e *Engine) mineCandidates(ctx context.Context, flags []*models.ScamFlag) []models.CandidateRule {
	if e.reviewer == nil {
		return nil
	}

	budget := e.reviewer.MiningBudget()
	candidates := []models.CandidateRule{}
	seen := map[string]bool{}
	for _, flag := range flags {
		if budget <= 0 {
			break
		}
		if flag.Reviewed {
			continue
		}
		if flag.RiskLevel != models.RiskCritical && flag.RiskLevel != models.RiskHigh {
			continue
		}

		budget--
		candidate, err := e.reviewer.MineCandidate(ctx, flag)
		if err != nil {
			e.logger.Warn().Err(err).Str("flag_id", flag.ID.String()).Msg("candidate mining failed")
			continue
		}
		if candidate == nil || seen[candidate.Pattern] {
			continue
		}
		seen[candidate.Pattern] = true
		candidates = append(candidates, *candidate)
	}
	return candidates
}

func (e *Engine) summaryRequest(report *models.NightlyReport) *ai.SummaryRequest {
	return &ai.SummaryRequest{
		Date:              report.ReportDate.Format("2006-01-02"),
		TotalScams:        report.TotalScamsDetected,
		ByRiskLevel:       report.ByRiskLevel,
		FalsePositiveRate: report.FalsePositiveRate,
	}
}

// actionItems derives operational follow-ups from the aggregates.
func actionItems(report *models.NightlyReport) []models.ActionItem {
	items := []models.ActionItem{}

	if report.TotalScamsDetected > 100 {
		items = append(items, models.ActionItem{
			Priority:       "high",
			Action:         "investigate_volume_spike",
			Recommendation: fmt.Sprintf("%d scams detected in one day; check for a coordinated campaign", report.TotalScamsDetected),
		})
	}
	if n := report.ByRiskLevel[string(models.RiskCritical)]; n > 0 {
		items = append(items, models.ActionItem{
			Priority:       "critical",
			Action:         "review_critical_flags",
			Recommendation: fmt.Sprintf("%d CRITICAL flags need human review", n),
		})
	}
	if report.FalsePositiveRate != nil && *report.FalsePositiveRate > 50 {
		items = append(items, models.ActionItem{
			Priority:       "high",
			Action:         "tune_detection_rules",
			Recommendation: fmt.Sprintf("false-positive rate at %.1f%%; detection weights need tuning", *report.FalsePositiveRate),
		})
	}
	if len(report.NewPatterns) > 0 {
		items = append(items, models.ActionItem{
			Priority:       "medium",
			Action:         "review_candidate_rules",
			Recommendation: fmt.Sprintf("%d candidate patterns await promotion", len(report.NewPatterns)),
		})
	}
	return items
}
