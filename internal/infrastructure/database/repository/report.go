package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"scamguard/internal/domain/models"
	"scamguard/internal/infrastructure/database"
)

// ReportRepository owns the nightly_scam_reports relation. Reports are keyed
// by calendar date: reprocessing a date overwrites its row, never duplicates.
type ReportRepository struct {
	db database.DBTX
}

// NewReportRepository creates a new report repository
func NewReportRepository(db database.DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, report_date, total_scams_detected, scams_by_risk_level,
	scams_by_category, detection_methods, false_positive_rate,
	new_patterns_learned, ai_summary, action_items, created_at`

// Upsert writes a report for its date, replacing any earlier one.
func (r *ReportRepository) Upsert(ctx context.Context, report *models.NightlyReport) (*models.NightlyReport, error) {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}

	byRisk, err := toJSONB(report.ByRiskLevel)
	if err != nil {
		return nil, err
	}
	byCategory, err := toJSONB(report.ByCategory)
	if err != nil {
		return nil, err
	}
	methods, err := toJSONB(report.DetectionMethods)
	if err != nil {
		return nil, err
	}
	patterns, err := toJSONB(orEmptySlice(report.NewPatterns))
	if err != nil {
		return nil, err
	}
	actions, err := toJSONB(orEmptySlice(report.ActionItems))
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO nightly_scam_reports (
			id, report_date, total_scams_detected, scams_by_risk_level,
			scams_by_category, detection_methods, false_positive_rate,
			new_patterns_learned, ai_summary, action_items
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (report_date) DO UPDATE SET
			total_scams_detected = EXCLUDED.total_scams_detected,
			scams_by_risk_level = EXCLUDED.scams_by_risk_level,
			scams_by_category = EXCLUDED.scams_by_category,
			detection_methods = EXCLUDED.detection_methods,
			false_positive_rate = EXCLUDED.false_positive_rate,
			new_patterns_learned = EXCLUDED.new_patterns_learned,
			ai_summary = EXCLUDED.ai_summary,
			action_items = EXCLUDED.action_items
		RETURNING id, created_at`

	err = r.db.QueryRow(ctx, query,
		report.ID, reportDate(report.ReportDate), report.TotalScamsDetected, byRisk,
		byCategory, methods, float8OrNull(report.FalsePositiveRate),
		patterns, report.AISummary, actions,
	).Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert nightly report: %w", err)
	}
	return report, nil
}

// GetByDate retrieves the report for a calendar date.
func (r *ReportRepository) GetByDate(ctx context.Context, date time.Time) (*models.NightlyReport, error) {
	query := `SELECT ` + reportColumns + ` FROM nightly_scam_reports WHERE report_date = $1`
	return r.scanReport(r.db.QueryRow(ctx, query, reportDate(date)))
}

// List returns the most recent reports, newest first.
func (r *ReportRepository) List(ctx context.Context, limit int) ([]*models.NightlyReport, error) {
	query := `SELECT ` + reportColumns + ` FROM nightly_scam_reports ORDER BY report_date DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list nightly reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.NightlyReport
	for rows.Next() {
		report, err := r.scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (r *ReportRepository) scanReport(row pgx.Row) (*models.NightlyReport, error) {
	var report models.NightlyReport
	var byRisk, byCategory, methods, patterns, actions []byte
	var fpRate *float64

	err := row.Scan(
		&report.ID, &report.ReportDate, &report.TotalScamsDetected, &byRisk,
		&byCategory, &methods, &fpRate, &patterns, &report.AISummary, &actions,
		&report.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan nightly report: %w", err)
	}

	report.FalsePositiveRate = fpRate
	report.ByRiskLevel = make(map[string]int)
	report.ByCategory = make(map[string]int)
	report.DetectionMethods = make(map[string]int)
	for _, pair := range []struct {
		data []byte
		dest any
	}{
		{byRisk, &report.ByRiskLevel},
		{byCategory, &report.ByCategory},
		{methods, &report.DetectionMethods},
		{patterns, &report.NewPatterns},
		{actions, &report.ActionItems},
	} {
		if err := fromJSONB(pair.data, pair.dest); err != nil {
			return nil, fmt.Errorf("failed to decode nightly report column: %w", err)
		}
	}
	return &report, nil
}

// reportDate truncates to the UTC calendar date the report is keyed by.
func reportDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func orEmptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
