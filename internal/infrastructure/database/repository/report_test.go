package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamguard/internal/domain/models"
)

func newReportMock(t *testing.T) (pgxmock.PgxPoolIface, *ReportRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewReportRepository(mock)
}

func TestReportRepositoryUpsertTruncatesDate(t *testing.T) {
	mock, repo := newReportMock(t)

	report := &models.NightlyReport{
		// Mid-day timestamp; the row key must be the calendar date.
		ReportDate:         time.Date(2026, 8, 25, 13, 45, 0, 0, time.UTC),
		TotalScamsDetected: 3,
		ByRiskLevel:        map[string]int{"HIGH": 3},
		ByCategory:         map[string]int{"phishing": 3},
		DetectionMethods:   map[string]int{"pattern": 3},
		AISummary:          "phishing burst from one sender",
	}

	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO nightly_scam_reports`).
		WithArgs(
			pgxmock.AnyArg(), day, 3, []byte(`{"HIGH":3}`),
			[]byte(`{"phishing":3}`), []byte(`{"pattern":3}`), pgxmock.AnyArg(),
			[]byte(`[]`), report.AISummary, []byte(`[]`),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow(uuid.New(), time.Now().UTC()))

	saved, err := repo.Upsert(context.Background(), report)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryGetByDateNotFound(t *testing.T) {
	mock, repo := newReportMock(t)

	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM nightly_scam_reports WHERE report_date = \$1`).
		WithArgs(day).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByDate(context.Background(), day)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryGetByDate(t *testing.T) {
	mock, repo := newReportMock(t)
	id := uuid.New()
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	fpRate := 20.0

	rows := pgxmock.NewRows([]string{
		"id", "report_date", "total_scams_detected", "scams_by_risk_level",
		"scams_by_category", "detection_methods", "false_positive_rate",
		"new_patterns_learned", "ai_summary", "action_items", "created_at",
	}).AddRow(
		id, day, 6, []byte(`{"CRITICAL":1,"HIGH":3,"MEDIUM":2}`),
		[]byte(`{"phishing":4,"financial_fraud":2}`), []byte(`{"pattern":5,"behavioral":3}`), &fpRate,
		[]byte(`[{"pattern":"crypto.*doubling","category":"financial_fraud","confidence":0.9}]`),
		"summary", []byte(`[{"action":"review_critical_flags","priority":"critical"}]`),
		time.Now().UTC(),
	)

	mock.ExpectQuery(`FROM nightly_scam_reports WHERE report_date = \$1`).
		WithArgs(day).
		WillReturnRows(rows)

	report, err := repo.GetByDate(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, id, report.ID)
	assert.Equal(t, 6, report.TotalScamsDetected)
	assert.Equal(t, map[string]int{"CRITICAL": 1, "HIGH": 3, "MEDIUM": 2}, report.ByRiskLevel)
	assert.Equal(t, map[string]int{"pattern": 5, "behavioral": 3}, report.DetectionMethods)
	require.NotNil(t, report.FalsePositiveRate)
	assert.InDelta(t, 20.0, *report.FalsePositiveRate, 0.001)
	require.Len(t, report.NewPatterns, 1)
	assert.Equal(t, "crypto.*doubling", report.NewPatterns[0].Pattern)
	require.Len(t, report.ActionItems, 1)
	assert.Equal(t, "review_critical_flags", report.ActionItems[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryList(t *testing.T) {
	mock, repo := newReportMock(t)

	rows := pgxmock.NewRows([]string{
		"id", "report_date", "total_scams_detected", "scams_by_risk_level",
		"scams_by_category", "detection_methods", "false_positive_rate",
		"new_patterns_learned", "ai_summary", "action_items", "created_at",
	}).
		AddRow(uuid.New(), time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), 6,
			[]byte(`{}`), []byte(`{}`), []byte(`{}`), nil, []byte(`[]`), "", []byte(`[]`), time.Now().UTC()).
		AddRow(uuid.New(), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), 2,
			[]byte(`{}`), []byte(`{}`), []byte(`{}`), nil, []byte(`[]`), "", []byte(`[]`), time.Now().UTC())

	mock.ExpectQuery(`FROM nightly_scam_reports ORDER BY report_date DESC LIMIT \$1`).
		WithArgs(30).
		WillReturnRows(rows)

	reports, err := repo.List(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 6, reports[0].TotalScamsDetected)
	assert.Nil(t, reports[1].FalsePositiveRate)
	require.NoError(t, mock.ExpectationsWereMet())
}
