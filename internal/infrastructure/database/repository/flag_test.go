package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamguard/internal/domain/models"
)

func newFlagMock(t *testing.T) (pgxmock.PgxPoolIface, *FlagRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewFlagRepository(mock)
}

func testFlag() *models.ScamFlag {
	category := models.CategoryPhishing
	return &models.ScamFlag{
		SMSID:             uuid.New(),
		AccountID:         uuid.New(),
		IsScam:            true,
		RiskLevel:         models.RiskHigh,
		RiskScore:         82,
		DetectionMethod:   "behavioral,pattern",
		DetectionCategory: &category,
		PatternMatched:    "phish-001: account suspended",
		BehavioralFlags:   map[string]any{"excessive_caps": true},
		MessageText:       "Your account is suspended, click here",
		FromNumber:        "+15550000001",
		ToNumber:          "+15550000002",
		SentAt:            time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC),
	}
}

// flagRow builds a full scam_flags result row matching flagColumns order.
func flagRow(f *models.ScamFlag) *pgxmock.Rows {
	now := time.Now().UTC()
	var category any
	if f.DetectionCategory != nil {
		category = pgtype.Text{String: string(*f.DetectionCategory), Valid: true}
	}
	return pgxmock.NewRows([]string{
		"id", "sms_id", "account_id", "is_scam", "risk_level", "risk_score",
		"detection_method", "detection_category", "pattern_matched", "behavioral_flags", "ai_rationale",
		"message_text", "from_number", "to_number", "sent_at",
		"reviewed", "review_status", "review_notes", "reviewed_by", "reviewed_at",
		"flagged_at", "created_at", "updated_at",
	}).AddRow(
		f.ID, f.SMSID, f.AccountID, f.IsScam, f.RiskLevel, f.RiskScore,
		f.DetectionMethod, category, f.PatternMatched, []byte(`{"excessive_caps":true}`), f.AIRationale,
		f.MessageText, f.FromNumber, f.ToNumber, f.SentAt,
		f.Reviewed, pgtype.Text{String: string(models.ReviewPending), Valid: true}, nil, nil, nil,
		now, now, now,
	)
}

func TestFlagRepositoryUpsert(t *testing.T) {
	mock, repo := newFlagMock(t)
	f := testFlag()
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO scam_flags`).
		WithArgs(
			pgxmock.AnyArg(), f.SMSID, f.AccountID, true, models.RiskHigh, 82.0,
			"behavioral,pattern", pgxmock.AnyArg(), f.PatternMatched,
			[]byte(`{"excessive_caps":true}`), "",
			f.MessageText, f.FromNumber, f.ToNumber, f.SentAt,
			string(models.ReviewPending), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "flagged_at", "created_at", "updated_at"}).
			AddRow(uuid.New(), now, now, now))

	saved, err := repo.Upsert(context.Background(), f)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, saved.ID)
	assert.False(t, saved.FlaggedAt.IsZero())
	assert.False(t, saved.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryUpsertKeepsAssignedID(t *testing.T) {
	mock, repo := newFlagMock(t)
	f := testFlag()
	f.ID = uuid.New()
	f.FlaggedAt = time.Date(2026, 8, 25, 14, 5, 0, 0, time.UTC)
	want := f.ID

	mock.ExpectQuery(`INSERT INTO scam_flags`).
		WithArgs(
			want, f.SMSID, f.AccountID, true, models.RiskHigh, 82.0,
			"behavioral,pattern", pgxmock.AnyArg(), f.PatternMatched,
			[]byte(`{"excessive_caps":true}`), "",
			f.MessageText, f.FromNumber, f.ToNumber, f.SentAt,
			string(models.ReviewPending), f.FlaggedAt,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "flagged_at", "created_at", "updated_at"}).
			AddRow(want, f.FlaggedAt, f.FlaggedAt, time.Now().UTC()))

	saved, err := repo.Upsert(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, want, saved.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryGetByIDNotFound(t *testing.T) {
	mock, repo := newFlagMock(t)

	mock.ExpectQuery(`FROM scam_flags WHERE id = \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryGetBySMSID(t *testing.T) {
	mock, repo := newFlagMock(t)
	f := testFlag()
	f.ID = uuid.New()

	mock.ExpectQuery(`FROM scam_flags WHERE sms_id = \$1`).
		WithArgs(f.SMSID).
		WillReturnRows(flagRow(f))

	got, err := repo.GetBySMSID(context.Background(), f.SMSID)
	require.NoError(t, err)

	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, models.RiskHigh, got.RiskLevel)
	require.NotNil(t, got.DetectionCategory)
	assert.Equal(t, models.CategoryPhishing, *got.DetectionCategory)
	require.NotNil(t, got.ReviewStatus)
	assert.Equal(t, models.ReviewPending, *got.ReviewStatus)
	assert.Equal(t, map[string]any{"excessive_caps": true}, got.BehavioralFlags)
	assert.Nil(t, got.ReviewedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryListBuildsFilter(t *testing.T) {
	mock, repo := newFlagMock(t)
	f := testFlag()
	f.ID = uuid.New()

	mock.ExpectQuery(`FROM scam_flags WHERE risk_level = ANY\(\$1\) AND reviewed = false ORDER BY flagged_at DESC LIMIT \$2`).
		WithArgs([]string{"CRITICAL", "HIGH"}, 10).
		WillReturnRows(flagRow(f))

	flags, err := repo.List(context.Background(), models.FlagFilter{
		RiskLevels: []models.RiskLevel{models.RiskCritical, models.RiskHigh},
		Unreviewed: true,
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, f.ID, flags[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryListForDateBounds(t *testing.T) {
	mock, repo := newFlagMock(t)

	start := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	mock.ExpectQuery(`FROM scam_flags WHERE flagged_at >= \$1 AND flagged_at < \$2`).
		WithArgs(start, end).
		WillReturnRows(flagRow(testFlag()))

	// A mid-day timestamp must resolve to the whole calendar date.
	_, err := repo.ListForDate(context.Background(), time.Date(2026, 8, 25, 16, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryUpdateReview(t *testing.T) {
	mock, repo := newFlagMock(t)
	f := testFlag()
	f.ID = uuid.New()
	f.Reviewed = true
	notes := "verified against carrier logs"

	reviewed := flagRow(f)
	mock.ExpectQuery(`UPDATE scam_flags SET\s+reviewed = true`).
		WithArgs(f.ID, string(models.ReviewConfirmedScam), &notes, "analyst@example.com").
		WillReturnRows(reviewed)

	got, err := repo.UpdateReview(context.Background(), f.ID, models.ReviewUpdate{
		Status:     models.ReviewConfirmedScam,
		Notes:      &notes,
		ReviewedBy: "analyst@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryUpdateReviewNotFound(t *testing.T) {
	mock, repo := newFlagMock(t)

	mock.ExpectQuery(`UPDATE scam_flags`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateReview(context.Background(), uuid.New(), models.ReviewUpdate{
		Status:     models.ReviewFalsePositive,
		ReviewedBy: "analyst@example.com",
	})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
