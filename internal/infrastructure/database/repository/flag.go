package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"scamguard/internal/domain/models"
	"scamguard/internal/infrastructure/database"
)

// FlagRepository owns the scam_flags relation. One flag exists per message;
// the unique index on sms_id is the engine's only cross-worker
// synchronization point.
type FlagRepository struct {
	db database.DBTX
}

// NewFlagRepository creates a new flag repository
func NewFlagRepository(db database.DBTX) *FlagRepository {
	return &FlagRepository{db: db}
}

const flagColumns = `id, sms_id, account_id, is_scam, risk_level, risk_score,
	detection_method, detection_category, pattern_matched, behavioral_flags, ai_rationale,
	message_text, from_number, to_number, sent_at,
	reviewed, review_status, review_notes, reviewed_by, reviewed_at,
	flagged_at, created_at, updated_at`

// Upsert writes a verdict for a message. Rescanning the same message never
// creates a second row: a conflict on sms_id updates the classification
// fields in place and leaves the review fields untouched.
func (r *FlagRepository) Upsert(ctx context.Context, f *models.ScamFlag) (*models.ScamFlag, error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.FlaggedAt.IsZero() {
		f.FlaggedAt = time.Now().UTC()
	}

	behavioral, err := toJSONB(f.BehavioralFlags)
	if err != nil {
		return nil, err
	}

	var category *string
	if f.DetectionCategory != nil {
		c := string(*f.DetectionCategory)
		category = &c
	}

	query := `
		INSERT INTO scam_flags (
			id, sms_id, account_id, is_scam, risk_level, risk_score,
			detection_method, detection_category, pattern_matched, behavioral_flags, ai_rationale,
			message_text, from_number, to_number, sent_at,
			review_status, flagged_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (sms_id) DO UPDATE SET
			is_scam = EXCLUDED.is_scam,
			risk_level = EXCLUDED.risk_level,
			risk_score = EXCLUDED.risk_score,
			detection_method = EXCLUDED.detection_method,
			detection_category = EXCLUDED.detection_category,
			pattern_matched = EXCLUDED.pattern_matched,
			behavioral_flags = EXCLUDED.behavioral_flags,
			ai_rationale = EXCLUDED.ai_rationale,
			updated_at = now()
		RETURNING id, flagged_at, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		f.ID, f.SMSID, f.AccountID, f.IsScam, f.RiskLevel, f.RiskScore,
		f.DetectionMethod, category, f.PatternMatched, behavioral, f.AIRationale,
		f.MessageText, f.FromNumber, f.ToNumber, f.SentAt,
		string(models.ReviewPending), f.FlaggedAt,
	).Scan(&f.ID, &f.FlaggedAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert scam flag: %w", err)
	}
	return f, nil
}

// GetBySMSID retrieves the flag for a message, if one exists.
func (r *FlagRepository) GetBySMSID(ctx context.Context, smsID uuid.UUID) (*models.ScamFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM scam_flags WHERE sms_id = $1`
	return r.scanFlag(r.db.QueryRow(ctx, query, smsID))
}

// GetByID retrieves a flag by its own identifier.
func (r *FlagRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScamFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM scam_flags WHERE id = $1`
	return r.scanFlag(r.db.QueryRow(ctx, query, id))
}

// List returns flags matching the filter, newest first.
func (r *FlagRepository) List(ctx context.Context, filter models.FlagFilter) ([]*models.ScamFlag, error) {
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.RiskLevels) > 0 {
		levels := make([]string, len(filter.RiskLevels))
		for i, l := range filter.RiskLevels {
			levels[i] = string(l)
		}
		conditions = append(conditions, "risk_level = ANY("+arg(levels)+")")
	}
	if filter.ReviewStatus != nil {
		conditions = append(conditions, "review_status = "+arg(string(*filter.ReviewStatus)))
	}
	if filter.Unreviewed {
		conditions = append(conditions, "reviewed = false")
	}
	if filter.AccountID != nil {
		conditions = append(conditions, "account_id = "+arg(*filter.AccountID))
	}
	if filter.FromNumber != "" {
		conditions = append(conditions, "from_number = "+arg(filter.FromNumber))
	}
	if filter.FlaggedAfter != nil {
		conditions = append(conditions, "flagged_at >= "+arg(*filter.FlaggedAfter))
	}
	if filter.FlaggedBefore != nil {
		conditions = append(conditions, "flagged_at < "+arg(*filter.FlaggedBefore))
	}

	query := `SELECT ` + flagColumns + ` FROM scam_flags`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY flagged_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scam flags: %w", err)
	}
	defer rows.Close()

	var flags []*models.ScamFlag
	for rows.Next() {
		f, err := r.scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// ListForDate returns every flag flagged on the given UTC calendar date.
func (r *FlagRepository) ListForDate(ctx context.Context, date time.Time) ([]*models.ScamFlag, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	return r.List(ctx, models.FlagFilter{FlaggedAfter: &start, FlaggedBefore: &end})
}

// UpdateReview mutates only the review-state fields of a flag. This is the
// single write path available to external reviewers; classification fields
// are never touched, preserving audit integrity.
func (r *FlagRepository) UpdateReview(ctx context.Context, id uuid.UUID, update models.ReviewUpdate) (*models.ScamFlag, error) {
	query := `
		UPDATE scam_flags SET
			reviewed = true,
			review_status = $2,
			review_notes = $3,
			reviewed_by = $4,
			reviewed_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + flagColumns

	return r.scanFlag(r.db.QueryRow(ctx, query,
		id, string(update.Status), update.Notes, update.ReviewedBy,
	))
}

func (r *FlagRepository) scanFlag(row pgx.Row) (*models.ScamFlag, error) {
	var f models.ScamFlag
	var category, reviewStatus, reviewNotes, reviewedBy pgtype.Text
	var reviewedAt pgtype.Timestamptz
	var behavioral []byte

	err := row.Scan(
		&f.ID, &f.SMSID, &f.AccountID, &f.IsScam, &f.RiskLevel, &f.RiskScore,
		&f.DetectionMethod, &category, &f.PatternMatched, &behavioral, &f.AIRationale,
		&f.MessageText, &f.FromNumber, &f.ToNumber, &f.SentAt,
		&f.Reviewed, &reviewStatus, &reviewNotes, &reviewedBy, &reviewedAt,
		&f.FlaggedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan scam flag: %w", err)
	}

	if category.Valid {
		c := models.ScamCategory(category.String)
		f.DetectionCategory = &c
	}
	if reviewStatus.Valid {
		s := models.ReviewStatus(reviewStatus.String)
		f.ReviewStatus = &s
	}
	f.ReviewNotes = textPtr(reviewNotes)
	f.ReviewedBy = textPtr(reviewedBy)
	f.ReviewedAt = timePtr(reviewedAt)

	f.BehavioralFlags = make(map[string]any)
	if err := fromJSONB(behavioral, &f.BehavioralFlags); err != nil {
		return nil, fmt.Errorf("failed to decode behavioral flags: %w", err)
	}
	return &f, nil
}
