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

// ErrRunInProgress is returned by Start when a non-stale run of the same
// type is still running. Mutual exclusion is per job type only; periodic and
// nightly runs may overlap.
var ErrRunInProgress = errors.New("a run of this type is already in progress")

// ErrRunNotRunning is returned when completing or failing a run that has
// already terminated. Runs transition exactly once and are never reopened.
var ErrRunNotRunning = errors.New("run is not in running state")

// RunRepository owns the scam_detection_runs relation.
type RunRepository struct {
	db           database.DBTX
	staleTimeout time.Duration
}

// NewRunRepository creates a new run repository
func NewRunRepository(db database.DBTX, staleTimeout time.Duration) *RunRepository {
	return &RunRepository{db: db, staleTimeout: staleTimeout}
}

const runColumns = `id, run_type, start_time, end_time, status,
	messages_scanned, scams_detected, detection_breakdown, error_message, created_at`

// Start creates a run in the running state. A run of the same type still
// running past the stale timeout is marked failed as orphaned first; a
// non-stale one makes Start return ErrRunInProgress.
func (r *RunRepository) Start(ctx context.Context, runType models.RunType) (*models.DetectionRun, error) {
	// Orphan sweep: a crashed process must not block the next tick forever.
	sweep := `
		UPDATE scam_detection_runs
		SET status = $1, end_time = now(),
			error_message = 'orphaned: still running past stale timeout'
		WHERE run_type = $2 AND status = $3 AND start_time < $4`
	if _, err := r.db.Exec(ctx, sweep,
		string(models.StatusFailed), string(runType), string(models.StatusRunning),
		time.Now().UTC().Add(-r.staleTimeout),
	); err != nil {
		return nil, fmt.Errorf("failed to sweep orphaned runs: %w", err)
	}

	run := &models.DetectionRun{
		ID:        uuid.New(),
		RunType:   runType,
		StartTime: time.Now().UTC(),
		Status:    models.StatusRunning,
		Breakdown: map[string]int{},
	}

	// Check-and-insert in one statement so two processes racing on the same
	// run type cannot both create a running row.
	insert := `
		INSERT INTO scam_detection_runs (id, run_type, start_time, status, detection_breakdown)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM scam_detection_runs WHERE run_type = $2 AND status = $4
		)
		RETURNING created_at`
	err := r.db.QueryRow(ctx, insert,
		run.ID, string(run.RunType), run.StartTime, string(run.Status), []byte("{}"),
	).Scan(&run.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunInProgress
		}
		return nil, fmt.Errorf("failed to start detection run: %w", err)
	}
	return run, nil
}

// Complete terminates a running run with its final counts.
func (r *RunRepository) Complete(ctx context.Context, id uuid.UUID, scanned, detected int, breakdown map[string]int) error {
	data, err := toJSONB(breakdown)
	if err != nil {
		return err
	}

	query := `
		UPDATE scam_detection_runs
		SET status = $2, end_time = now(), messages_scanned = $3,
			scams_detected = $4, detection_breakdown = $5
		WHERE id = $1 AND status = $6`
	tag, err := r.db.Exec(ctx, query,
		id, string(models.StatusCompleted), scanned, detected, data, string(models.StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to complete detection run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotRunning
	}
	return nil
}

// Fail terminates a running run with an error message. Cancellation uses
// this path too: a cancelled run is failed, never left running.
func (r *RunRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE scam_detection_runs
		SET status = $2, end_time = now(), error_message = $3
		WHERE id = $1 AND status = $4`
	tag, err := r.db.Exec(ctx, query,
		id, string(models.StatusFailed), errMsg, string(models.StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to mark detection run failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotRunning
	}
	return nil
}

// GetByID retrieves a run.
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DetectionRun, error) {
	query := `SELECT ` + runColumns + ` FROM scam_detection_runs WHERE id = $1`
	return r.scanRun(r.db.QueryRow(ctx, query, id))
}

// List returns runs matching the filter, newest first.
func (r *RunRepository) List(ctx context.Context, filter models.RunFilter) ([]*models.DetectionRun, error) {
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.RunType != nil {
		conditions = append(conditions, "run_type = "+arg(string(*filter.RunType)))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+arg(string(*filter.Status)))
	}
	if filter.Since != nil {
		conditions = append(conditions, "start_time >= "+arg(*filter.Since))
	}

	query := `SELECT ` + runColumns + ` FROM scam_detection_runs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_time DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list detection runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.DetectionRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RunRepository) scanRun(row pgx.Row) (*models.DetectionRun, error) {
	var run models.DetectionRun
	var endTime pgtype.Timestamptz
	var errMsg pgtype.Text
	var breakdown []byte

	err := row.Scan(
		&run.ID, &run.RunType, &run.StartTime, &endTime, &run.Status,
		&run.MessagesScanned, &run.ScamsDetected, &breakdown, &errMsg, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan detection run: %w", err)
	}

	run.EndTime = timePtr(endTime)
	run.ErrorMessage = textPtr(errMsg)
	run.Breakdown = make(map[string]int)
	if err := fromJSONB(breakdown, &run.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to decode run breakdown: %w", err)
	}
	return &run, nil
}
