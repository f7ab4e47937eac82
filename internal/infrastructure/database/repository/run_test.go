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

func newRunMock(t *testing.T) (pgxmock.PgxPoolIface, *RunRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewRunRepository(mock, 30*time.Minute)
}

func expectOrphanSweep(mock pgxmock.PgxPoolIface, runType models.RunType, swept int64) {
	mock.ExpectExec(`UPDATE scam_detection_runs`).
		WithArgs(string(models.StatusFailed), string(runType), string(models.StatusRunning), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", swept))
}

func TestRunRepositoryStart(t *testing.T) {
	mock, repo := newRunMock(t)

	expectOrphanSweep(mock, models.RunPeriodic, 0)
	mock.ExpectQuery(`INSERT INTO scam_detection_runs`).
		WithArgs(pgxmock.AnyArg(), string(models.RunPeriodic), pgxmock.AnyArg(),
			string(models.StatusRunning), []byte("{}")).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))

	run, err := repo.Start(context.Background(), models.RunPeriodic)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, models.RunPeriodic, run.RunType)
	assert.Equal(t, models.StatusRunning, run.Status)
	assert.False(t, run.StartTime.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryStartWhileRunning(t *testing.T) {
	mock, repo := newRunMock(t)

	expectOrphanSweep(mock, models.RunNightly, 0)
	// The guarded insert affects no row when a run of the type is live.
	mock.ExpectQuery(`INSERT INTO scam_detection_runs`).
		WithArgs(pgxmock.AnyArg(), string(models.RunNightly), pgxmock.AnyArg(),
			string(models.StatusRunning), []byte("{}")).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Start(context.Background(), models.RunNightly)
	assert.ErrorIs(t, err, ErrRunInProgress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryStartSweepsOrphans(t *testing.T) {
	mock, repo := newRunMock(t)

	// A stale run gets failed by the sweep; the new run then starts normally.
	expectOrphanSweep(mock, models.RunPeriodic, 1)
	mock.ExpectQuery(`INSERT INTO scam_detection_runs`).
		WithArgs(pgxmock.AnyArg(), string(models.RunPeriodic), pgxmock.AnyArg(),
			string(models.StatusRunning), []byte("{}")).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))

	run, err := repo.Start(context.Background(), models.RunPeriodic)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, run.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryComplete(t *testing.T) {
	mock, repo := newRunMock(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE scam_detection_runs`).
		WithArgs(id, string(models.StatusCompleted), 120, 7,
			[]byte(`{"risk:HIGH":7}`), string(models.StatusRunning)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Complete(context.Background(), id, 120, 7, map[string]int{"risk:HIGH": 7})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryCompleteTerminatedRun(t *testing.T) {
	mock, repo := newRunMock(t)

	mock.ExpectExec(`UPDATE scam_detection_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Complete(context.Background(), uuid.New(), 0, 0, nil)
	assert.ErrorIs(t, err, ErrRunNotRunning)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryFail(t *testing.T) {
	mock, repo := newRunMock(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE scam_detection_runs`).
		WithArgs(id, string(models.StatusFailed), "fetch failed: timeout", string(models.StatusRunning)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Fail(context.Background(), id, "fetch failed: timeout"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryFailTerminatedRun(t *testing.T) {
	mock, repo := newRunMock(t)

	mock.ExpectExec(`UPDATE scam_detection_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Fail(context.Background(), uuid.New(), "cancelled")
	assert.ErrorIs(t, err, ErrRunNotRunning)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryList(t *testing.T) {
	mock, repo := newRunMock(t)
	id := uuid.New()
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "run_type", "start_time", "end_time", "status",
		"messages_scanned", "scams_detected", "detection_breakdown", "error_message", "created_at",
	}).AddRow(
		id, models.RunPeriodic, now, nil, models.StatusCompleted,
		200, 12, []byte(`{"risk:HIGH":9,"risk:MEDIUM":3}`), nil, now,
	)

	runType := models.RunPeriodic
	mock.ExpectQuery(`FROM scam_detection_runs WHERE run_type = \$1 ORDER BY start_time DESC LIMIT \$2`).
		WithArgs(string(models.RunPeriodic), 5).
		WillReturnRows(rows)

	runs, err := repo.List(context.Background(), models.RunFilter{RunType: &runType, Limit: 5})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, 12, runs[0].ScamsDetected)
	assert.Equal(t, map[string]int{"risk:HIGH": 9, "risk:MEDIUM": 3}, runs[0].Breakdown)
	assert.Nil(t, runs[0].EndTime)
	assert.Nil(t, runs[0].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}
