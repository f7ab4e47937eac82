package models

import (
	"time"

	"github.com/google/uuid"
)

// RunType identifies what triggered a detection run.
type RunType string

const (
	RunPeriodic RunType = "periodic"
	RunNightly  RunType = "nightly"
	RunManual   RunType = "manual"
)

// RunStatus is the lifecycle state of a detection run. A run is created in
// StatusRunning and transitions exactly once to StatusCompleted or
// StatusFailed; it is never reopened.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// DetectionRun records one execution of a scan job.
type DetectionRun struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	RunType         RunType        `json:"run_type" db:"run_type"`
	StartTime       time.Time      `json:"start_time" db:"start_time"`
	EndTime         *time.Time     `json:"end_time,omitempty" db:"end_time"`
	Status          RunStatus      `json:"status" db:"status"`
	MessagesScanned int            `json:"messages_scanned" db:"messages_scanned"`
	ScamsDetected   int            `json:"scams_detected" db:"scams_detected"`
	Breakdown       map[string]int `json:"detection_breakdown" db:"detection_breakdown"`
	ErrorMessage    *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// RunFilter defines the read contract for run history queries.
type RunFilter struct {
	RunType *RunType
	Status  *RunStatus
	Since   *time.Time
	Limit   int
}
