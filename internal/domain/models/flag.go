package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel classifies a fused risk score.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
)

// ReviewStatus tracks the human review lifecycle of a flag.
type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "pending"
	ReviewConfirmedScam ReviewStatus = "confirmed_scam"
	ReviewFalsePositive ReviewStatus = "false_positive"
)

// ScamFlag is the durable verdict for one message. Classification fields are
// write-once; only the review fields are mutable, and only through the
// narrow review update.
type ScamFlag struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SMSID     uuid.UUID `json:"sms_id" db:"sms_id"`
	AccountID uuid.UUID `json:"account_id" db:"account_id"`

	// Classification
	IsScam    bool      `json:"is_scam" db:"is_scam"`
	RiskLevel RiskLevel `json:"risk_level" db:"risk_level"`
	RiskScore float64   `json:"risk_score" db:"risk_score"` // 0-100

	// Provenance
	DetectionMethod   string         `json:"detection_method" db:"detection_method"`
	DetectionCategory *ScamCategory  `json:"detection_category,omitempty" db:"detection_category"`
	PatternMatched    string         `json:"pattern_matched,omitempty" db:"pattern_matched"`
	BehavioralFlags   map[string]any `json:"behavioral_flags" db:"behavioral_flags"`
	AIRationale       string         `json:"ai_rationale,omitempty" db:"ai_rationale"`

	// Message snapshot, kept even if the source message is purged
	MessageText string    `json:"message_text" db:"message_text"`
	FromNumber  string    `json:"from_number" db:"from_number"`
	ToNumber    string    `json:"to_number" db:"to_number"`
	SentAt      time.Time `json:"sent_at" db:"sent_at"`

	// Review state
	Reviewed     bool          `json:"reviewed" db:"reviewed"`
	ReviewStatus *ReviewStatus `json:"review_status,omitempty" db:"review_status"`
	ReviewNotes  *string       `json:"review_notes,omitempty" db:"review_notes"`
	ReviewedBy   *string       `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty" db:"reviewed_at"`

	FlaggedAt time.Time `json:"flagged_at" db:"flagged_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ReviewUpdate carries the only fields an external reviewer may change.
type ReviewUpdate struct {
	Status     ReviewStatus `json:"status"`
	Notes      *string      `json:"notes,omitempty"`
	ReviewedBy string       `json:"reviewed_by"`
}

// FlagFilter defines the read contract used by the review queue and the
// nightly aggregation.
type FlagFilter struct {
	RiskLevels    []RiskLevel
	ReviewStatus  *ReviewStatus
	Unreviewed    bool
	AccountID     *uuid.UUID
	FromNumber    string
	FlaggedAfter  *time.Time
	FlaggedBefore *time.Time
	Limit         int
	Offset        int
}
