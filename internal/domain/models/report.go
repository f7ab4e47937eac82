package models

import (
	"time"

	"github.com/google/uuid"
)

// CandidateRule is a pattern proposed by the nightly learner. Candidates are
// advisory: they join the active rule set only through an explicit promotion.
type CandidateRule struct {
	Pattern        string       `json:"pattern"`
	Category       ScamCategory `json:"category"`
	Confidence     float64      `json:"confidence"`
	ExampleMessage string       `json:"example_message,omitempty"`
}

// ActionItem is a recommended follow-up surfaced by the nightly report.
type ActionItem struct {
	Priority       string `json:"priority"`
	Action         string `json:"action"`
	Recommendation string `json:"recommendation"`
}

// NightlyReport aggregates one calendar day of scam flags. Exactly one row
// exists per report date; reprocessing a date overwrites it.
type NightlyReport struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	ReportDate         time.Time       `json:"report_date" db:"report_date"`
	TotalScamsDetected int             `json:"total_scams_detected" db:"total_scams_detected"`
	ByRiskLevel        map[string]int  `json:"scams_by_risk_level" db:"scams_by_risk_level"`
	ByCategory         map[string]int  `json:"scams_by_category" db:"scams_by_category"`
	DetectionMethods   map[string]int  `json:"detection_methods" db:"detection_methods"`
	// FalsePositiveRate is nil when no flags for the date were reviewed.
	FalsePositiveRate *float64        `json:"false_positive_rate,omitempty" db:"false_positive_rate"`
	NewPatterns       []CandidateRule `json:"new_patterns_learned" db:"new_patterns_learned"`
	AISummary         string          `json:"ai_summary,omitempty" db:"ai_summary"`
	ActionItems       []ActionItem    `json:"action_items" db:"action_items"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}
