package models

// Detector names recorded in a flag's detection method.
const (
	DetectorPattern    = "pattern"
	DetectorBehavioral = "behavioral"
	DetectorAIReview   = "ai_review"
)

// ScamCategory is the fixed taxonomy shared by all detectors.
type ScamCategory string

const (
	CategoryPhishing            ScamCategory = "phishing"
	CategoryFinancialFraud      ScamCategory = "financial_fraud"
	CategorySocialEngineering   ScamCategory = "social_engineering"
	CategoryAuthenticationTheft ScamCategory = "authentication_theft"
	CategoryPackageDelivery     ScamCategory = "package_delivery"
	CategoryOther               ScamCategory = "other"
)

// ValidCategory reports whether c belongs to the closed taxonomy.
func ValidCategory(c ScamCategory) bool {
	switch c {
	case CategoryPhishing, CategoryFinancialFraud, CategorySocialEngineering,
		CategoryAuthenticationTheft, CategoryPackageDelivery, CategoryOther:
		return true
	}
	return false
}

// DetectionSignal is one detector's evidence for one message. Signals are
// ephemeral: they exist only between detection and fusion and are never
// persisted individually.
type DetectionSignal struct {
	Detector string       `json:"detector"`
	Category ScamCategory `json:"category,omitempty"`
	Weight   float64      `json:"weight"` // 0-1
	Evidence string       `json:"evidence"`
}
