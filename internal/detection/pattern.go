package detection

import (
	"scamguard/internal/domain/models"
	"scamguard/pkg/logger"
)

// PatternMatcher runs every active rule against message text. Rules are not
// short-circuited: all matches contribute signals, so a message can carry
// several categories at once.
type PatternMatcher struct {
	rules  *RuleSet
	logger *logger.Logger
}

// NewPatternMatcher creates a pattern matcher over the given rule set.
func NewPatternMatcher(rules *RuleSet, log *logger.Logger) *PatternMatcher {
	return &PatternMatcher{
		rules:  rules,
		logger: log.WithComponent("pattern-matcher"),
	}
}

// Check returns one signal per matching rule. Matching is case-insensitive
// and independent of rule order.
func (m *PatternMatcher) Check(text string) []models.DetectionSignal {
	var signals []models.DetectionSignal
	for _, r := range m.rules.Rules() {
		match := r.re.FindString(text)
		if match == "" {
			continue
		}
		signals = append(signals, models.DetectionSignal{
			Detector: models.DetectorPattern,
			Category: r.Category,
			Weight:   r.Weight,
			Evidence: r.Description + ": " + match,
		})
	}

	if len(signals) > 0 {
		m.logger.Debug().Int("matches", len(signals)).Msg("pattern matches found")
	}
	return signals
}
