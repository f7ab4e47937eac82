package detection

import (
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"scamguard/internal/domain/models"
	"scamguard/pkg/logger"
)

// Rule is one pattern-matching rule. Rule sets are data, not code: they are
// loaded from YAML files so the nightly learner can append candidates without
// a deployment.
type Rule struct {
	ID          string              `yaml:"id" json:"id"`
	Category    models.ScamCategory `yaml:"category" json:"category"`
	Pattern     string              `yaml:"pattern" json:"pattern"`
	Weight      float64             `yaml:"weight" json:"weight"`
	Description string              `yaml:"description" json:"description"`

	re *regexp.Regexp
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// RuleSet holds the active pattern rules. Safe for concurrent use.
type RuleSet struct {
	mu     sync.RWMutex
	rules  []Rule
	logger *logger.Logger

	learnedFile string
}

// NewRuleSet creates a rule set seeded with the built-in default rules.
func NewRuleSet(log *logger.Logger) *RuleSet {
	rs := &RuleSet{logger: log.WithComponent("rule-set")}
	for _, r := range defaultRules() {
		if err := rs.add(r); err != nil {
			// Built-in rules are vetted; this only fires on a bad edit.
			rs.logger.Warn().Err(err).Str("rule_id", r.ID).Msg("skipping malformed built-in rule")
		}
	}
	return rs
}

// LoadRuleSet builds a rule set from a YAML rules file plus the learned
// rules file, falling back to the built-in defaults when the main file is
// absent. A malformed rule is skipped with a warning, never fatal.
func LoadRuleSet(rulesFile, learnedFile string, log *logger.Logger) (*RuleSet, error) {
	rs := &RuleSet{logger: log.WithComponent("rule-set"), learnedFile: learnedFile}

	loaded, err := rs.loadFile(rulesFile)
	if err != nil {
		return nil, err
	}
	if !loaded {
		rs.logger.Info().Str("file", rulesFile).Msg("rules file not found, using built-in defaults")
		for _, r := range defaultRules() {
			if err := rs.add(r); err != nil {
				rs.logger.Warn().Err(err).Str("rule_id", r.ID).Msg("skipping malformed built-in rule")
			}
		}
	}

	// Learned rules are optional; absence is normal on a fresh install.
	if learnedFile != "" {
		if _, err := rs.loadFile(learnedFile); err != nil {
			rs.logger.Warn().Err(err).Str("file", learnedFile).Msg("failed to load learned rules")
		}
	}

	rs.logger.Info().Int("rules", rs.Len()).Msg("rule set loaded")
	return rs, nil
}

// loadFile reads rules from path, skipping malformed entries. Returns false
// when the file does not exist.
func (rs *RuleSet) loadFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return false, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	for _, r := range rf.Rules {
		if err := rs.add(r); err != nil {
			rs.logger.Warn().Err(err).Str("rule_id", r.ID).Str("file", path).Msg("skipping malformed rule")
		}
	}
	return true, nil
}

// add compiles and appends one rule under the lock.
func (rs *RuleSet) add(r Rule) error {
	if r.Pattern == "" {
		return fmt.Errorf("rule %q has empty pattern", r.ID)
	}
	if !models.ValidCategory(r.Category) {
		return fmt.Errorf("rule %q has unknown category %q", r.ID, r.Category)
	}
	if r.Weight <= 0 || r.Weight > 1 {
		return fmt.Errorf("rule %q weight %.2f out of (0,1]", r.ID, r.Weight)
	}
	re, err := regexp.Compile("(?i)" + r.Pattern)
	if err != nil {
		return fmt.Errorf("rule %q pattern does not compile: %w", r.ID, err)
	}
	// An empty-string match is indistinguishable from no match downstream,
	// so such a rule would never fire.
	if re.MatchString("") {
		return fmt.Errorf("rule %q pattern matches the empty string", r.ID)
	}
	r.re = re

	rs.mu.Lock()
	rs.rules = append(rs.rules, r)
	rs.mu.Unlock()
	return nil
}

// Promote validates a learned candidate, activates it, and appends it to the
// learned rules file. Candidates are never activated automatically.
func (rs *RuleSet) Promote(c models.CandidateRule) (Rule, error) {
	r := Rule{
		ID:          fmt.Sprintf("learned-%d", time.Now().Unix()),
		Category:    c.Category,
		Pattern:     c.Pattern,
		Weight:      c.Confidence,
		Description: "Learned from nightly analysis",
	}
	if err := rs.add(r); err != nil {
		return Rule{}, err
	}

	if rs.learnedFile != "" {
		if err := rs.appendLearned(r); err != nil {
			rs.logger.Error().Err(err).Str("rule_id", r.ID).Msg("failed to persist learned rule")
		}
	}

	rs.logger.Info().Str("rule_id", r.ID).Str("category", string(r.Category)).Msg("promoted learned rule")
	return r, nil
}

// appendLearned rewrites the learned rules file with all learned rules.
func (rs *RuleSet) appendLearned(r Rule) error {
	var rf ruleFile
	if data, err := os.ReadFile(rs.learnedFile); err == nil {
		// Malformed existing content is replaced rather than appended to.
		_ = yaml.Unmarshal(data, &rf)
	}
	rf.Rules = append(rf.Rules, r)

	data, err := yaml.Marshal(&rf)
	if err != nil {
		return fmt.Errorf("failed to marshal learned rules: %w", err)
	}
	if err := os.WriteFile(rs.learnedFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write learned rules file: %w", err)
	}
	return nil
}

// Rules returns a snapshot of the active rules.
func (rs *RuleSet) Rules() []Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of active rules.
func (rs *RuleSet) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rules)
}

// defaultRules is the seed taxonomy shipped with the service.
func defaultRules() []Rule {
	return []Rule{
		// Phishing
		{ID: "phish-001", Category: models.CategoryPhishing, Pattern: `(verify|confirm|update).*account`, Weight: 0.7, Description: "Account verification request"},
		{ID: "phish-002", Category: models.CategoryPhishing, Pattern: `click.*(link|here)`, Weight: 0.6, Description: "Suspicious link request"},
		{ID: "phish-003", Category: models.CategoryPhishing, Pattern: `suspend(ed)?.*account`, Weight: 0.8, Description: "Account suspension threat"},

		// Financial fraud
		{ID: "fin-001", Category: models.CategoryFinancialFraud, Pattern: `\b(won|win|prize|lottery)\b`, Weight: 0.7, Description: "Prize/lottery scam"},
		{ID: "fin-002", Category: models.CategoryFinancialFraud, Pattern: `(urgent|immediate).*payment`, Weight: 0.8, Description: "Urgent payment request"},
		{ID: "fin-003", Category: models.CategoryFinancialFraud, Pattern: `(refund|owe|owed).*(\$|dollar|money)`, Weight: 0.7, Description: "Fake refund/owed money"},
		{ID: "fin-004", Category: models.CategoryFinancialFraud, Pattern: `(bank|credit card).*expir`, Weight: 0.8, Description: "Banking credential expiry"},

		// Social engineering
		{ID: "soc-001", Category: models.CategorySocialEngineering, Pattern: `(act now|limited time|expires soon)`, Weight: 0.6, Description: "Urgency tactics"},
		{ID: "soc-002", Category: models.CategorySocialEngineering, Pattern: `(free|gift|offer).*claim`, Weight: 0.5, Description: "Free offer claim"},
		{ID: "soc-003", Category: models.CategorySocialEngineering, Pattern: `(tax|irs|government).*owe`, Weight: 0.9, Description: "Government impersonation"},

		// Authentication theft
		{ID: "auth-001", Category: models.CategoryAuthenticationTheft, Pattern: `verification code|one.time.password|\botp\b|2fa code`, Weight: 0.6, Description: "Authentication code request"},
		{ID: "auth-002", Category: models.CategoryAuthenticationTheft, Pattern: `(enter|provide|send).*code`, Weight: 0.5, Description: "Code sharing request"},

		// Package delivery
		{ID: "pkg-001", Category: models.CategoryPackageDelivery, Pattern: `package.*delivery|parcel.*waiting`, Weight: 0.7, Description: "Fake delivery notification"},
		{ID: "pkg-002", Category: models.CategoryPackageDelivery, Pattern: `(usps|ups|fedex|dhl).*redelivery`, Weight: 0.8, Description: "Courier impersonation"},
	}
}
