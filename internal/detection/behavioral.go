package detection

import (
	"context"
	"strings"
	"unicode"

	"scamguard/internal/config"
	"scamguard/internal/domain/models"
	"scamguard/pkg/logger"
)

// Behavioral heuristic names, recorded as signal evidence and persisted in a
// flag's behavioral_flags map.
const (
	FlagKnownScammer         = "known_scammer"
	FlagShortMessageWithLink = "short_message_with_link"
	FlagExcessiveCaps        = "excessive_caps"
	FlagExcessiveExclamation = "excessive_exclamation"
	FlagSuspiciousKeywords   = "multiple_suspicious_keywords"
	FlagInternationalNumber  = "international_number"
)

// SenderBlocklist is an exact-match lookup of known-bad sender numbers.
type SenderBlocklist interface {
	IsBlocked(ctx context.Context, number string) (bool, error)
}

// BehavioralDetector scores message and sender metadata with independent
// heuristics. Each heuristic yields at most one signal with a fixed weight;
// thresholds come from configuration.
type BehavioralDetector struct {
	cfg       config.BehavioralConfig
	blocklist SenderBlocklist
	logger    *logger.Logger
}

var linkMarkers = []string{"http", "bit.ly", "click"}

var suspiciousKeywords = []string{
	"congratulations", "winner", "free money", "act now", "limited time",
	"expires", "verify account", "suspended", "locked",
}

// NewBehavioralDetector creates a behavioral detector. blocklist may be nil,
// in which case the known-bad-sender heuristic is skipped.
func NewBehavioralDetector(cfg config.BehavioralConfig, blocklist SenderBlocklist, log *logger.Logger) *BehavioralDetector {
	return &BehavioralDetector{
		cfg:       cfg,
		blocklist: blocklist,
		logger:    log.WithComponent("behavioral-detector"),
	}
}

// Check runs every heuristic and returns the resulting signals. Heuristics
// are order-free; a blocklist lookup failure disables only that heuristic.
func (d *BehavioralDetector) Check(ctx context.Context, msg *models.Message) []models.DetectionSignal {
	var signals []models.DetectionSignal

	add := func(name string, weight float64) {
		signals = append(signals, models.DetectionSignal{
			Detector: models.DetectorBehavioral,
			Weight:   weight,
			Evidence: name,
		})
	}

	if d.blocklist != nil {
		blocked, err := d.blocklist.IsBlocked(ctx, msg.FromNumber)
		if err != nil {
			d.logger.Warn().Err(err).Msg("blocklist lookup failed, heuristic skipped")
		} else if blocked {
			add(FlagKnownScammer, 0.9)
		}
	}

	lower := strings.ToLower(msg.Body)

	if len(msg.Body) < d.cfg.ShortMessageLength && containsAny(lower, linkMarkers) {
		add(FlagShortMessageWithLink, 0.3)
	}

	if len(msg.Body) > d.cfg.CapsMinLength && capsRatio(msg.Body) > d.cfg.CapsRatioThreshold {
		add(FlagExcessiveCaps, 0.4)
	}

	if strings.Count(msg.Body, "!") >= d.cfg.ExclamationThreshold {
		add(FlagExcessiveExclamation, 0.3)
	}

	if keywordCount(lower) >= d.cfg.KeywordThreshold {
		add(FlagSuspiciousKeywords, 0.5)
	}

	if d.isInternational(msg.FromNumber) {
		add(FlagInternationalNumber, 0.2)
	}

	if len(signals) > 0 {
		d.logger.Debug().Int("heuristics", len(signals)).Str("from", msg.FromNumber).Msg("behavioral flags raised")
	}
	return signals
}

// isInternational reports whether the sender number looks foreign: either
// more national digits than the configured maximum, or an explicit country
// code prefix that differs from the expected one.
func (d *BehavioralDetector) isInternational(number string) bool {
	digits := strings.NewReplacer("+", "", "-", "", " ", "").Replace(number)
	if len(digits) > d.cfg.MaxNationalDigits {
		return true
	}
	if strings.HasPrefix(number, "+") && d.cfg.ExpectedCountryCode != "" {
		return !strings.HasPrefix(digits, d.cfg.ExpectedCountryCode)
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func capsRatio(s string) float64 {
	upper := 0
	for _, c := range s {
		if unicode.IsUpper(c) {
			upper++
		}
	}
	return float64(upper) / float64(len([]rune(s)))
}

func keywordCount(lower string) int {
	n := 0
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
