package detection

import (
	"sort"
	"strings"

	"scamguard/internal/config"
	"scamguard/internal/domain/models"
)

// Verdict is the fused outcome for one message. It is the single point of
// truth for "is this a scam": detectors only emit signals.
type Verdict struct {
	// Flagged is false when the fused score stays below the flag floor; such
	// messages are counted as scanned but produce no flag.
	Flagged bool

	RiskScore       float64
	RiskLevel       models.RiskLevel
	Category        *models.ScamCategory
	DetectionMethod string
	PatternMatched  string
	BehavioralFlags map[string]any
}

// Fusion combines detection signals into one risk verdict using fixed,
// configurable thresholds.
type Fusion struct {
	cfg config.FusionConfig
}

// NewFusion creates a fusion stage with the given thresholds.
func NewFusion(cfg config.FusionConfig) *Fusion {
	return &Fusion{cfg: cfg}
}

// Fuse computes the saturating weighted union of the signals:
//
//	score = 100 * (1 - Π(1 - w_i))
//
// The combination is monotonic non-decreasing in every weight and can never
// leave [0,100]. The result is independent of signal order.
func (f *Fusion) Fuse(signals []models.DetectionSignal) Verdict {
	if len(signals) == 0 {
		return Verdict{RiskLevel: models.RiskLow}
	}

	miss := 1.0
	for _, s := range signals {
		w := clamp01(s.Weight)
		miss *= 1 - w
	}
	score := 100 * (1 - miss)
	if score > 100 {
		score = 100
	}

	v := Verdict{
		Flagged:         score >= f.cfg.FlagFloor,
		RiskScore:       score,
		RiskLevel:       f.Level(score),
		Category:        fuseCategory(signals),
		DetectionMethod: fuseMethod(signals),
		PatternMatched:  fusePatterns(signals),
		BehavioralFlags: fuseBehavioralFlags(signals),
	}
	return v
}

// HighFloor returns the lowest score classified HIGH. The AI downgrade
// guard uses it so a floored score always agrees with Level.
func (f *Fusion) HighFloor() float64 {
	return f.cfg.HighThreshold
}

// Level maps a score to its risk level. Boundaries are inclusive on the
// lower bound: a score exactly at a threshold takes the higher level.
func (f *Fusion) Level(score float64) models.RiskLevel {
	switch {
	case score >= f.cfg.CriticalThreshold:
		return models.RiskCritical
	case score >= f.cfg.HighThreshold:
		return models.RiskHigh
	case score >= f.cfg.MediumThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// fuseCategory picks the highest-weighted contributing category. Exact
// weight ties resolve to the lexicographically smallest category name so the
// choice never depends on signal order.
func fuseCategory(signals []models.DetectionSignal) *models.ScamCategory {
	var best *models.DetectionSignal
	for i := range signals {
		s := &signals[i]
		if s.Category == "" {
			continue
		}
		if best == nil || s.Weight > best.Weight ||
			(s.Weight == best.Weight && s.Category < best.Category) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	c := best.Category
	return &c
}

// fuseMethod records the sorted union of contributing detector names.
func fuseMethod(signals []models.DetectionSignal) string {
	seen := make(map[string]struct{}, 2)
	for _, s := range signals {
		seen[s.Detector] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func fusePatterns(signals []models.DetectionSignal) string {
	var matched []string
	for _, s := range signals {
		if s.Detector == models.DetectorPattern {
			matched = append(matched, s.Evidence)
		}
	}
	sort.Strings(matched)
	return strings.Join(matched, "; ")
}

func fuseBehavioralFlags(signals []models.DetectionSignal) map[string]any {
	flags := make(map[string]any)
	for _, s := range signals {
		if s.Detector == models.DetectorBehavioral {
			flags[s.Evidence] = s.Weight
		}
	}
	return flags
}

func clamp01(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
