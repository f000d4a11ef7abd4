package confluence

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultWeights is the per-pattern weight table
var DefaultWeights = map[PatternType]float64{
	PatternFVG:            0.25,
	PatternOrderBlock:     0.30,
	PatternSmartMoney:     0.25,
	PatternLiquiditySweep: 0.10,
	PatternBOSCHoCH:       0.10,
}

// Scorer holds the pattern weight table and computes confluence scores
type Scorer struct {
	weights map[PatternType]float64
}

// NewScorer creates a scorer with the default weights
func NewScorer() *Scorer {
	weights := make(map[PatternType]float64, len(DefaultWeights))
	for k, v := range DefaultWeights {
		weights[k] = v
	}
	return &Scorer{weights: weights}
}

// SetWeights replaces the weight table. Weights must sum to 1.0 and cover
// every pattern type.
func (s *Scorer) SetWeights(weights map[PatternType]float64) error {
	total := 0.0
	for _, pt := range AllPatternTypes {
		w, ok := weights[pt]
		if !ok {
			return fmt.Errorf("missing weight for %s", pt)
		}
		if w < 0 {
			return fmt.Errorf("negative weight for %s: %.2f", pt, w)
		}
		total += w
	}
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("weights must sum to 1.0, got %.2f", total)
	}

	next := make(map[PatternType]float64, len(weights))
	for _, pt := range AllPatternTypes {
		next[pt] = weights[pt]
	}
	s.weights = next
	return nil
}

// Weight returns the weight of a pattern type, 0 for unknown types
func (s *Scorer) Weight(pt PatternType) float64 {
	return s.weights[pt]
}

// CalculateOverallStrength is the weighted average of strength*confidence,
// clamped to 100. No patterns means 0.
func (s *Scorer) CalculateOverallStrength(patterns []PatternConfluence) float64 {
	var weighted, totalWeight float64
	for _, p := range patterns {
		w := s.Weight(p.PatternType)
		weighted += p.Strength * p.Confidence * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return clampScore(weighted / totalWeight)
}

// DetermineMarketBias compares weight*confidence on each side
func (s *Scorer) DetermineMarketBias(patterns []PatternConfluence) MarketBias {
	var bullish, bearish float64
	for _, p := range patterns {
		contribution := s.Weight(p.PatternType) * p.Confidence
		switch NormalizeDirection(p.Direction) {
		case "bullish":
			bullish += contribution
		case "bearish":
			bearish += contribution
		}
	}

	total := bullish + bearish
	if total == 0 {
		return BiasNeutral
	}

	ratio := math.Abs(bullish-bearish) / total
	switch {
	case ratio < 0.2:
		return BiasConflicted
	case ratio < 0.4:
		return BiasNeutral
	case bullish > bearish:
		return BiasBullish
	default:
		return BiasBearish
	}
}

// CategorizePatterns ranks patterns by strength*confidence*weight. The top
// max(1, n/3) are dominant, the rest supporting. Conflicting is always empty.
func (s *Scorer) CategorizePatterns(patterns []PatternConfluence) (dominant, supporting, conflicting []PatternType) {
	dominant = []PatternType{}
	supporting = []PatternType{}
	conflicting = []PatternType{}
	if len(patterns) == 0 {
		return dominant, supporting, conflicting
	}

	ranked := make([]PatternConfluence, len(patterns))
	copy(ranked, patterns)
	sort.SliceStable(ranked, func(i, j int) bool {
		return s.rankScore(ranked[i]) > s.rankScore(ranked[j])
	})

	top := len(ranked) / 3
	if top < 1 {
		top = 1
	}
	for i, p := range ranked {
		if i < top {
			dominant = append(dominant, p.PatternType)
		} else {
			supporting = append(supporting, p.PatternType)
		}
	}
	return dominant, supporting, conflicting
}

func (s *Scorer) rankScore(p PatternConfluence) float64 {
	return p.Strength * p.Confidence * s.Weight(p.PatternType)
}

// StrengthLevelFor buckets an overall strength
func StrengthLevelFor(strength float64) StrengthLevel {
	switch {
	case strength >= 81:
		return StrengthExtreme
	case strength >= 61:
		return StrengthStrong
	case strength >= 31:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// CalculateDecisionConfidence adds saturating bonuses for pattern count and
// pattern diversity to the base strength.
func CalculateDecisionConfidence(overallStrength float64, patternCount, uniqueTypes int) float64 {
	countBonus := math.Min(20, float64(patternCount)*5)
	diversityBonus := math.Min(15, float64(uniqueTypes)*3)
	return clampScore(overallStrength + countBonus + diversityBonus)
}

// RecommendAction returns BUY or SELL only for strong, directional confluence
func RecommendAction(overallStrength float64, bias MarketBias) string {
	if overallStrength < 60 {
		return ActionWait
	}
	switch bias {
	case BiasBullish:
		return ActionBuy
	case BiasBearish:
		return ActionSell
	}
	return ActionWait
}

// NormalizeDirection maps free-text directions to "bullish", "bearish" or ""
func NormalizeDirection(direction string) string {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "bullish", "buy", "up":
		return "bullish"
	case "bearish", "sell", "down":
		return "bearish"
	}
	return ""
}

func countUnique(patterns []PatternConfluence) int {
	seen := make(map[PatternType]struct{}, len(patterns))
	for _, p := range patterns {
		seen[p.PatternType] = struct{}{}
	}
	return len(seen)
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
