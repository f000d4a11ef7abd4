package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"ict-engine/internal/market"
)

// TrendDirection represents overall market direction
type TrendDirection string

const (
	TrendBullish TrendDirection = "BULLISH"
	TrendBearish TrendDirection = "BEARISH"
	TrendNeutral TrendDirection = "NEUTRAL"
)

// MarketPhase is the Wyckoff-style phase the market appears to be in
type MarketPhase string

const (
	PhaseAccumulation MarketPhase = "ACCUMULATION"
	PhaseMarkup       MarketPhase = "MARKUP"
	PhaseDistribution MarketPhase = "DISTRIBUTION"
	PhaseMarkdown     MarketPhase = "MARKDOWN"
	PhaseTransitional MarketPhase = "TRANSITIONAL"
)

// SwingPoint represents a swing high or low
type SwingPoint struct {
	Price       float64
	CandleIndex int
	Type        string // "high" or "low"
	Confirmed   bool
	Time        time.Time
}

// MarketStructure represents the result of a structure analysis
type MarketStructure struct {
	AnalysisID       string         `json:"analysis_id"`
	Symbol           string         `json:"symbol"`
	Timeframe        string         `json:"timeframe"`
	TrendDirection   TrendDirection `json:"trend_direction"`
	TrendStrength    float64        `json:"trend_strength"` // 0-100
	CurrentPhase     MarketPhase    `json:"current_phase"`
	PhaseConfidence  float64        `json:"phase_confidence"` // 0-100
	NextKeyLevel     *float64       `json:"next_key_level,omitempty"`
	HigherHighs      int            `json:"higher_highs"`
	HigherLows       int            `json:"higher_lows"`
	LowerHighs       int            `json:"lower_highs"`
	LowerLows        int            `json:"lower_lows"`
	SwingHighs       []SwingPoint   `json:"-"`
	SwingLows        []SwingPoint   `json:"-"`
	SupportLevels    []float64      `json:"support_levels"`
	ResistanceLevels []float64      `json:"resistance_levels"`
	Volume           *VolumeProfile `json:"volume,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// StructureAnalyzer analyzes swing structure, trend and phase
type StructureAnalyzer struct {
	swingLookback  int     // Candles to look back for swing detection
	levelTolerance float64 // Fractional distance for clustering levels
	phaseWindow    int
	volume         *VolumeAnalyzer
}

// NewStructureAnalyzer creates a new structure analyzer
func NewStructureAnalyzer(swingLookback int, levelTolerance float64) *StructureAnalyzer {
	if swingLookback <= 0 {
		swingLookback = 5
	}
	if levelTolerance <= 0 {
		levelTolerance = 0.01
	}
	return &StructureAnalyzer{
		swingLookback:  swingLookback,
		levelTolerance: levelTolerance,
		phaseWindow:    20,
		volume:         NewVolumeAnalyzer(20),
	}
}

// MinCandles is the shortest series the analyzer accepts
func (sa *StructureAnalyzer) MinCandles() int {
	return sa.swingLookback*2 + 1
}

// AnalyzeMarketStructure performs complete structure analysis
func (sa *StructureAnalyzer) AnalyzeMarketStructure(candles []market.Candle, symbol, timeframe string) (*MarketStructure, error) {
	if len(candles) < sa.MinCandles() {
		return nil, fmt.Errorf("%w: structure needs %d candles, got %d", ErrInsufficientData, sa.MinCandles(), len(candles))
	}

	structure := &MarketStructure{
		AnalysisID: uuid.New().String(),
		Symbol:     symbol,
		Timeframe:  timeframe,
		Timestamp:  time.Now().UTC(),
	}

	// 1. Swing highs and lows
	structure.SwingHighs, structure.SwingLows = findSwings(candles, sa.swingLookback)

	// 2. HH / HL / LH / LL
	structure.HigherHighs, structure.LowerHighs = countSequence(structure.SwingHighs)
	structure.HigherLows, structure.LowerLows = countSequence(structure.SwingLows)

	// 3. Direction and strength
	structure.TrendDirection = sa.DetermineTrend(structure)
	structure.TrendStrength = sa.CalculateTrendStrength(structure)

	// 4. Key levels
	structure.SupportLevels = sa.clusterLevels(structure.SwingLows)
	structure.ResistanceLevels = sa.clusterLevels(structure.SwingHighs)

	// 5. Phase
	structure.CurrentPhase, structure.PhaseConfidence = sa.DetermineMarketPhase(candles, structure)

	// 6. Next level in the direction of travel
	structure.NextKeyLevel = sa.nextKeyLevel(market.LastClose(candles), structure)

	structure.Volume = sa.volume.AnalyzeVolume(candles)

	return structure, nil
}

// countSequence counts rising and falling steps between consecutive swings
func countSequence(points []SwingPoint) (higher, lower int) {
	for i := 1; i < len(points); i++ {
		if points[i].Price > points[i-1].Price {
			higher++
		} else if points[i].Price < points[i-1].Price {
			lower++
		}
	}
	return higher, lower
}

// DetermineTrend determines overall trend direction. A side needs both its
// swing counts present, neither outnumbered, and more swings overall than
// the other side; an even split is neutral.
func (sa *StructureAnalyzer) DetermineTrend(s *MarketStructure) TrendDirection {
	up := s.HigherHighs + s.HigherLows
	down := s.LowerHighs + s.LowerLows

	// Bullish: higher highs AND higher lows
	if s.HigherHighs > 0 && s.HigherLows > 0 &&
		s.HigherHighs >= s.LowerHighs && s.HigherLows >= s.LowerLows && up > down {
		return TrendBullish
	}

	// Bearish: lower highs AND lower lows
	if s.LowerHighs > 0 && s.LowerLows > 0 &&
		s.LowerHighs >= s.HigherHighs && s.LowerLows >= s.HigherLows && down > up {
		return TrendBearish
	}

	return TrendNeutral
}

// CalculateTrendStrength returns the share of swings agreeing with the
// trend, scaled to 0-100. Ranging markets get a flat 30.
func (sa *StructureAnalyzer) CalculateTrendStrength(s *MarketStructure) float64 {
	total := s.HigherHighs + s.HigherLows + s.LowerHighs + s.LowerLows
	if total == 0 {
		return 0
	}

	switch s.TrendDirection {
	case TrendBullish:
		return float64(s.HigherHighs+s.HigherLows) / float64(total) * 100
	case TrendBearish:
		return float64(s.LowerHighs+s.LowerLows) / float64(total) * 100
	}
	return 30
}

// clusterLevels merges swing prices within levelTolerance of each other
func (sa *StructureAnalyzer) clusterLevels(points []SwingPoint) []float64 {
	if len(points) < 2 {
		return nil
	}

	var levels []float64
	for _, swing := range points {
		found := false
		for i, level := range levels {
			if abs(swing.Price-level)/level < sa.levelTolerance {
				levels[i] = (level + swing.Price) / 2
				found = true
				break
			}
		}
		if !found {
			levels = append(levels, swing.Price)
		}
	}
	return levels
}

// DetermineMarketPhase identifies the current market phase and how sure it is
func (sa *StructureAnalyzer) DetermineMarketPhase(candles []market.Candle, s *MarketStructure) (MarketPhase, float64) {
	switch {
	case s.TrendDirection == TrendBullish && s.TrendStrength > 70:
		return PhaseMarkup, s.TrendStrength
	case s.TrendDirection == TrendBearish && s.TrendStrength > 70:
		return PhaseMarkdown, s.TrendStrength
	case s.TrendDirection != TrendNeutral:
		return PhaseTransitional, 40
	}

	// Ranging: accumulation vs distribution from price location and OBV
	window := candles
	if len(window) > sa.phaseWindow {
		window = window[len(window)-sa.phaseWindow:]
	}
	avgPrice := 0.0
	for _, c := range window {
		avgPrice += c.Close
	}
	avgPrice /= float64(len(window))

	current := market.LastClose(candles)
	deviation := abs(current-avgPrice) / avgPrice * 100
	confidence := 50 + math.Min(30, deviation*20)

	phase := PhaseDistribution
	if current > avgPrice {
		phase = PhaseAccumulation
	}

	obvBullish := sa.volume.IsOBVBullish(candles, len(window)-1)
	if (phase == PhaseAccumulation) == obvBullish {
		confidence += 10
	}
	if phase == PhaseAccumulation && sa.IsPriceAtSupport(current, s.SupportLevels, sa.levelTolerance) {
		confidence += 10
	}
	if phase == PhaseDistribution && sa.IsPriceAtResistance(current, s.ResistanceLevels, sa.levelTolerance) {
		confidence += 10
	}
	if sa.volume.DetectVolumeDryUp(window, len(window)) {
		confidence -= 10
	}

	return phase, clamp(confidence, 0, 100)
}

// nextKeyLevel picks the nearest resistance above price in an uptrend,
// the nearest support below price in a downtrend, and the nearest level of
// either kind when ranging.
func (sa *StructureAnalyzer) nextKeyLevel(price float64, s *MarketStructure) *float64 {
	var best *float64
	consider := func(level float64) {
		if best == nil || abs(level-price) < abs(*best-price) {
			l := level
			best = &l
		}
	}

	switch s.TrendDirection {
	case TrendBullish:
		for _, r := range s.ResistanceLevels {
			if r > price {
				consider(r)
			}
		}
	case TrendBearish:
		for _, sup := range s.SupportLevels {
			if sup < price {
				consider(sup)
			}
		}
	default:
		for _, r := range s.ResistanceLevels {
			consider(r)
		}
		for _, sup := range s.SupportLevels {
			consider(sup)
		}
	}
	return best
}

// IsPriceAtSupport checks if current price is near a support level
func (sa *StructureAnalyzer) IsPriceAtSupport(currentPrice float64, supportLevels []float64, tolerance float64) bool {
	for _, support := range supportLevels {
		if abs(currentPrice-support)/support < tolerance {
			return true
		}
	}
	return false
}

// IsPriceAtResistance checks if current price is near a resistance level
func (sa *StructureAnalyzer) IsPriceAtResistance(currentPrice float64, resistanceLevels []float64, tolerance float64) bool {
	for _, resistance := range resistanceLevels {
		if abs(currentPrice-resistance)/resistance < tolerance {
			return true
		}
	}
	return false
}
