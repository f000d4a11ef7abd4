package confluence

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCandles is returned when the input series fails validation
	ErrInvalidCandles = errors.New("invalid candles")
	// ErrAnalysisPanic wraps a recovered panic inside the engine
	ErrAnalysisPanic = errors.New("confluence analysis panicked")
)

// PatternType identifies the detector family a pattern came from
type PatternType string

const (
	PatternFVG            PatternType = "FVG"
	PatternOrderBlock     PatternType = "ORDER_BLOCK"
	PatternSmartMoney     PatternType = "SMART_MONEY"
	PatternLiquiditySweep PatternType = "LIQUIDITY_SWEEP"
	PatternBOSCHoCH       PatternType = "BOS_CHOCH"
)

// AllPatternTypes lists every pattern type in weight-table order
var AllPatternTypes = []PatternType{
	PatternFVG,
	PatternOrderBlock,
	PatternSmartMoney,
	PatternLiquiditySweep,
	PatternBOSCHoCH,
}

// StrengthLevel buckets the overall confluence strength
type StrengthLevel string

const (
	StrengthWeak     StrengthLevel = "WEAK"
	StrengthModerate StrengthLevel = "MODERATE"
	StrengthStrong   StrengthLevel = "STRONG"
	StrengthExtreme  StrengthLevel = "EXTREME"
)

// MarketBias is the directional read derived from pattern directions
type MarketBias string

const (
	BiasBullish    MarketBias = "BULLISH"
	BiasBearish    MarketBias = "BEARISH"
	BiasNeutral    MarketBias = "NEUTRAL"
	BiasConflicted MarketBias = "CONFLICTED"
)

// Recommended actions
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionWait = "WAIT"
)

// PatternConfluence is one detected pattern instance
type PatternConfluence struct {
	PatternType PatternType            `json:"pattern_type"`
	PatternID   string                 `json:"pattern_id"`
	Confidence  float64                `json:"confidence"` // 0-100
	Strength    float64                `json:"strength"`   // 0-100
	Direction   string                 `json:"direction"`
	PriceLevel  float64                `json:"price_level"`
	Timeframe   string                 `json:"timeframe"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ConfluenceAnalysis aggregates the patterns found for one symbol/timeframe
type ConfluenceAnalysis struct {
	AnalysisID          string                 `json:"analysis_id"`
	Symbol              string                 `json:"symbol"`
	Timeframe           string                 `json:"timeframe"`
	Patterns            []PatternConfluence    `json:"patterns"`
	OverallStrength     float64                `json:"overall_strength"`
	StrengthLevel       StrengthLevel          `json:"strength_level"`
	MarketBias          MarketBias             `json:"market_bias"`
	DominantPatterns    []PatternType          `json:"dominant_patterns"`
	SupportingPatterns  []PatternType          `json:"supporting_patterns"`
	ConflictingPatterns []PatternType          `json:"conflicting_patterns"`
	DecisionConfidence  float64                `json:"decision_confidence"`
	RecommendedAction   string                 `json:"recommended_action"`
	PriceTarget         *float64               `json:"price_target"`
	StopLoss            *float64               `json:"stop_loss"`
	RiskRewardRatio     *float64               `json:"risk_reward_ratio"`
	Timestamp           time.Time              `json:"timestamp"`
	ProcessingTime      time.Duration          `json:"processing_time_ns"`
	Metadata            map[string]interface{} `json:"metadata"`
}

// Failed reports whether this analysis is a degraded result
func (a *ConfluenceAnalysis) Failed() bool {
	_, ok := a.Metadata["error"]
	return ok
}

// UniquePatternTypes returns the number of distinct pattern types present
func (a *ConfluenceAnalysis) UniquePatternTypes() int {
	return countUnique(a.Patterns)
}

// SessionStats are running counters across calls to one Engine
type SessionStats struct {
	TotalAnalyses       int64     `json:"total_analyses"`
	StrongConfluences   int64     `json:"strong_confluences"`
	FailedAnalyses      int64     `json:"failed_analyses"`
	AvgProcessingTimeMs float64   `json:"avg_processing_time_ms"`
	LastAnalysisAt      time.Time `json:"last_analysis_at"`
}
