package signals

import (
	"time"

	"ict-engine/internal/analysis"
	"ict-engine/internal/confluence"
)

// TradingSignal is the synthesizer's primary call
type TradingSignal string

const (
	SignalStrongBuy  TradingSignal = "STRONG_BUY"
	SignalBuy        TradingSignal = "BUY"
	SignalWeakBuy    TradingSignal = "WEAK_BUY"
	SignalHold       TradingSignal = "HOLD"
	SignalWeakSell   TradingSignal = "WEAK_SELL"
	SignalSell       TradingSignal = "SELL"
	SignalStrongSell TradingSignal = "STRONG_SELL"
	SignalWait       TradingSignal = "WAIT"
)

// IsBuy reports whether the signal is on the buy side
func (s TradingSignal) IsBuy() bool {
	return s == SignalStrongBuy || s == SignalBuy || s == SignalWeakBuy
}

// IsSell reports whether the signal is on the sell side
func (s TradingSignal) IsSell() bool {
	return s == SignalStrongSell || s == SignalSell || s == SignalWeakSell
}

// SetupQuality buckets the overall setup score
type SetupQuality string

const (
	QualityInvalid   SetupQuality = "INVALID"
	QualityPoor      SetupQuality = "POOR"
	QualityAverage   SetupQuality = "AVERAGE"
	QualityGood      SetupQuality = "GOOD"
	QualityExcellent SetupQuality = "EXCELLENT"
)

// Direction of a recommended trade
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// EntryType of a recommended trade
type EntryType string

const (
	EntryMarket EntryType = "MARKET"
	EntryLimit  EntryType = "LIMIT"
)

// NominalRiskReward is the advertised reward:risk of the fixed level offsets
const NominalRiskReward = 3.0

// TradingRecommendation holds concrete levels for an actionable signal
type TradingRecommendation struct {
	Signal              TradingSignal `json:"signal"`
	Direction           Direction     `json:"direction"`
	EntryPrice          float64       `json:"entry_price"`
	StopLoss            float64       `json:"stop_loss"`
	TakeProfit          float64       `json:"take_profit"`
	RiskRewardRatio     float64       `json:"risk_reward_ratio"`
	NominalRiskReward   float64       `json:"nominal_risk_reward"`
	PositionSizePercent float64       `json:"position_size_percent"`
	EntryType           EntryType     `json:"entry_type"`
	Confidence          float64       `json:"confidence"`
	Reasoning           string        `json:"reasoning"`
}

// TradeSetup is the synthesizer's output for one symbol/timeframe
type TradeSetup struct {
	SetupID              string                  `json:"setup_id"`
	Symbol               string                  `json:"symbol"`
	Timeframe            string                  `json:"timeframe"`
	SetupQuality         SetupQuality            `json:"setup_quality"`
	OverallScore         float64                 `json:"overall_score"`
	ConfluenceScore      float64                 `json:"confluence_score"`
	StructureScore       float64                 `json:"structure_score"`
	PrimarySignal        TradingSignal           `json:"primary_signal"`
	AlternativeSignals   []TradingSignal         `json:"alternative_signals"`
	Recommendations      []TradingRecommendation `json:"recommendations"`
	PatternConfirmations int                     `json:"pattern_confirmations"`
	MarketBias           confluence.MarketBias   `json:"market_bias,omitempty"`
	StructureDirection   analysis.TrendDirection `json:"structure_direction,omitempty"`
	NextKeyLevel         *float64                `json:"next_key_level"`
	Narrative            string                  `json:"narrative"`
	CreatedAt            time.Time               `json:"created_at"`
	ExpiresAt            time.Time               `json:"expires_at"`
	Error                string                  `json:"error,omitempty"`
}

// Stats are running counters across calls to one Synthesizer
type Stats struct {
	TotalSetups     int64                   `json:"total_setups"`
	FailedSetups    int64                   `json:"failed_setups"`
	Recommendations int64                   `json:"recommendations"`
	BySignal        map[TradingSignal]int64 `json:"by_signal"`
}
