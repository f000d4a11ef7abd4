package analysis

import (
	"fmt"
	"sort"
	"time"

	"ict-engine/internal/market"
)

// BreakType distinguishes continuation from reversal breaks
type BreakType string

const (
	BreakBOS   BreakType = "BOS"   // break in the direction of the prior bias
	BreakCHoCH BreakType = "CHOCH" // break against the prior bias
)

// StructureBreak is a close through the most recent confirmed swing
type StructureBreak struct {
	ID          string
	Type        BreakType
	Direction   string // "bullish" or "bearish"
	Level       float64
	ClosePrice  float64
	CandleIndex int
	Timestamp   time.Time
	Strength    float64
	Confidence  float64
}

// LiquiditySweep is a wick through a swing level that closes back inside.
// A sweep of lows is bullish, a sweep of highs is bearish.
type LiquiditySweep struct {
	ID          string
	Direction   string
	Level       float64
	SweepPrice  float64
	CandleIndex int
	Timestamp   time.Time
	Strength    float64
	Confidence  float64
}

// SmartMoneyReversal is a liquidity sweep followed by a change of character
// in the same direction within the reversal window.
type SmartMoneyReversal struct {
	ID          string
	Direction   string
	Sweep       LiquiditySweep
	Break       StructureBreak
	CandleIndex int
	Timestamp   time.Time
	Strength    float64
	Confidence  float64
}

// SmartMoneyAnalysis collects the smart money events found in a series
type SmartMoneyAnalysis struct {
	Breaks    []StructureBreak
	Sweeps    []LiquiditySweep
	Reversals []SmartMoneyReversal
	Bias      TrendDirection
}

// SmartMoneyDetector detects BOS/CHoCH, liquidity sweeps and sweep reversals
type SmartMoneyDetector struct {
	swingLookback  int
	reversalWindow int
}

// NewSmartMoneyDetector creates a smart money detector
func NewSmartMoneyDetector(swingLookback, reversalWindow int) *SmartMoneyDetector {
	if swingLookback <= 0 {
		swingLookback = 3
	}
	if reversalWindow <= 0 {
		reversalWindow = 10
	}
	return &SmartMoneyDetector{
		swingLookback:  swingLookback,
		reversalWindow: reversalWindow,
	}
}

// Analyze scans candles in order and tags every structure break, sweep and
// reversal. A swing only becomes tradable once swingLookback bars have
// printed after it.
func (d *SmartMoneyDetector) Analyze(symbol, timeframe string, candles []market.Candle) *SmartMoneyAnalysis {
	result := &SmartMoneyAnalysis{Bias: TrendNeutral}
	if len(candles) < d.swingLookback*2+2 {
		return result
	}

	highs, lows := findSwings(candles, d.swingLookback)
	avgRange := market.AverageRange(candles, 0)

	result.Breaks = d.detectBreaks(symbol, timeframe, candles, highs, lows, avgRange, &result.Bias)
	result.Sweeps = d.detectSweeps(symbol, timeframe, candles, highs, lows, avgRange)
	result.Reversals = d.detectReversals(symbol, timeframe, result.Sweeps, result.Breaks)

	return result
}

func (d *SmartMoneyDetector) detectBreaks(symbol, timeframe string, candles []market.Candle, highs, lows []SwingPoint, avgRange float64, bias *TrendDirection) []StructureBreak {
	var breaks []StructureBreak
	hPtr, lPtr := -1, -1
	highCrossed, lowCrossed := false, false

	for i := 1; i < len(candles); i++ {
		// Advance to the latest swing confirmed before bar i
		for hPtr+1 < len(highs) && highs[hPtr+1].CandleIndex+d.swingLookback < i {
			hPtr++
			highCrossed = false
		}
		for lPtr+1 < len(lows) && lows[lPtr+1].CandleIndex+d.swingLookback < i {
			lPtr++
			lowCrossed = false
		}

		c := candles[i]
		prevClose := candles[i-1].Close

		if hPtr >= 0 && !highCrossed {
			level := highs[hPtr].Price
			if prevClose <= level && c.Close > level {
				kind := BreakBOS
				if *bias == TrendBearish {
					kind = BreakCHoCH
				}
				breaks = append(breaks, d.newBreak(symbol, timeframe, kind, "bullish", level, c, i, avgRange))
				*bias = TrendBullish
				highCrossed = true
			}
		}

		if lPtr >= 0 && !lowCrossed {
			level := lows[lPtr].Price
			if prevClose >= level && c.Close < level {
				kind := BreakBOS
				if *bias == TrendBullish {
					kind = BreakCHoCH
				}
				breaks = append(breaks, d.newBreak(symbol, timeframe, kind, "bearish", level, c, i, avgRange))
				*bias = TrendBearish
				lowCrossed = true
			}
		}
	}
	return breaks
}

func (d *SmartMoneyDetector) newBreak(symbol, timeframe string, kind BreakType, direction string, level float64, c market.Candle, index int, avgRange float64) StructureBreak {
	strength := 50.0
	if avgRange > 0 {
		strength += abs(c.Close-level) / avgRange * 50
	}
	confidence := 60.0
	if kind == BreakCHoCH {
		confidence = 55
	}
	if c.Range() > 0 && c.Body()/c.Range() >= 0.6 {
		confidence += 15
	}
	return StructureBreak{
		ID:          fmt.Sprintf("%s_%s_%s_%d_%d", kind, symbol, timeframe, c.OpenTime, index),
		Type:        kind,
		Direction:   direction,
		Level:       level,
		ClosePrice:  c.Close,
		CandleIndex: index,
		Timestamp:   c.Time(),
		Strength:    clamp(strength, 0, 100),
		Confidence:  clamp(confidence, 0, 100),
	}
}

// detectSweeps finds, for each swing, the first later candle that wicks
// through it and closes back on the original side. A close through the level
// before that ends the search: the liquidity is gone.
func (d *SmartMoneyDetector) detectSweeps(symbol, timeframe string, candles []market.Candle, highs, lows []SwingPoint, avgRange float64) []LiquiditySweep {
	var sweeps []LiquiditySweep

	for _, h := range highs {
		for j := h.CandleIndex + d.swingLookback + 1; j < len(candles); j++ {
			c := candles[j]
			if c.Close > h.Price {
				break
			}
			if c.High > h.Price {
				sweeps = append(sweeps, d.newSweep(symbol, timeframe, "bearish", h.Price, c.High, c, j, avgRange))
				break
			}
		}
	}

	for _, l := range lows {
		for j := l.CandleIndex + d.swingLookback + 1; j < len(candles); j++ {
			c := candles[j]
			if c.Close < l.Price {
				break
			}
			if c.Low < l.Price {
				sweeps = append(sweeps, d.newSweep(symbol, timeframe, "bullish", l.Price, c.Low, c, j, avgRange))
				break
			}
		}
	}

	sortSweeps(sweeps)
	return sweeps
}

func (d *SmartMoneyDetector) newSweep(symbol, timeframe, direction string, level, sweepPrice float64, c market.Candle, index int, avgRange float64) LiquiditySweep {
	strength := 40.0
	if avgRange > 0 {
		strength += abs(sweepPrice-level) / avgRange * 60
	}
	rejection := 0.0
	if c.Range() > 0 {
		if direction == "bearish" {
			rejection = (c.High - c.Close) / c.Range()
		} else {
			rejection = (c.Close - c.Low) / c.Range()
		}
	}
	return LiquiditySweep{
		ID:          fmt.Sprintf("sweep_%s_%s_%d_%d", symbol, timeframe, c.OpenTime, index),
		Direction:   direction,
		Level:       level,
		SweepPrice:  sweepPrice,
		CandleIndex: index,
		Timestamp:   c.Time(),
		Strength:    clamp(strength, 0, 100),
		Confidence:  clamp(55+rejection*20, 0, 100),
	}
}

func (d *SmartMoneyDetector) detectReversals(symbol, timeframe string, sweeps []LiquiditySweep, breaks []StructureBreak) []SmartMoneyReversal {
	var reversals []SmartMoneyReversal
	for _, s := range sweeps {
		for _, b := range breaks {
			if b.Type != BreakCHoCH || b.Direction != s.Direction {
				continue
			}
			if b.CandleIndex < s.CandleIndex || b.CandleIndex-s.CandleIndex > d.reversalWindow {
				continue
			}
			reversals = append(reversals, SmartMoneyReversal{
				ID:          fmt.Sprintf("smc_%s_%s_%d_%d", symbol, timeframe, s.CandleIndex, b.CandleIndex),
				Direction:   s.Direction,
				Sweep:       s,
				Break:       b,
				CandleIndex: b.CandleIndex,
				Timestamp:   b.Timestamp,
				Strength:    clamp((s.Strength+b.Strength)/2+10, 0, 100),
				Confidence:  clamp(maxFloat(s.Confidence, b.Confidence)+10, 0, 100),
			})
			break
		}
	}
	return reversals
}

func sortSweeps(sweeps []LiquiditySweep) {
	sort.SliceStable(sweeps, func(i, j int) bool {
		return sweeps[i].CandleIndex < sweeps[j].CandleIndex
	})
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
