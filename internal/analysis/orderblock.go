package analysis

import (
	"fmt"
	"time"

	"ict-engine/internal/market"
)

// OrderBlockType is the side of an order block
type OrderBlockType string

const (
	BullishOrderBlock OrderBlockType = "bullish" // demand zone
	BearishOrderBlock OrderBlockType = "bearish" // supply zone
)

// OrderBlock is the last opposite candle before a displacement move
type OrderBlock struct {
	ID          string
	Symbol      string
	Timeframe   string
	Type        OrderBlockType
	HighPrice   float64
	LowPrice    float64
	MidPrice    float64
	Volume      float64
	CandleIndex int
	Timestamp   time.Time
	MovePercent float64
	Mitigated   bool // price closed through the zone
	Tested      bool // price is inside the zone now
	TestCount   int
	Strength    float64 // 0-100
	Confidence  float64 // 0-100
}

// OrderBlockDetector finds order blocks in candlestick data
type OrderBlockDetector struct {
	lookback       int
	impulseCandles int
	minMovePercent float64
}

// NewOrderBlockDetector creates a detector scanning the last lookback candles
// for moves of at least minMovePercent within the next three candles.
func NewOrderBlockDetector(lookback int, minMovePercent float64) *OrderBlockDetector {
	if lookback <= 0 {
		lookback = 100
	}
	if minMovePercent <= 0 {
		minMovePercent = 1.0
	}
	return &OrderBlockDetector{
		lookback:       lookback,
		impulseCandles: 3,
		minMovePercent: minMovePercent,
	}
}

// DetectOrderBlocks returns bullish and bearish order blocks, oldest first.
// Bullish: last bearish candle before a strong bullish move.
// Bearish: last bullish candle before a strong bearish move.
func (d *OrderBlockDetector) DetectOrderBlocks(symbol, timeframe string, candles []market.Candle) []OrderBlock {
	n := len(candles)
	if n < d.impulseCandles+2 {
		return nil
	}

	start := n - d.lookback
	if start < 0 {
		start = 0
	}
	currentPrice := market.LastClose(candles)
	avgVolume := market.AverageVolume(candles, 0)

	var blocks []OrderBlock
	for i := start; i < n-1; i++ {
		candle := candles[i]

		maxHigh, minLow := candle.High, candle.Low
		for j := i + 1; j <= i+d.impulseCandles && j < n; j++ {
			if candles[j].High > maxHigh {
				maxHigh = candles[j].High
			}
			if candles[j].Low < minLow {
				minLow = candles[j].Low
			}
		}

		var ob *OrderBlock
		if candle.IsBearish() {
			moveUp := (maxHigh - candle.High) / candle.High * 100
			if moveUp >= d.minMovePercent {
				ob = &OrderBlock{Type: BullishOrderBlock, MovePercent: moveUp}
			}
		} else if candle.IsBullish() {
			moveDown := (candle.Low - minLow) / candle.Low * 100
			if moveDown >= d.minMovePercent {
				ob = &OrderBlock{Type: BearishOrderBlock, MovePercent: moveDown}
			}
		}
		if ob == nil {
			continue
		}

		ob.ID = fmt.Sprintf("ob_%s_%s_%d_%d", symbol, timeframe, candle.OpenTime, i)
		ob.Symbol = symbol
		ob.Timeframe = timeframe
		ob.HighPrice = candle.High
		ob.LowPrice = candle.Low
		ob.MidPrice = (candle.High + candle.Low) / 2
		ob.Volume = candle.Volume
		ob.CandleIndex = i
		ob.Timestamp = candle.Time()
		ob.Tested = currentPrice >= candle.Low && currentPrice <= candle.High

		// Later candles after the impulse decide mitigation and tests
		for j := i + d.impulseCandles + 1; j < n; j++ {
			later := candles[j]
			if later.Low <= candle.High && later.High >= candle.Low {
				ob.TestCount++
			}
			if ob.Type == BullishOrderBlock && later.Close < candle.Low {
				ob.Mitigated = true
			}
			if ob.Type == BearishOrderBlock && later.Close > candle.High {
				ob.Mitigated = true
			}
		}

		d.grade(ob, avgVolume)
		blocks = append(blocks, *ob)
	}

	return blocks
}

func (d *OrderBlockDetector) grade(ob *OrderBlock, avgVolume float64) {
	strength := 40 + (ob.MovePercent/d.minMovePercent-1)*20
	if ob.Mitigated {
		strength *= 0.5
	}
	strength -= float64(ob.TestCount) * 5
	ob.Strength = clamp(strength, 0, 100)

	confidence := 50.0
	if avgVolume > 0 && ob.Volume > avgVolume {
		confidence += 20
	}
	if !ob.Mitigated {
		confidence += 20
	}
	tests := ob.TestCount
	if tests > 3 {
		tests = 3
	}
	confidence -= float64(tests) * 10
	if ob.Tested && !ob.Mitigated {
		confidence += 10
	}
	ob.Confidence = clamp(confidence, 0, 100)
}

// Unmitigated filters out blocks price has already closed through
func Unmitigated(blocks []OrderBlock) []OrderBlock {
	var out []OrderBlock
	for _, ob := range blocks {
		if !ob.Mitigated {
			out = append(out, ob)
		}
	}
	return out
}
