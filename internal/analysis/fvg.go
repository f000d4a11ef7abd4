package analysis

import (
	"fmt"
	"time"

	"ict-engine/internal/market"
)

// FVGType represents the direction of a Fair Value Gap
type FVGType string

const (
	BullishFVG FVGType = "bullish"
	BearishFVG FVGType = "bearish"
)

// FVGStatus tracks how much of a gap price has traded back into
type FVGStatus string

const (
	FVGActive          FVGStatus = "ACTIVE"
	FVGPartiallyFilled FVGStatus = "PARTIALLY_FILLED"
	FVGFilled          FVGStatus = "FILLED"
)

// FVG represents a Fair Value Gap in price action
type FVG struct {
	ID             string
	Symbol         string
	Timeframe      string
	Type           FVGType
	TopPrice       float64
	BottomPrice    float64
	GapPercent     float64
	GapPips        float64
	FillPercentage float64 // 0-100, deepest retracement into the gap
	Status         FVGStatus
	Score          float64 // 0-100
	Confidence     float64 // 0-100
	Confluences    []string
	CreatedAt      time.Time
	CandleIndex    int
	Filled         bool
	FilledAt       *time.Time
	FilledPrice    *float64
}

// MidPrice returns the middle of the gap
func (f FVG) MidPrice() float64 {
	return (f.TopPrice + f.BottomPrice) / 2
}

// FVGDetector detects Fair Value Gaps in candlestick data
type FVGDetector struct {
	minGapPercent float64 // Minimum gap size as percentage
	rangePeriod   int     // Bars used for the average range baseline
	recentBars    int     // Gaps created within this many bars count as recent
}

// NewFVGDetector creates a new FVG detector
func NewFVGDetector(minGapPercent float64) *FVGDetector {
	if minGapPercent <= 0 {
		minGapPercent = 0.1 // Default 0.1% minimum gap
	}
	return &FVGDetector{
		minGapPercent: minGapPercent,
		rangePeriod:   20,
		recentBars:    10,
	}
}

// DetectFVGs identifies all Fair Value Gaps in the given candles and grades
// each one against the price action that followed it.
func (fd *FVGDetector) DetectFVGs(symbol, timeframe string, candles []market.Candle) []FVG {
	if len(candles) < 3 {
		return nil
	}

	lastClose := market.LastClose(candles)

	var fvgs []FVG

	// Scan for FVGs (need 3 consecutive candles)
	for i := 0; i < len(candles)-2; i++ {
		c1 := candles[i]
		c2 := candles[i+1] // Middle candle (gap creator)
		c3 := candles[i+2]

		var fvg *FVG

		// Bullish: c1.High < c3.Low
		if c1.High < c3.Low {
			gapPercent := ((c3.Low - c1.High) / c1.High) * 100
			if gapPercent >= fd.minGapPercent {
				fvg = &FVG{
					Type:        BullishFVG,
					TopPrice:    c3.Low,
					BottomPrice: c1.High,
					GapPercent:  gapPercent,
				}
			}
		}

		// Bearish: c1.Low > c3.High
		if c1.Low > c3.High {
			gapPercent := ((c1.Low - c3.High) / c3.High) * 100
			if gapPercent >= fd.minGapPercent {
				fvg = &FVG{
					Type:        BearishFVG,
					TopPrice:    c1.Low,
					BottomPrice: c3.High,
					GapPercent:  gapPercent,
				}
			}
		}

		if fvg == nil {
			continue
		}

		fvg.ID = generateFVGID(symbol, timeframe, c2.OpenTime, i)
		fvg.Symbol = symbol
		fvg.Timeframe = timeframe
		fvg.CreatedAt = c2.Time()
		fvg.CandleIndex = i
		fvg.GapPips = (fvg.TopPrice - fvg.BottomPrice) / PipSize(symbol, c2.Close)
		fvg.Status = FVGActive

		// baseline is the rangePeriod bars ending at the gap candle
		baseline := candles[:i+2]
		avgRange := market.AverageRange(baseline, fd.rangePeriod)
		avgVolume := market.AverageVolume(baseline, fd.rangePeriod)

		fd.UpdateFVGStatus(fvg, candles[i+3:])
		fd.grade(fvg, c2, avgRange, avgVolume, lastClose, len(candles)-1-(i+1))

		fvgs = append(fvgs, *fvg)
	}

	return fvgs
}

// grade fills Score, Confidence and Confluences. barsAgo counts bars since
// the middle candle closed.
func (fd *FVGDetector) grade(fvg *FVG, middle market.Candle, avgRange, avgVolume, lastClose float64, barsAgo int) {
	gap := fvg.TopPrice - fvg.BottomPrice

	sizeScore := 50.0
	if avgRange > 0 {
		sizeScore = clamp(gap/avgRange*100, 0, 100)
	}
	displacement := 0.0
	if middle.Range() > 0 {
		displacement = middle.Body() / middle.Range() * 100
	}

	fvg.Score = clamp((0.6*sizeScore+0.4*displacement)*(1-fvg.FillPercentage/200), 0, 100)

	confidence := 50.0
	var confluences []string

	if displacement >= 60 {
		confluences = append(confluences, "displacement")
	}
	aligned := (fvg.Type == BullishFVG && middle.IsBullish()) || (fvg.Type == BearishFVG && middle.IsBearish())
	if aligned {
		confidence += 15
		confluences = append(confluences, "aligned_candle")
	}
	if avgVolume > 0 && middle.Volume > avgVolume*1.5 {
		confidence += 15
		confluences = append(confluences, "volume_spike")
	}
	switch fvg.Status {
	case FVGActive:
		confidence += 10
		confluences = append(confluences, "unfilled")
	case FVGFilled:
		confidence -= 20
	}
	if barsAgo <= fd.recentBars {
		confidence += 10
		confluences = append(confluences, "recent")
	}
	if fvg.Status != FVGFilled && fd.IsPriceNearFVG(lastClose, *fvg, 50) {
		confluences = append(confluences, "price_at_gap")
	}

	fvg.Confidence = clamp(confidence, 0, 100)
	fvg.Confluences = confluences
}

// IsPriceInFVG checks if current price is within an FVG zone
func (fd *FVGDetector) IsPriceInFVG(price float64, fvg FVG) bool {
	return price >= fvg.BottomPrice && price <= fvg.TopPrice
}

// IsPriceNearFVG checks if price is within a certain percentage of FVG
func (fd *FVGDetector) IsPriceNearFVG(price float64, fvg FVG, proximityPercent float64) bool {
	if fd.IsPriceInFVG(price, fvg) {
		return true
	}

	gapSize := fvg.TopPrice - fvg.BottomPrice
	threshold := gapSize * (proximityPercent / 100)

	distanceToTop := abs(price - fvg.TopPrice)
	distanceToBottom := abs(price - fvg.BottomPrice)

	return distanceToTop <= threshold || distanceToBottom <= threshold
}

// UpdateFVGStatus measures how deep later candles traded back into the gap.
// A bullish gap fills from the top down, a bearish gap from the bottom up.
func (fd *FVGDetector) UpdateFVGStatus(fvg *FVG, candles []market.Candle) {
	if fvg.Filled {
		return
	}

	gap := fvg.TopPrice - fvg.BottomPrice
	if gap <= 0 {
		return
	}

	for _, candle := range candles {
		var depth float64
		var touched bool

		if fvg.Type == BullishFVG {
			if candle.Low < fvg.TopPrice {
				touched = true
				depth = (fvg.TopPrice - candle.Low) / gap * 100
			}
		} else {
			if candle.High > fvg.BottomPrice {
				touched = true
				depth = (candle.High - fvg.BottomPrice) / gap * 100
			}
		}
		if !touched {
			continue
		}

		if depth > fvg.FillPercentage {
			fvg.FillPercentage = clamp(depth, 0, 100)
		}

		if fvg.FillPercentage >= 100 {
			fvg.Filled = true
			fvg.Status = FVGFilled
			filledAt := candle.Time()
			fvg.FilledAt = &filledAt
			fillPrice := candle.Low
			if fvg.Type == BearishFVG {
				fillPrice = candle.High
			}
			fvg.FilledPrice = &fillPrice
			return
		}
		fvg.Status = FVGPartiallyFilled
	}
}

// GetUnfilledFVGs returns only FVGs that haven't been filled yet
func (fd *FVGDetector) GetUnfilledFVGs(fvgs []FVG) []FVG {
	var unfilled []FVG
	for _, fvg := range fvgs {
		if !fvg.Filled {
			unfilled = append(unfilled, fvg)
		}
	}
	return unfilled
}

func generateFVGID(symbol, timeframe string, openTime int64, index int) string {
	return fmt.Sprintf("fvg_%s_%s_%d_%d", symbol, timeframe, openTime, index)
}
