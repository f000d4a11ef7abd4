package confluence

import (
	"ict-engine/internal/analysis"
	"ict-engine/internal/market"
)

// DefaultMaxPatternsPerDetector caps how many recent patterns each source contributes
const DefaultMaxPatternsPerDetector = 5

// PatternDetector is a source of pattern instances for the engine.
// Detect may return an empty slice; an error skips only this source.
type PatternDetector interface {
	Name() string
	Detect(candles []market.Candle, symbol, timeframe string) ([]PatternConfluence, error)
}

// FVGSource exposes unfilled fair value gaps as FVG patterns
type FVGSource struct {
	detector    *analysis.FVGDetector
	maxPatterns int
}

// NewFVGSource wraps an FVG detector
func NewFVGSource(detector *analysis.FVGDetector, maxPatterns int) *FVGSource {
	if maxPatterns <= 0 {
		maxPatterns = DefaultMaxPatternsPerDetector
	}
	return &FVGSource{detector: detector, maxPatterns: maxPatterns}
}

func (s *FVGSource) Name() string { return "fvg" }

func (s *FVGSource) Detect(candles []market.Candle, symbol, timeframe string) ([]PatternConfluence, error) {
	fvgs := s.detector.GetUnfilledFVGs(s.detector.DetectFVGs(symbol, timeframe, candles))
	fvgs = lastN(fvgs, s.maxPatterns)

	patterns := make([]PatternConfluence, 0, len(fvgs))
	for _, fvg := range fvgs {
		patterns = append(patterns, FromFVG(fvg))
	}
	return patterns, nil
}

// FromFVG converts a detected gap into a pattern record
func FromFVG(fvg analysis.FVG) PatternConfluence {
	return PatternConfluence{
		PatternType: PatternFVG,
		PatternID:   fvg.ID,
		Confidence:  fvg.Confidence,
		Strength:    fvg.Score,
		Direction:   string(fvg.Type),
		PriceLevel:  fvg.MidPrice(),
		Timeframe:   fvg.Timeframe,
		Timestamp:   fvg.CreatedAt,
		Metadata: map[string]interface{}{
			"high_price":      fvg.TopPrice,
			"low_price":       fvg.BottomPrice,
			"gap_pips":        fvg.GapPips,
			"fill_percentage": fvg.FillPercentage,
			"status":          string(fvg.Status),
			"confluences":     fvg.Confluences,
		},
	}
}

// OrderBlockSource exposes unmitigated order blocks
type OrderBlockSource struct {
	detector    *analysis.OrderBlockDetector
	maxPatterns int
}

// NewOrderBlockSource wraps an order block detector
func NewOrderBlockSource(detector *analysis.OrderBlockDetector, maxPatterns int) *OrderBlockSource {
	if maxPatterns <= 0 {
		maxPatterns = DefaultMaxPatternsPerDetector
	}
	return &OrderBlockSource{detector: detector, maxPatterns: maxPatterns}
}

func (s *OrderBlockSource) Name() string { return "order_blocks" }

func (s *OrderBlockSource) Detect(candles []market.Candle, symbol, timeframe string) ([]PatternConfluence, error) {
	blocks := lastN(analysis.Unmitigated(s.detector.DetectOrderBlocks(symbol, timeframe, candles)), s.maxPatterns)

	patterns := make([]PatternConfluence, 0, len(blocks))
	for _, ob := range blocks {
		patterns = append(patterns, PatternConfluence{
			PatternType: PatternOrderBlock,
			PatternID:   ob.ID,
			Confidence:  ob.Confidence,
			Strength:    ob.Strength,
			Direction:   string(ob.Type),
			PriceLevel:  ob.MidPrice,
			Timeframe:   timeframe,
			Timestamp:   ob.Timestamp,
			Metadata: map[string]interface{}{
				"high_price":   ob.HighPrice,
				"low_price":    ob.LowPrice,
				"move_percent": ob.MovePercent,
				"tested":       ob.Tested,
				"test_count":   ob.TestCount,
			},
		})
	}
	return patterns, nil
}

// SmartMoneySource exposes structure breaks, liquidity sweeps and sweep
// reversals as BOS_CHOCH, LIQUIDITY_SWEEP and SMART_MONEY patterns.
type SmartMoneySource struct {
	detector    *analysis.SmartMoneyDetector
	maxPatterns int
}

// NewSmartMoneySource wraps a smart money detector
func NewSmartMoneySource(detector *analysis.SmartMoneyDetector, maxPatterns int) *SmartMoneySource {
	if maxPatterns <= 0 {
		maxPatterns = DefaultMaxPatternsPerDetector
	}
	return &SmartMoneySource{detector: detector, maxPatterns: maxPatterns}
}

func (s *SmartMoneySource) Name() string { return "smart_money" }

func (s *SmartMoneySource) Detect(candles []market.Candle, symbol, timeframe string) ([]PatternConfluence, error) {
	result := s.detector.Analyze(symbol, timeframe, candles)

	var patterns []PatternConfluence
	for _, b := range lastN(result.Breaks, s.maxPatterns) {
		patterns = append(patterns, PatternConfluence{
			PatternType: PatternBOSCHoCH,
			PatternID:   b.ID,
			Confidence:  b.Confidence,
			Strength:    b.Strength,
			Direction:   b.Direction,
			PriceLevel:  b.Level,
			Timeframe:   timeframe,
			Timestamp:   b.Timestamp,
			Metadata: map[string]interface{}{
				"break_type":  string(b.Type),
				"close_price": b.ClosePrice,
			},
		})
	}
	for _, sw := range lastN(result.Sweeps, s.maxPatterns) {
		patterns = append(patterns, PatternConfluence{
			PatternType: PatternLiquiditySweep,
			PatternID:   sw.ID,
			Confidence:  sw.Confidence,
			Strength:    sw.Strength,
			Direction:   sw.Direction,
			PriceLevel:  sw.Level,
			Timeframe:   timeframe,
			Timestamp:   sw.Timestamp,
			Metadata: map[string]interface{}{
				"sweep_price": sw.SweepPrice,
			},
		})
	}
	for _, r := range lastN(result.Reversals, s.maxPatterns) {
		patterns = append(patterns, PatternConfluence{
			PatternType: PatternSmartMoney,
			PatternID:   r.ID,
			Confidence:  r.Confidence,
			Strength:    r.Strength,
			Direction:   r.Direction,
			PriceLevel:  r.Sweep.Level,
			Timeframe:   timeframe,
			Timestamp:   r.Timestamp,
			Metadata: map[string]interface{}{
				"sweep_id":   r.Sweep.ID,
				"break_id":   r.Break.ID,
				"break_type": string(r.Break.Type),
			},
		})
	}
	return patterns, nil
}

func lastN[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
