package analysis

import (
	"math"
	"testing"

	"ict-engine/internal/market"
)

// TestDetectBullishFVG tests detection of bullish Fair Value Gaps
func TestDetectBullishFVG(t *testing.T) {
	detector := NewFVGDetector(0.1)

	candles := []market.Candle{
		// Candle 1: High at 100
		{Open: 95, High: 100, Low: 94, Close: 98, CloseTime: 1000000},
		// Candle 2: Gap creator (middle candle)
		{Open: 98, High: 105, Low: 97, Close: 104, CloseTime: 2000000},
		// Candle 3: Low at 101 (gap between 100 and 101)
		{Open: 104, High: 108, Low: 101, Close: 106, CloseTime: 3000000},
	}

	fvgs := detector.DetectFVGs("BTCUSDT", "1h", candles)

	if len(fvgs) != 1 {
		t.Fatalf("Expected 1 FVG, got %d", len(fvgs))
	}

	fvg := fvgs[0]

	if fvg.Type != BullishFVG {
		t.Errorf("Expected BullishFVG, got %s", fvg.Type)
	}
	if fvg.BottomPrice != 100 {
		t.Errorf("Expected BottomPrice 100, got %f", fvg.BottomPrice)
	}
	if fvg.TopPrice != 101 {
		t.Errorf("Expected TopPrice 101, got %f", fvg.TopPrice)
	}
	if fvg.Filled || fvg.Status != FVGActive {
		t.Errorf("FVG should be active initially, got status %s", fvg.Status)
	}
	if fvg.FillPercentage != 0 {
		t.Errorf("Expected 0%% fill, got %f", fvg.FillPercentage)
	}
	// aligned middle candle + unfilled + recent
	if fvg.Confidence != 85 {
		t.Errorf("Expected confidence 85, got %f", fvg.Confidence)
	}
	if fvg.Score <= 0 || fvg.Score > 100 {
		t.Errorf("Score out of range: %f", fvg.Score)
	}
	if !containsString(fvg.Confluences, "aligned_candle") || !containsString(fvg.Confluences, "displacement") {
		t.Errorf("Unexpected confluences %v", fvg.Confluences)
	}
}

// TestDetectBearishFVG tests detection of bearish Fair Value Gaps
func TestDetectBearishFVG(t *testing.T) {
	detector := NewFVGDetector(0.1)

	candles := []market.Candle{
		// Candle 1: Low at 100
		{Open: 105, High: 106, Low: 100, Close: 102, CloseTime: 1000000},
		// Candle 2: Gap creator
		{Open: 102, High: 103, Low: 95, Close: 96, CloseTime: 2000000},
		// Candle 3: High at 99 (gap between 99 and 100)
		{Open: 96, High: 99, Low: 92, Close: 94, CloseTime: 3000000},
	}

	fvgs := detector.DetectFVGs("BTCUSDT", "1h", candles)

	if len(fvgs) != 1 {
		t.Fatalf("Expected 1 FVG, got %d", len(fvgs))
	}

	fvg := fvgs[0]

	if fvg.Type != BearishFVG {
		t.Errorf("Expected BearishFVG, got %s", fvg.Type)
	}
	if fvg.BottomPrice != 99 {
		t.Errorf("Expected BottomPrice 99, got %f", fvg.BottomPrice)
	}
	if fvg.TopPrice != 100 {
		t.Errorf("Expected TopPrice 100, got %f", fvg.TopPrice)
	}
}

// TestNoFVGDetection tests that no FVG is detected when candles overlap
func TestNoFVGDetection(t *testing.T) {
	detector := NewFVGDetector(0.1)

	candles := []market.Candle{
		{Open: 95, High: 100, Low: 94, Close: 98, CloseTime: 1000000},
		{Open: 98, High: 102, Low: 97, Close: 100, CloseTime: 2000000},
		{Open: 100, High: 104, Low: 99, Close: 102, CloseTime: 3000000},
	}

	fvgs := detector.DetectFVGs("BTCUSDT", "1h", candles)

	if len(fvgs) != 0 {
		t.Errorf("Expected 0 FVGs for overlapping candles, got %d", len(fvgs))
	}
}

func TestGapPipsForex(t *testing.T) {
	detector := NewFVGDetector(0.1)

	candles := []market.Candle{
		{Open: 1.0790, High: 1.0800, Low: 1.0785, Close: 1.0798},
		{Open: 1.0798, High: 1.0830, Low: 1.0796, Close: 1.0828},
		{Open: 1.0828, High: 1.0840, Low: 1.0820, Close: 1.0835},
	}

	fvgs := detector.DetectFVGs("EURUSD", "15m", candles)
	if len(fvgs) != 1 {
		t.Fatalf("Expected 1 FVG, got %d", len(fvgs))
	}
	if math.Abs(fvgs[0].GapPips-20) > 1e-6 {
		t.Errorf("Expected 20 pips, got %f", fvgs[0].GapPips)
	}
}

// TestIsPriceInFVG tests price proximity detection
func TestIsPriceInFVG(t *testing.T) {
	detector := NewFVGDetector(0.1)

	fvg := FVG{
		Type:        BullishFVG,
		TopPrice:    105,
		BottomPrice: 100,
	}

	tests := []struct {
		price    float64
		expected bool
	}{
		{102.5, true}, // Inside FVG
		{100, true},   // At bottom
		{105, true},   // At top
		{99, false},   // Below FVG
		{106, false},  // Above FVG
	}

	for _, tt := range tests {
		result := detector.IsPriceInFVG(tt.price, fvg)
		if result != tt.expected {
			t.Errorf("IsPriceInFVG(%f) = %v, expected %v", tt.price, result, tt.expected)
		}
	}

	if !detector.IsPriceNearFVG(106, fvg, 20) {
		t.Error("106 should be within 20% of a 5 point gap")
	}
	if detector.IsPriceNearFVG(107, fvg, 20) {
		t.Error("107 should not be within 20% of a 5 point gap")
	}
}

func TestUpdateFVGStatus_PartialThenFilled(t *testing.T) {
	detector := NewFVGDetector(0.1)

	fvg := FVG{
		Type:        BullishFVG,
		TopPrice:    105,
		BottomPrice: 100,
		Status:      FVGActive,
	}

	// Wick down into the upper 60% of the gap
	detector.UpdateFVGStatus(&fvg, []market.Candle{
		{Open: 110, High: 112, Low: 102, Close: 108, CloseTime: 4000000},
	})

	if fvg.Filled {
		t.Fatal("FVG should only be partially filled")
	}
	if fvg.Status != FVGPartiallyFilled {
		t.Errorf("Expected PARTIALLY_FILLED, got %s", fvg.Status)
	}
	if math.Abs(fvg.FillPercentage-60) > 1e-9 {
		t.Errorf("Expected 60%% fill, got %f", fvg.FillPercentage)
	}
	if fvg.FilledPrice != nil {
		t.Error("FilledPrice should not be set on a partial fill")
	}

	// Trade through the bottom
	detector.UpdateFVGStatus(&fvg, []market.Candle{
		{Open: 104, High: 104.5, Low: 99, Close: 101, CloseTime: 5000000},
	})

	if !fvg.Filled || fvg.Status != FVGFilled {
		t.Fatalf("FVG should be filled, status %s", fvg.Status)
	}
	if fvg.FillPercentage != 100 {
		t.Errorf("Expected 100%% fill, got %f", fvg.FillPercentage)
	}
	if fvg.FilledPrice == nil || *fvg.FilledPrice != 99 {
		t.Errorf("Expected FilledPrice 99, got %v", fvg.FilledPrice)
	}
}

func TestDetectFVGs_FilledGapLosesConfidence(t *testing.T) {
	detector := NewFVGDetector(0.1)

	candles := []market.Candle{
		{Open: 95, High: 100, Low: 94, Close: 98, CloseTime: 1000000},
		{Open: 98, High: 105, Low: 97, Close: 104, CloseTime: 2000000},
		{Open: 104, High: 108, Low: 101, Close: 106, CloseTime: 3000000},
		// Retrace through the whole gap
		{Open: 106, High: 106.5, Low: 99.5, Close: 100.5, CloseTime: 4000000},
	}

	fvgs := detector.DetectFVGs("BTCUSDT", "1h", candles)
	if len(fvgs) != 1 {
		t.Fatalf("Expected 1 FVG, got %d", len(fvgs))
	}
	fvg := fvgs[0]
	if fvg.Status != FVGFilled {
		t.Errorf("Expected FILLED, got %s", fvg.Status)
	}
	// aligned + recent - filled
	if fvg.Confidence != 55 {
		t.Errorf("Expected confidence 55, got %f", fvg.Confidence)
	}
	if len(detector.GetUnfilledFVGs(fvgs)) != 0 {
		t.Error("Filled gap should not be returned as unfilled")
	}
}

func TestDetectFVGs_RangeBaselineIsLocal(t *testing.T) {
	var candles []market.Candle
	for i := 0; i < 30; i++ {
		candles = append(candles, market.Candle{Open: 100, High: 110, Low: 90, Close: 100})
	}
	for i := 0; i < 20; i++ {
		candles = append(candles, market.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100})
	}
	c1 := market.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100.2}
	c2 := market.Candle{Open: 100.2, High: 102, Low: 100.1, Close: 101.9}
	c3 := market.Candle{Open: 101.9, High: 102.5, Low: 101, Close: 102.2}
	candles = append(candles, c1, c2, c3)

	local := NewFVGDetector(0.1).DetectFVGs("BTCUSDT", "1h", candles)
	whole := (&FVGDetector{minGapPercent: 0.1, recentBars: 10}).DetectFVGs("BTCUSDT", "1h", candles)
	if len(local) != 1 || len(whole) != 1 {
		t.Fatalf("Expected one FVG from each detector, got %d and %d", len(local), len(whole))
	}

	// 18 quiet bars plus c1 and c2
	avgRange := (18*1.0 + c1.Range() + c2.Range()) / 20
	want := 0.6*(c3.Low-c1.High)/avgRange*100 + 0.4*c2.Body()/c2.Range()*100
	if math.Abs(local[0].Score-want) > 1e-6 {
		t.Errorf("Expected score %f from the 20 bar baseline, got %f", want, local[0].Score)
	}
	if local[0].Score-whole[0].Score < 20 {
		t.Errorf("Wide bars far from the gap should not shrink its score: local %f, whole series %f",
			local[0].Score, whole[0].Score)
	}
}

// TestMinGapPercent tests minimum gap size filtering
func TestMinGapPercent(t *testing.T) {
	detector := NewFVGDetector(5.0) // 5% minimum gap

	candles := []market.Candle{
		{Open: 100, High: 100.5, Low: 99.5, Close: 100, CloseTime: 1000000},
		{Open: 100, High: 102, Low: 99, Close: 101, CloseTime: 2000000},
		{Open: 101, High: 102, Low: 100.6, Close: 101.5, CloseTime: 3000000}, // Gap of 0.1
	}

	fvgs := detector.DetectFVGs("BTCUSDT", "1h", candles)

	if len(fvgs) != 0 {
		t.Errorf("Expected 0 FVGs with small gap, got %d", len(fvgs))
	}
}

// BenchmarkDetectFVGs benchmarks FVG detection performance
func BenchmarkDetectFVGs(b *testing.B) {
	detector := NewFVGDetector(0.1)

	candles := make([]market.Candle, 1000)
	for i := range candles {
		candles[i] = market.Candle{
			Open:      float64(100 + i),
			High:      float64(105 + i),
			Low:       float64(95 + i),
			Close:     float64(102 + i),
			CloseTime: int64((i + 1) * 1000000),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.DetectFVGs("BTCUSDT", "1h", candles)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
