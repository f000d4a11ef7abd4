package analysis

import (
	"math"

	"ict-engine/internal/market"
)

// VolumeAnalyzer provides volume-based context for structure analysis
type VolumeAnalyzer struct {
	avgPeriod int // Period for average volume calculation
}

// VolumeProfile represents volume analysis results
type VolumeProfile struct {
	CurrentVolume float64 `json:"current_volume"`
	AverageVolume float64 `json:"average_volume"`
	VolumeRatio   float64 `json:"volume_ratio"`   // Current / Average
	IsHighVolume  bool    `json:"is_high_volume"` // Volume > 2x average
	OBV           float64 `json:"obv"`            // On-Balance Volume
	VolumeType    string  `json:"volume_type"`    // "buying", "selling", "neutral"
}

// NewVolumeAnalyzer creates a new volume analyzer
func NewVolumeAnalyzer(avgPeriod int) *VolumeAnalyzer {
	if avgPeriod <= 0 {
		avgPeriod = 20 // Default 20-period average
	}
	return &VolumeAnalyzer{
		avgPeriod: avgPeriod,
	}
}

// AnalyzeVolume summarizes volume on the latest candle
func (va *VolumeAnalyzer) AnalyzeVolume(candles []market.Candle) *VolumeProfile {
	if len(candles) == 0 {
		return nil
	}

	current := candles[len(candles)-1]
	avgVolume := market.AverageVolume(candles, va.avgPeriod)

	var ratio float64
	if avgVolume > 0 {
		ratio = current.Volume / avgVolume
	}

	return &VolumeProfile{
		CurrentVolume: current.Volume,
		AverageVolume: avgVolume,
		VolumeRatio:   ratio,
		IsHighVolume:  ratio > 2.0,
		OBV:           va.CalculateOBV(candles),
		VolumeType:    va.DetermineVolumeType(current),
	}
}

// DetermineVolumeType identifies if volume is buying or selling pressure
func (va *VolumeAnalyzer) DetermineVolumeType(candle market.Candle) string {
	bodySize := candle.Body()
	upperWick := candle.High - math.Max(candle.Open, candle.Close)
	lowerWick := math.Min(candle.Open, candle.Close) - candle.Low

	if candle.IsBullish() && upperWick < bodySize*0.2 {
		return "buying"
	}
	if candle.IsBearish() && lowerWick < bodySize*0.2 {
		return "selling"
	}
	return "neutral"
}

// CalculateOBV calculates On-Balance Volume
func (va *VolumeAnalyzer) CalculateOBV(candles []market.Candle) float64 {
	obv := 0.0
	for i := 1; i < len(candles); i++ {
		if candles[i].Close > candles[i-1].Close {
			obv += candles[i].Volume
		} else if candles[i].Close < candles[i-1].Close {
			obv -= candles[i].Volume
		}
	}
	return obv
}

// IsOBVBullish checks if OBV over the last period is rising versus the
// period one bar earlier
func (va *VolumeAnalyzer) IsOBVBullish(candles []market.Candle, period int) bool {
	if len(candles) < period+1 {
		return false
	}

	currentOBV := va.CalculateOBV(candles[len(candles)-period:])
	previousOBV := va.CalculateOBV(candles[len(candles)-period-1 : len(candles)-1])

	return currentOBV > previousOBV
}

// DetectVolumeDryUp identifies consolidation with declining volume
func (va *VolumeAnalyzer) DetectVolumeDryUp(candles []market.Candle, period int) bool {
	if period < 2 || len(candles) < period {
		return false
	}

	recent := candles[len(candles)-period:]
	mid := period / 2

	firstHalf, secondHalf := 0.0, 0.0
	for i := 0; i < mid; i++ {
		firstHalf += recent[i].Volume
	}
	for i := mid; i < period; i++ {
		secondHalf += recent[i].Volume
	}
	firstHalf /= float64(mid)
	secondHalf /= float64(period - mid)

	return secondHalf < firstHalf*0.7
}
