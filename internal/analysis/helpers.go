package analysis

import (
	"errors"
	"strings"

	"ict-engine/internal/market"
)

// ErrInsufficientData is returned when a series is too short for an analysis
var ErrInsufficientData = errors.New("insufficient candle data")

// PipSize returns the pip size used to express gap sizes for a symbol.
// JPY pairs quote to 2 decimals, metals and high priced instruments are
// measured in points.
func PipSize(symbol string, price float64) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "JPY"):
		return 0.01
	case strings.HasPrefix(s, "XAU"):
		return 0.1
	case strings.HasPrefix(s, "XAG"):
		return 0.01
	case price >= 1000:
		return 1
	case price >= 20:
		return 0.01
	default:
		return 0.0001
	}
}

// findSwings returns swing highs and lows: bars whose high (low) is strictly
// above (below) every other bar within lookback on both sides.
func findSwings(candles []market.Candle, lookback int) (highs, lows []SwingPoint) {
	for i := lookback; i < len(candles)-lookback; i++ {
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			highs = append(highs, SwingPoint{
				Price:       candles[i].High,
				CandleIndex: i,
				Type:        "high",
				Confirmed:   true,
				Time:        candles[i].Time(),
			})
		}
		if isLow {
			lows = append(lows, SwingPoint{
				Price:       candles[i].Low,
				CandleIndex: i,
				Type:        "low",
				Confirmed:   true,
				Time:        candles[i].Time(),
			})
		}
	}
	return highs, lows
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
