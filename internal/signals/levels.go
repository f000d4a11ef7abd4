package signals

import (
	"math"

	"github.com/shopspring/decimal"
)

// SignalFor maps the blended score and bias flags onto the signal ladder.
// Conflicting or missing bias is never actionable.
func SignalFor(overall float64, bullish, bearish bool) TradingSignal {
	if bullish == bearish {
		return SignalWait
	}

	switch {
	case overall >= 85:
		if bullish {
			return SignalStrongBuy
		}
		return SignalStrongSell
	case overall >= 70:
		if bullish {
			return SignalBuy
		}
		return SignalSell
	case overall >= 55:
		if bullish {
			return SignalWeakBuy
		}
		return SignalWeakSell
	case overall >= 40:
		return SignalHold
	}
	return SignalWait
}

// AlternativeSignals lists the weaker calls adjacent to a primary signal
func AlternativeSignals(primary TradingSignal) []TradingSignal {
	switch primary {
	case SignalStrongBuy:
		return []TradingSignal{SignalBuy, SignalWeakBuy}
	case SignalBuy:
		return []TradingSignal{SignalWeakBuy, SignalHold}
	case SignalWeakBuy:
		return []TradingSignal{SignalHold}
	case SignalStrongSell:
		return []TradingSignal{SignalSell, SignalWeakSell}
	case SignalSell:
		return []TradingSignal{SignalWeakSell, SignalHold}
	case SignalWeakSell:
		return []TradingSignal{SignalHold}
	}
	return []TradingSignal{}
}

// QualityFor buckets an overall score
func QualityFor(overall float64) SetupQuality {
	switch {
	case overall >= 90:
		return QualityExcellent
	case overall >= 70:
		return QualityGood
	case overall >= 50:
		return QualityAverage
	case overall >= 30:
		return QualityPoor
	}
	return QualityInvalid
}

// BlendScores weights confluence 60% and structure 40%
func BlendScores(confluenceScore, structureScore float64) float64 {
	return clamp(confluenceScore*0.6 + structureScore*0.4)
}

// Levels holds entry, stop and target for one side
type Levels struct {
	Entry  float64
	Stop   float64
	Target float64
}

// CalculateLevels applies percentage offsets to the reference close
func CalculateLevels(lastClose float64, dir Direction, entryPct, stopPct, targetPct float64) Levels {
	if dir == DirectionShort {
		return Levels{
			Entry:  roundPrice(lastClose*(1-entryPct/100), lastClose),
			Stop:   roundPrice(lastClose*(1+stopPct/100), lastClose),
			Target: roundPrice(lastClose*(1-targetPct/100), lastClose),
		}
	}
	return Levels{
		Entry:  roundPrice(lastClose*(1+entryPct/100), lastClose),
		Stop:   roundPrice(lastClose*(1-stopPct/100), lastClose),
		Target: roundPrice(lastClose*(1+targetPct/100), lastClose),
	}
}

// RiskReward returns reward/risk measured from entry, or 0 when risk is 0
func (l Levels) RiskReward() float64 {
	risk := decimal.NewFromFloat(l.Entry).Sub(decimal.NewFromFloat(l.Stop)).Abs()
	if risk.IsZero() {
		return 0
	}
	reward := decimal.NewFromFloat(l.Target).Sub(decimal.NewFromFloat(l.Entry)).Abs()
	return reward.Div(risk).Round(2).InexactFloat64()
}

// PriceDecimals picks a rounding precision from the price magnitude
func PriceDecimals(price float64) int32 {
	p := math.Abs(price)
	switch {
	case p >= 1000:
		return 2
	case p >= 10:
		return 3
	}
	return 5
}

func roundPrice(v, reference float64) float64 {
	return decimal.NewFromFloat(v).Round(PriceDecimals(reference)).InexactFloat64()
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
