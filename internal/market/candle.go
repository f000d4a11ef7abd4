package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNoData is returned when a candle series is empty
	ErrNoData = errors.New("no candle data")
	// ErrInvalidCandle is returned when a candle has impossible prices
	ErrInvalidCandle = errors.New("invalid candle")
)

// Candle represents one OHLCV bar. Times are unix milliseconds.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// Time returns the candle close time, falling back to the open time
func (c Candle) Time() time.Time {
	if c.CloseTime > 0 {
		return time.UnixMilli(c.CloseTime).UTC()
	}
	return time.UnixMilli(c.OpenTime).UTC()
}

// IsBullish reports whether the candle closed above its open
func (c Candle) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports whether the candle closed below its open
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Range is high minus low
func (c Candle) Range() float64 { return c.High - c.Low }

// Body is the absolute open-close distance
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

// Validate checks that the series is non-empty and every bar is well formed
func Validate(candles []Candle) error {
	if len(candles) == 0 {
		return ErrNoData
	}
	for i, c := range candles {
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return fmt.Errorf("%w at index %d: non-positive price", ErrInvalidCandle, i)
		}
		if math.IsNaN(c.Open+c.High+c.Low+c.Close) || math.IsInf(c.Open+c.High+c.Low+c.Close, 0) {
			return fmt.Errorf("%w at index %d: non-finite price", ErrInvalidCandle, i)
		}
		if c.High < c.Low {
			return fmt.Errorf("%w at index %d: high %.5f below low %.5f", ErrInvalidCandle, i, c.High, c.Low)
		}
		if c.Open < c.Low || c.Open > c.High {
			return fmt.Errorf("%w at index %d: open %.5f outside %.5f-%.5f", ErrInvalidCandle, i, c.Open, c.Low, c.High)
		}
		if c.Close < c.Low || c.Close > c.High {
			return fmt.Errorf("%w at index %d: close %.5f outside %.5f-%.5f", ErrInvalidCandle, i, c.Close, c.Low, c.High)
		}
	}
	return nil
}

// LastClose returns the close of the most recent candle, or 0 for an empty series
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// AverageRange returns the mean high-low range over the last period candles
func AverageRange(candles []Candle, period int) float64 {
	window := tail(candles, period)
	if len(window) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range window {
		sum += c.Range()
	}
	return sum / float64(len(window))
}

// AverageVolume returns the mean volume over the last period candles
func AverageVolume(candles []Candle, period int) float64 {
	window := tail(candles, period)
	if len(window) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range window {
		sum += c.Volume
	}
	return sum / float64(len(window))
}

func tail(candles []Candle, period int) []Candle {
	if period <= 0 || period >= len(candles) {
		return candles
	}
	return candles[len(candles)-period:]
}
