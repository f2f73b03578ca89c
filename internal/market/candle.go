package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeframe represents a candle interval
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// ErrUnknownTimeframe is returned when a timeframe string is not supported
var ErrUnknownTimeframe = errors.New("unknown timeframe")

// ParseTimeframe converts a string into a supported Timeframe
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe1d:
		return Timeframe(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
}

// Duration returns the bar duration of the timeframe
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Candle represents a single OHLCV bar. Candles are immutable once produced;
// sequences are ordered ascending by open time with no duplicate timestamps
// per (symbol, timeframe).
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Bullish reports whether the candle closed above its open
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Bearish reports whether the candle closed below its open
func (c Candle) Bearish() bool {
	return c.Close < c.Open
}

// Body returns the absolute body size of the candle
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-to-low span of the candle
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Source provides ordered candle history for a (symbol, timeframe) pair.
// Implementations return the most recent candles last, may return fewer than
// limit bars when history is short, and return an empty slice on total
// unavailability rather than fabricating data.
type Source interface {
	Candles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error)
}
