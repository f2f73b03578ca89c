package market

import (
	"context"
	"hash/fnv"
	"math"
	"time"
)

// MockSource generates deterministic synthetic candles for demo runs and
// tests. It is an explicitly labeled fallback, never a silent substitute for
// exchange data: the same symbol, timeframe and limit always yield the same
// series.
type MockSource struct {
	basePrice float64
}

// NewMockSource creates a synthetic candle source
func NewMockSource() *MockSource {
	return &MockSource{basePrice: 100}
}

// Candles implements Source with a seeded trend-plus-cycle walk
func (s *MockSource) Candles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	if limit <= 0 {
		return nil, nil
	}

	seed := symbolSeed(symbol)
	step := tf.Duration()
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	start := end.Add(-time.Duration(limit) * step)

	base := s.basePrice * (1 + float64(seed%50)/100)
	candles := make([]Candle, limit)

	for i := 0; i < limit; i++ {
		phase := float64(i) / 12
		trend := base * 0.0004 * float64(i)
		cycle := base * 0.02 * math.Sin(phase+float64(seed%7))
		wobble := base * 0.005 * math.Sin(3*phase+float64(seed%13))

		open := base + trend + cycle
		close := base + trend + cycle + wobble
		high := math.Max(open, close) + base*0.003
		low := math.Min(open, close) - base*0.003

		candles[i] = Candle{
			OpenTime: start.Add(time.Duration(i) * step),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   1000 + 500*math.Abs(math.Sin(phase)),
		}
	}

	return candles, nil
}

func symbolSeed(symbol string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return h.Sum64()
}
