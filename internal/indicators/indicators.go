// Package indicators provides the small set of statistical helpers shared by
// the risk manager and the consensus scorer.
package indicators

import (
	"math"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
)

// ATR calculates the Average True Range over the trailing period
func ATR(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	trSum := 0.0
	start := len(candles) - period

	for i := start; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trSum += tr
	}

	return trSum / float64(period)
}

// SMA calculates the simple moving average of closes over the trailing period
func SMA(candles []market.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// Returns computes per-bar close-to-close returns
func Returns(candles []market.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (candles[i].Close-candles[i-1].Close)/candles[i-1].Close)
	}
	return returns
}

// Mean returns the arithmetic mean of the values, 0 when empty
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of the values
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}

// Volatility returns the standard deviation of per-bar returns
func Volatility(candles []market.Candle) float64 {
	return StdDev(Returns(candles))
}

// VolumeRatio compares the latest bar's volume against the trailing average.
// Returns 1 when there is not enough history to compare.
func VolumeRatio(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 || period <= 0 {
		return 1
	}

	sum := 0.0
	for i := len(candles) - period - 1; i < len(candles)-1; i++ {
		sum += candles[i].Volume
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 1
	}
	return candles[len(candles)-1].Volume / avg
}
