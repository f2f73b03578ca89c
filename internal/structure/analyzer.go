package structure

import (
	"time"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
)

// Trend represents the structural market direction
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// SwingKind distinguishes swing highs from swing lows
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint represents a local extremum over a symmetric lookback window
type SwingPoint struct {
	Index int
	Price float64
	Kind  SwingKind
	Time  time.Time
}

// Break records a structural level break (BOS or CHOCH)
type Break struct {
	Bullish bool
	Bearish bool
	Level   float64
}

// State is an immutable snapshot of market structure produced by one analysis
// call. It is recomputed from the candle sequence every time and never mutated
// in place.
type State struct {
	Trend      Trend
	SwingHighs []SwingPoint
	SwingLows  []SwingPoint
	BOS        Break
	CHOCH      Break
}

// Analyzer extracts swing points and classifies market structure
type Analyzer struct {
	lookback  int
	chochGate bool // require prior opposite-direction structure for CHOCH
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithoutCHOCHGate disables the trend-reversal requirement on CHOCH detection,
// reducing CHOCH to the plain break condition on 3+ swings.
func WithoutCHOCHGate() Option {
	return func(a *Analyzer) { a.chochGate = false }
}

// NewAnalyzer creates a structure analyzer. Lookback is the number of bars
// checked strictly on each side of a candidate swing (default 5).
func NewAnalyzer(lookback int, opts ...Option) *Analyzer {
	if lookback <= 0 {
		lookback = 5
	}
	a := &Analyzer{lookback: lookback, chochGate: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MinCandles returns the minimum window length needed for any swing to exist
func (a *Analyzer) MinCandles() int {
	return 2*a.lookback + 1
}

// Analyze computes a fresh structure snapshot from the candle sequence.
// With fewer than 2*lookback+1 candles it returns a neutral empty state,
// treating short history as insufficient data rather than an error.
func (a *Analyzer) Analyze(candles []market.Candle) *State {
	state := &State{Trend: TrendNeutral}

	if len(candles) < a.MinCandles() {
		return state
	}

	state.SwingHighs = a.findSwings(candles, SwingHigh)
	state.SwingLows = a.findSwings(candles, SwingLow)

	state.Trend = classifyTrend(state.SwingHighs, state.SwingLows)
	state.BOS = detectBOS(state.SwingHighs, state.SwingLows)
	state.CHOCH = a.detectCHOCH(state.SwingHighs, state.SwingLows)

	return state
}

// findSwings locates bars that are strict extrema over the symmetric lookback
// window. Bars within lookback of either boundary can never be swings.
func (a *Analyzer) findSwings(candles []market.Candle, kind SwingKind) []SwingPoint {
	var swings []SwingPoint

	for i := a.lookback; i < len(candles)-a.lookback; i++ {
		isSwing := true

		for j := i - a.lookback; j <= i+a.lookback; j++ {
			if j == i {
				continue
			}
			if kind == SwingHigh && candles[j].High >= candles[i].High {
				isSwing = false
				break
			}
			if kind == SwingLow && candles[j].Low <= candles[i].Low {
				isSwing = false
				break
			}
		}

		if !isSwing {
			continue
		}

		price := candles[i].High
		if kind == SwingLow {
			price = candles[i].Low
		}
		swings = append(swings, SwingPoint{
			Index: i,
			Price: price,
			Kind:  kind,
			Time:  candles[i].OpenTime,
		})
	}

	return swings
}

// classifyTrend compares the two most recent swings per side. Higher highs and
// higher lows mean bullish, lower highs and lower lows mean bearish, anything
// else is neutral. Fewer than 2 swings of a kind also yields neutral.
func classifyTrend(highs, lows []SwingPoint) Trend {
	if len(highs) < 2 || len(lows) < 2 {
		return TrendNeutral
	}

	higherHighs := highs[len(highs)-1].Price > highs[len(highs)-2].Price
	higherLows := lows[len(lows)-1].Price > lows[len(lows)-2].Price
	lowerHighs := highs[len(highs)-1].Price < highs[len(highs)-2].Price
	lowerLows := lows[len(lows)-1].Price < lows[len(lows)-2].Price

	if higherHighs && higherLows {
		return TrendBullish
	}
	if lowerHighs && lowerLows {
		return TrendBearish
	}
	return TrendNeutral
}

// detectBOS checks whether the latest swing broke the prior swing level in
// the continuation direction
func detectBOS(highs, lows []SwingPoint) Break {
	var b Break

	if len(highs) >= 2 && highs[len(highs)-1].Price > highs[len(highs)-2].Price {
		b.Bullish = true
		b.Level = highs[len(highs)-2].Price
	}
	if len(lows) >= 2 && lows[len(lows)-1].Price < lows[len(lows)-2].Price {
		b.Bearish = true
		b.Level = lows[len(lows)-2].Price
	}

	return b
}

// detectCHOCH checks the same break condition as BOS but requires at least 3
// swings of the relevant kind and, when the gate is enabled, a prior structure
// that was trending in the opposite direction. A bullish CHOCH is only valid
// after bearish structure, and vice versa.
func (a *Analyzer) detectCHOCH(highs, lows []SwingPoint) Break {
	var b Break

	if len(highs) >= 3 && highs[len(highs)-1].Price > highs[len(highs)-2].Price {
		if !a.chochGate || priorTrend(highs, lows) == TrendBearish {
			b.Bullish = true
			b.Level = highs[len(highs)-2].Price
		}
	}
	if len(lows) >= 3 && lows[len(lows)-1].Price < lows[len(lows)-2].Price {
		if !a.chochGate || priorTrend(highs, lows) == TrendBullish {
			b.Bearish = true
			if !b.Bullish {
				b.Level = lows[len(lows)-2].Price
			}
		}
	}

	return b
}

// priorTrend classifies the structure as it stood before the most recent swing
// on each side
func priorTrend(highs, lows []SwingPoint) Trend {
	if len(highs) < 1 || len(lows) < 1 {
		return TrendNeutral
	}
	return classifyTrend(highs[:len(highs)-1], lows[:len(lows)-1])
}
