package signal

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
)

// Direction represents the trade direction of a signal
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite returns the reversed direction
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// Signal represents a directional trading signal produced by a single detector
type Signal struct {
	ID             string           `json:"id"`
	Symbol         string           `json:"symbol"`
	Timeframe      market.Timeframe `json:"timeframe"`
	Direction      Direction        `json:"direction"`
	EntryPrice     float64          `json:"entry_price"`
	StopLoss       float64          `json:"stop_loss"`
	TakeProfit     float64          `json:"take_profit"`
	Confidence     float64          `json:"confidence"`
	RiskReward     float64          `json:"risk_reward"`
	PatternTag     string           `json:"pattern_tag"`
	SourceDetector string           `json:"source_detector"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewID returns a fresh signal identifier
func NewID() string {
	return uuid.NewString()
}

// RiskRewardRatio computes reward distance over risk distance. Returns 0 when
// the risk distance is zero.
func RiskRewardRatio(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

// ConsensusSignal aggregates multiple same-pattern signals into one signal
// with consensus-weighted confidence
type ConsensusSignal struct {
	Signal
	Members       int     `json:"members"`
	Agreement     float64 `json:"agreement"`      // |buy-sell| / members
	SuggestedSize float64 `json:"suggested_size"` // position size after risk adjustment
}

// RiskProfile is the read-only risk assessment supplied by the risk service
type RiskProfile struct {
	Volatility      float64  `json:"volatility"`
	ATR             float64  `json:"atr"`
	LiquidityRatio  float64  `json:"liquidity_ratio"`
	RiskScore       float64  `json:"risk_score"` // 0.0 to 1.0
	Recommendations []string `json:"recommendations,omitempty"`
}

// Context carries everything a detector needs for one analysis call. Detectors
// are pure functions of this input and hold no mutable state between calls.
type Context struct {
	Symbol    string
	Timeframe market.Timeframe
	Candles   []market.Candle
	Risk      *RiskProfile
	Now       time.Time
}

// LastClose returns the close of the most recent candle, or 0 when empty
func (c Context) LastClose() float64 {
	if len(c.Candles) == 0 {
		return 0
	}
	return c.Candles[len(c.Candles)-1].Close
}

// Detector is the common interface for all pattern and structure detectors.
// Implementations return an empty slice (never an error) when the candle
// window is too short for the pattern.
type Detector interface {
	// Name returns the detector name used as SourceDetector on emitted signals
	Name() string

	// Detect scans the candle window and returns zero or more signals
	Detect(ctx context.Context, dctx Context) ([]Signal, error)
}
