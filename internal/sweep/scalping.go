package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/zones"
)

// ScalpConfig holds the price-action scalping parameters
type ScalpConfig struct {
	LevelProximityPct float64 `yaml:"level_proximity_pct" default:"0.2"` // distance to S/R to count as "at level"
	StopBufferPct     float64 `yaml:"stop_buffer_pct" default:"0.05"`
	TargetRR          float64 `yaml:"target_rr" default:"1.5"`
	BaseConfidence    float64 `yaml:"base_confidence" default:"0.6"`
	SessionStartHour  int     `yaml:"session_start_hour" default:"-1"` // UTC, -1 disables the gate
	SessionEndHour    int     `yaml:"session_end_hour" default:"-1"`
}

// ScalpDetector is the pure price-action variant of the sweep family: a pin
// bar or engulfing candle at a clustered support/resistance level, optionally
// gated to a trading session.
type ScalpDetector struct {
	zones *zones.Detector
	cfg   ScalpConfig
	log   zerolog.Logger
}

// NewScalp creates a price-action scalping detector
func NewScalp(cfg ScalpConfig, log zerolog.Logger) *ScalpDetector {
	if cfg.LevelProximityPct <= 0 {
		cfg.LevelProximityPct = 0.2
	}
	if cfg.StopBufferPct <= 0 {
		cfg.StopBufferPct = 0.05
	}
	if cfg.TargetRR <= 0 {
		cfg.TargetRR = 1.5
	}
	if cfg.BaseConfidence <= 0 {
		cfg.BaseConfidence = 0.6
	}
	return &ScalpDetector{
		zones: zones.NewDetector(0),
		cfg:   cfg,
		log:   log.With().Str("detector", "scalp").Logger(),
	}
}

// Name implements signal.Detector
func (d *ScalpDetector) Name() string { return "price_action_scalp" }

// Detect looks for a reversal candle at a liquidity level on the last bar
func (d *ScalpDetector) Detect(ctx context.Context, dctx signal.Context) ([]signal.Signal, error) {
	candles := dctx.Candles
	if len(candles) < 10 {
		return nil, nil
	}

	if !d.inSession(dctx.Now) {
		return nil, nil
	}

	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	support, resistance := d.zones.DetectLiquidityLevels(candles[:len(candles)-1])

	var direction signal.Direction
	var pattern string

	switch {
	case isPinBarBullish(last) && d.atLevel(last.Low, support):
		direction, pattern = signal.DirectionBuy, "pin_bar"
	case isPinBarBearish(last) && d.atLevel(last.High, resistance):
		direction, pattern = signal.DirectionSell, "pin_bar"
	case isBullishEngulfing(prev, last) && d.atLevel(last.Low, support):
		direction, pattern = signal.DirectionBuy, "engulfing"
	case isBearishEngulfing(prev, last) && d.atLevel(last.High, resistance):
		direction, pattern = signal.DirectionSell, "engulfing"
	default:
		return nil, nil
	}

	buffer := d.cfg.StopBufferPct / 100
	entry := last.Close

	var stop, target float64
	if direction == signal.DirectionBuy {
		stop = last.Low * (1 - buffer)
		target = entry + (entry-stop)*d.cfg.TargetRR
	} else {
		stop = last.High * (1 + buffer)
		target = entry - (stop-entry)*d.cfg.TargetRR
	}

	sig := signal.Signal{
		ID:             signal.NewID(),
		Symbol:         dctx.Symbol,
		Timeframe:      dctx.Timeframe,
		Direction:      direction,
		EntryPrice:     entry,
		StopLoss:       stop,
		TakeProfit:     target,
		Confidence:     d.cfg.BaseConfidence,
		RiskReward:     signal.RiskRewardRatio(entry, stop, target),
		PatternTag:     pattern,
		SourceDetector: d.Name(),
		CreatedAt:      dctx.Now,
	}

	return []signal.Signal{sig}, nil
}

// inSession applies the optional trading-session gate
func (d *ScalpDetector) inSession(now time.Time) bool {
	if d.cfg.SessionStartHour < 0 || d.cfg.SessionEndHour < 0 {
		return true
	}
	hour := now.UTC().Hour()
	if d.cfg.SessionStartHour <= d.cfg.SessionEndHour {
		return hour >= d.cfg.SessionStartHour && hour < d.cfg.SessionEndHour
	}
	// Session wraps midnight.
	return hour >= d.cfg.SessionStartHour || hour < d.cfg.SessionEndHour
}

// atLevel reports whether price is within the proximity threshold of any level
func (d *ScalpDetector) atLevel(price float64, levels []zones.LiquidityLevel) bool {
	threshold := d.cfg.LevelProximityPct / 100
	for _, lvl := range levels {
		if lvl.Price == 0 {
			continue
		}
		diff := price - lvl.Price
		if diff < 0 {
			diff = -diff
		}
		if diff/lvl.Price <= threshold {
			return true
		}
	}
	return false
}

// isPinBarBullish checks for a hammer: long lower wick, small upper wick
func isPinBarBullish(c market.Candle) bool {
	body := c.Body()
	if body == 0 {
		return false
	}
	upper := c.High - maxOf(c.Open, c.Close)
	lower := minOf(c.Open, c.Close) - c.Low
	return lower >= body*2 && upper <= body*0.3
}

// isPinBarBearish checks for a shooting star: long upper wick, small lower wick
func isPinBarBearish(c market.Candle) bool {
	body := c.Body()
	if body == 0 {
		return false
	}
	upper := c.High - maxOf(c.Open, c.Close)
	lower := minOf(c.Open, c.Close) - c.Low
	return upper >= body*2 && lower <= body*0.3
}

// isBullishEngulfing checks whether the second candle's body engulfs the first
func isBullishEngulfing(prev, cur market.Candle) bool {
	return prev.Bearish() && cur.Bullish() && cur.Open <= prev.Close && cur.Close >= prev.Open
}

func isBearishEngulfing(prev, cur market.Candle) bool {
	return prev.Bullish() && cur.Bearish() && cur.Open >= prev.Close && cur.Close <= prev.Open
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minOf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
