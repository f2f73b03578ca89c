// Package sweep implements the liquidity-sweep detector family: the
// three-candle CRT setup, a pure price-action scalping variant and the
// multi-symbol scanning scheduler.
package sweep

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/zones"
)

// CRTConfig holds the three-candle sweep detector parameters
type CRTConfig struct {
	LowerTimeframe market.Timeframe `yaml:"lower_timeframe" default:"5m"`
	LowerBars      int              `yaml:"lower_bars" default:"60"`
	RefineEntry    bool             `yaml:"refine_entry" default:"true"`
	StopBufferPct  float64          `yaml:"stop_buffer_pct" default:"0.05"`
	BaseConfidence float64          `yaml:"base_confidence" default:"0.65"`
	RefineBonus    float64          `yaml:"refine_bonus" default:"0.1"`
}

// CRTDetector matches the three-candle sweep-and-reverse setup: candle 1
// defines a range, candle 2 pierces one boundary intrabar but closes back
// inside, candle 3 supplies the entry reference. A candle 2 close outside the
// range invalidates the setup absolutely.
type CRTDetector struct {
	source market.Source
	zones  *zones.Detector
	cfg    CRTConfig
	log    zerolog.Logger
}

// NewCRT creates a CRT detector. The source is only used for optional
// lower-timeframe entry refinement and may be nil when refinement is off.
func NewCRT(source market.Source, cfg CRTConfig, log zerolog.Logger) *CRTDetector {
	if cfg.StopBufferPct <= 0 {
		cfg.StopBufferPct = 0.05
	}
	if cfg.BaseConfidence <= 0 {
		cfg.BaseConfidence = 0.65
	}
	if cfg.RefineBonus <= 0 {
		cfg.RefineBonus = 0.1
	}
	if cfg.LowerBars <= 0 {
		cfg.LowerBars = 60
	}
	return &CRTDetector{
		source: source,
		zones:  zones.NewDetector(0),
		cfg:    cfg,
		log:    log.With().Str("detector", "crt").Logger(),
	}
}

// Name implements signal.Detector
func (d *CRTDetector) Name() string { return "crt_sweep" }

// Detect examines the last three candles of the window for a sweep setup
func (d *CRTDetector) Detect(ctx context.Context, dctx signal.Context) ([]signal.Signal, error) {
	candles := dctx.Candles
	if len(candles) < 3 {
		return nil, nil
	}

	c1 := candles[len(candles)-3]
	c2 := candles[len(candles)-2]
	c3 := candles[len(candles)-1]

	// A close outside the range invalidates the setup entirely.
	if c2.Close > c1.High || c2.Close < c1.Low {
		return nil, nil
	}

	sweptUp := c2.High > c1.High
	sweptDown := c2.Low < c1.Low
	if sweptUp == sweptDown {
		// Neither boundary pierced, or both: no clean sweep.
		return nil, nil
	}

	buffer := d.cfg.StopBufferPct / 100
	confidence := d.cfg.BaseConfidence

	var direction signal.Direction
	var entry, stop, target float64

	if sweptUp {
		direction = signal.DirectionSell
		entry = c3.Open
		stop = c2.High * (1 + buffer)
		target = c1.Low
	} else {
		direction = signal.DirectionBuy
		entry = c3.Open
		stop = c2.Low * (1 - buffer)
		target = c1.High
	}

	if d.cfg.RefineEntry && d.source != nil {
		if refined, ok := d.refineEntry(ctx, dctx.Symbol, direction); ok {
			entry = refined
			confidence += d.cfg.RefineBonus
		}
	}

	sig := signal.Signal{
		ID:             signal.NewID(),
		Symbol:         dctx.Symbol,
		Timeframe:      dctx.Timeframe,
		Direction:      direction,
		EntryPrice:     entry,
		StopLoss:       stop,
		TakeProfit:     target,
		Confidence:     confidence,
		RiskReward:     signal.RiskRewardRatio(entry, stop, target),
		PatternTag:     "crt_sweep",
		SourceDetector: d.Name(),
		CreatedAt:      dctx.Now,
	}

	return []signal.Signal{sig}, nil
}

// refineEntry searches the lower timeframe for the first fair value gap
// consistent with the sweep direction and uses its near boundary as a tighter
// entry. Refinement failures fall back silently to the candle 3 open.
func (d *CRTDetector) refineEntry(ctx context.Context, symbol string, direction signal.Direction) (float64, bool) {
	lower, err := d.source.Candles(ctx, symbol, d.cfg.LowerTimeframe, d.cfg.LowerBars)
	if err != nil {
		d.log.Debug().Err(err).Str("symbol", symbol).Msg("lower timeframe fetch failed, using raw entry")
		return 0, false
	}

	want := zones.Bearish
	if direction == signal.DirectionBuy {
		want = zones.Bullish
	}

	gaps := d.zones.DetectFairValueGaps(lower)
	for _, g := range gaps {
		if g.Direction != want {
			continue
		}
		if direction == signal.DirectionSell {
			return g.Bottom, true
		}
		return g.Top, true
	}

	return 0, false
}

// ValidateWindow is a convenience guard for callers that want the CRT minimum
// before building a context
func ValidateWindow(candles []market.Candle) error {
	if len(candles) < 3 {
		return fmt.Errorf("crt needs at least 3 candles, got %d", len(candles))
	}
	return nil
}
