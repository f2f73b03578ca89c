// Package smc implements top-down multi-timeframe confirmation: structural
// bias from a driver timeframe, a change of character on a confirmation
// timeframe inside the driver zone, and a second change of character on the
// entry timeframe inside the reaction zone.
package smc

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/structure"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/zones"
)

// Config holds the multi-timeframe confirmation parameters
type Config struct {
	DriverTimeframe  market.Timeframe `yaml:"driver_timeframe" default:"4h"`
	ConfirmTimeframe market.Timeframe `yaml:"confirm_timeframe" default:"15m"`
	EntryTimeframe   market.Timeframe `yaml:"entry_timeframe" default:"1m"`
	DriverBars       int              `yaml:"driver_bars" default:"200"`
	ConfirmBars      int              `yaml:"confirm_bars" default:"300"`
	EntryBars        int              `yaml:"entry_bars" default:"300"`
	SwingLookback    int              `yaml:"swing_lookback" default:"5"`
	SweepLookback    int              `yaml:"sweep_lookback" default:"10"`
	TargetPct        float64          `yaml:"target_pct" default:"2.0"`      // fixed extension target
	StopBufferPct    float64          `yaml:"stop_buffer_pct" default:"0.1"` // beyond the order block edge
	BaseConfidence   float64          `yaml:"base_confidence" default:"0.6"`
	ConfluenceBonus  float64          `yaml:"confluence_bonus" default:"0.1"`
	MaxConfidence    float64          `yaml:"max_confidence" default:"0.95"`
}

// Detector runs the three-stage top-down confirmation. It emits at most one
// signal per call and nothing at all when any stage fails to confirm.
type Detector struct {
	source    market.Source
	structure *structure.Analyzer
	zones     *zones.Detector
	cfg       Config
	log       zerolog.Logger
}

// New creates a multi-timeframe confirmation detector
func New(source market.Source, cfg Config, log zerolog.Logger) *Detector {
	if cfg.DriverBars <= 0 {
		cfg.DriverBars = 200
	}
	if cfg.ConfirmBars <= 0 {
		cfg.ConfirmBars = 300
	}
	if cfg.EntryBars <= 0 {
		cfg.EntryBars = 300
	}
	if cfg.TargetPct <= 0 {
		cfg.TargetPct = 2.0
	}
	if cfg.BaseConfidence <= 0 {
		cfg.BaseConfidence = 0.6
	}
	if cfg.ConfluenceBonus <= 0 {
		cfg.ConfluenceBonus = 0.1
	}
	if cfg.MaxConfidence <= 0 {
		cfg.MaxConfidence = 0.95
	}
	return &Detector{
		source:    source,
		structure: structure.NewAnalyzer(cfg.SwingLookback),
		zones:     zones.NewDetector(0),
		cfg:       cfg,
		log:       log.With().Str("detector", "smc").Logger(),
	}
}

// Name implements signal.Detector
func (d *Detector) Name() string { return "smc_multi_timeframe" }

// Detect runs the full top-down pipeline for the context's symbol. The candle
// window in the context is used as the driver series when its timeframe
// matches; otherwise driver candles are fetched from the source.
func (d *Detector) Detect(ctx context.Context, dctx signal.Context) ([]signal.Signal, error) {
	driver := dctx.Candles
	if dctx.Timeframe != d.cfg.DriverTimeframe || len(driver) == 0 {
		var err error
		driver, err = d.source.Candles(ctx, dctx.Symbol, d.cfg.DriverTimeframe, d.cfg.DriverBars)
		if err != nil {
			return nil, fmt.Errorf("fetch driver candles: %w", err)
		}
	}
	if len(driver) < d.structure.MinCandles() {
		return nil, nil
	}

	currentPrice := driver[len(driver)-1].Close

	// Stage 1: driver-level zone nearest to price sets the bias.
	driverSnap := d.zones.Analyze(driver)
	driverZone := zones.NearestZone(driverSnap.OrderBlocks, currentPrice)
	if driverZone == nil {
		return nil, nil
	}

	direction := signal.DirectionBuy
	if driverZone.Direction == zones.Bearish {
		direction = signal.DirectionSell
	}

	// Stage 2: change of character on the confirmation timeframe, restricted
	// to price action inside the driver zone.
	confirm, err := d.source.Candles(ctx, dctx.Symbol, d.cfg.ConfirmTimeframe, d.cfg.ConfirmBars)
	if err != nil {
		return nil, fmt.Errorf("fetch confirmation candles: %w", err)
	}
	inZone := sliceFromZoneTouch(confirm, *driverZone)
	if !d.hasCHOCH(inZone, direction) {
		return nil, nil
	}

	// Stage 3: reaction zone from the latest confirmation order block impulse.
	reaction := latestOrderBlock(d.zones.DetectOrderBlocks(confirm), driverZone.Direction)
	if reaction == nil {
		return nil, nil
	}

	// Stage 4: second change of character on the entry timeframe inside the
	// reaction zone.
	entry, err := d.source.Candles(ctx, dctx.Symbol, d.cfg.EntryTimeframe, d.cfg.EntryBars)
	if err != nil {
		return nil, fmt.Errorf("fetch entry candles: %w", err)
	}
	entryInZone := sliceFromZoneTouch(entry, *reaction)
	if !d.hasCHOCH(entryInZone, direction) {
		return nil, nil
	}

	// Stage 5: confluence boosts from a liquidity sweep or an FVG on the
	// entry timeframe.
	confidence := d.cfg.BaseConfidence
	if hasLiquiditySweep(entry, direction, d.cfg.SweepLookback) {
		confidence += d.cfg.ConfluenceBonus
	}
	if d.hasDirectionalFVG(entry, driverZone.Direction) {
		confidence += d.cfg.ConfluenceBonus
	}
	if confidence > d.cfg.MaxConfidence {
		confidence = d.cfg.MaxConfidence
	}

	// Stage 6: entry at the entry-timeframe order block edge, stop just
	// beyond it, fixed extension target.
	entryBlock := latestOrderBlock(d.zones.DetectOrderBlocks(entry), driverZone.Direction)
	if entryBlock == nil {
		entryBlock = reaction
	}

	sig := d.buildSignal(dctx, direction, *entryBlock, confidence)
	d.log.Debug().
		Str("symbol", sig.Symbol).
		Str("direction", string(sig.Direction)).
		Float64("confidence", sig.Confidence).
		Msg("top-down setup confirmed")

	return []signal.Signal{sig}, nil
}

func (d *Detector) buildSignal(dctx signal.Context, direction signal.Direction, block zones.Zone, confidence float64) signal.Signal {
	buffer := d.cfg.StopBufferPct / 100

	var entryPrice, stop, target float64
	if direction == signal.DirectionBuy {
		entryPrice = block.Top
		stop = block.Bottom * (1 - buffer)
		target = entryPrice * (1 + d.cfg.TargetPct/100)
	} else {
		entryPrice = block.Bottom
		stop = block.Top * (1 + buffer)
		target = entryPrice * (1 - d.cfg.TargetPct/100)
	}

	return signal.Signal{
		ID:             signal.NewID(),
		Symbol:         dctx.Symbol,
		Timeframe:      d.cfg.EntryTimeframe,
		Direction:      direction,
		EntryPrice:     entryPrice,
		StopLoss:       stop,
		TakeProfit:     target,
		Confidence:     confidence,
		RiskReward:     signal.RiskRewardRatio(entryPrice, stop, target),
		PatternTag:     "smc_top_down",
		SourceDetector: d.Name(),
		CreatedAt:      dctx.Now,
	}
}

// hasCHOCH reports whether the sequence shows a change of character in the
// trade direction
func (d *Detector) hasCHOCH(candles []market.Candle, direction signal.Direction) bool {
	state := d.structure.Analyze(candles)
	if direction == signal.DirectionBuy {
		return state.CHOCH.Bullish
	}
	return state.CHOCH.Bearish
}

// hasDirectionalFVG reports whether the sequence contains an unmitigated FVG
// matching the zone polarity
func (d *Detector) hasDirectionalFVG(candles []market.Candle, dir zones.Direction) bool {
	gaps := d.zones.DetectFairValueGaps(candles)
	gaps, _ = d.zones.ApplyMitigation(gaps, candles)
	for _, g := range gaps {
		if g.Direction == dir && !g.Mitigated {
			return true
		}
	}
	return false
}

// sliceFromZoneTouch returns the contiguous tail of the sequence starting at
// the first candle whose range overlaps the zone. Empty when price never
// touched the zone.
func sliceFromZoneTouch(candles []market.Candle, z zones.Zone) []market.Candle {
	for i, c := range candles {
		if c.Low <= z.Top && c.High >= z.Bottom {
			return candles[i:]
		}
	}
	return nil
}

// latestOrderBlock returns the most recent unmitigated order block with the
// given polarity
func latestOrderBlock(blocks []zones.Zone, dir zones.Direction) *zones.Zone {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Direction == dir && !blocks[i].Mitigated {
			return &blocks[i]
		}
	}
	return nil
}

// hasLiquiditySweep reports whether one of the last bars pierced the prior
// lookback extreme and closed back inside the range
func hasLiquiditySweep(candles []market.Candle, direction signal.Direction, lookback int) bool {
	if lookback <= 0 {
		lookback = 10
	}
	if len(candles) < lookback+2 {
		return false
	}

	// Check the last few bars for a sweep against the trade direction.
	for i := len(candles) - 3; i < len(candles); i++ {
		if i <= lookback {
			continue
		}
		prior := candles[i-lookback : i]
		c := candles[i]

		if direction == signal.DirectionBuy {
			low := lowest(prior)
			if c.Low < low && c.Close > low {
				return true
			}
		} else {
			high := highest(prior)
			if c.High > high && c.Close < high {
				return true
			}
		}
	}
	return false
}

func highest(candles []market.Candle) float64 {
	h := candles[0].High
	for _, c := range candles[1:] {
		if c.High > h {
			h = c.High
		}
	}
	return h
}

func lowest(candles []market.Candle) float64 {
	l := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < l {
			l = c.Low
		}
	}
	return l
}
