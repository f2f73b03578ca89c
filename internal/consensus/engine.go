// Package consensus aggregates raw detector signals into risk-filtered
// consensus signals: signals are grouped by pattern, the majority direction
// wins, and disagreement inside a group collapses its confidence.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/risk"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
)

// Profile selects which detectors run and the thresholds applied to their
// output
type Profile string

const (
	ProfileScalping     Profile = "scalping"
	ProfileDayTrading   Profile = "daytrading"
	ProfileSwingTrading Profile = "swingtrading"
)

// ErrUnknownProfile is returned for a strategy profile that is not built in
var ErrUnknownProfile = errors.New("unknown strategy profile")

// ErrTimeframeNotAllowed is returned when the requested timeframe is outside
// the profile's applicability
var ErrTimeframeNotAllowed = errors.New("timeframe not allowed for profile")

// ProfileConfig holds the thresholds and timeframe applicability of a profile
type ProfileConfig struct {
	MinConfidence float64
	MinRiskReward float64
	Timeframes    []market.Timeframe
}

// BuiltinProfiles returns the three built-in strategy profiles
func BuiltinProfiles() map[Profile]ProfileConfig {
	return map[Profile]ProfileConfig{
		ProfileScalping: {
			MinConfidence: 0.7,
			MinRiskReward: 1.2,
			Timeframes:    []market.Timeframe{market.Timeframe1m, market.Timeframe5m, market.Timeframe15m},
		},
		ProfileDayTrading: {
			MinConfidence: 0.65,
			MinRiskReward: 1.5,
			Timeframes:    []market.Timeframe{market.Timeframe15m, market.Timeframe1h, market.Timeframe4h},
		},
		ProfileSwingTrading: {
			MinConfidence: 0.6,
			MinRiskReward: 2.0,
			Timeframes:    []market.Timeframe{market.Timeframe4h, market.Timeframe1d},
		},
	}
}

// Config holds the consensus engine parameters
type Config struct {
	RiskScoreSizeCut float64 `yaml:"risk_score_size_cut" default:"0.7"` // halve size above this
	MaxRiskScore     float64 `yaml:"max_risk_score" default:"0.8"`      // reject everything above this
	ATRStopMultiple  float64 `yaml:"atr_stop_multiple" default:"2.0"`
}

// Engine runs a configured detector list and folds their signals into
// consensus signals
type Engine struct {
	detectors []signal.Detector
	risk      risk.Service
	profiles  map[Profile]ProfileConfig
	cfg       Config
	log       zerolog.Logger
}

// NewEngine creates a consensus engine over the given detector list
func NewEngine(detectors []signal.Detector, riskSvc risk.Service, cfg Config, log zerolog.Logger) *Engine {
	if cfg.RiskScoreSizeCut <= 0 {
		cfg.RiskScoreSizeCut = 0.7
	}
	if cfg.MaxRiskScore <= 0 {
		cfg.MaxRiskScore = 0.8
	}
	if cfg.ATRStopMultiple <= 0 {
		cfg.ATRStopMultiple = 2.0
	}
	return &Engine{
		detectors: detectors,
		risk:      riskSvc,
		profiles:  BuiltinProfiles(),
		cfg:       cfg,
		log:       log.With().Str("component", "consensus").Logger(),
	}
}

// Generate runs all detectors over the candle window and returns the
// risk-filtered consensus signals. The output is deterministic for a given
// window: grouping is stable and groups are emitted in pattern order.
func (e *Engine) Generate(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle, profile Profile) ([]signal.ConsensusSignal, error) {
	pcfg, ok := e.profiles[profile]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}
	if !timeframeAllowed(pcfg, tf) {
		return nil, fmt.Errorf("%w: %s for %s", ErrTimeframeNotAllowed, tf, profile)
	}

	riskProfile := e.assess(ctx, symbol, candles)

	dctx := signal.Context{
		Symbol:    symbol,
		Timeframe: tf,
		Candles:   candles,
		Risk:      &riskProfile,
		Now:       time.Now(),
	}

	raw := e.runDetectors(ctx, dctx)
	if len(raw) == 0 {
		return nil, nil
	}

	consensus := e.buildConsensus(raw)
	return e.applyRiskFilter(consensus, riskProfile, pcfg), nil
}

// assess obtains the risk profile, substituting the conservative fallback
// when the risk service fails
func (e *Engine) assess(ctx context.Context, symbol string, candles []market.Candle) signal.RiskProfile {
	profile, err := e.risk.Assess(ctx, symbol, candles)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("risk assessment failed, using fallback profile")
		return risk.FallbackProfile()
	}
	return profile
}

// runDetectors executes every detector, isolating failures so one broken
// detector cannot abort the consensus round. Failed detectors are excluded,
// never converted into signals.
func (e *Engine) runDetectors(ctx context.Context, dctx signal.Context) []signal.Signal {
	var all []signal.Signal

	for _, det := range e.detectors {
		sigs, err := e.safeDetect(ctx, det, dctx)
		if err != nil {
			e.log.Warn().Err(err).Str("detector", det.Name()).Msg("detector failed, excluding from consensus")
			continue
		}
		all = append(all, sigs...)
	}

	return all
}

// safeDetect recovers detector panics into errors
func (e *Engine) safeDetect(ctx context.Context, det signal.Detector, dctx signal.Context) (sigs []signal.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sigs = nil
			err = fmt.Errorf("detector %s panicked: %v", det.Name(), r)
		}
	}()
	return det.Detect(ctx, dctx)
}

// buildConsensus groups signals by pattern tag and collapses each group into
// one consensus signal. Confidence is the unweighted member mean scaled by
// directional agreement, so an evenly split group scores zero.
func (e *Engine) buildConsensus(raw []signal.Signal) []signal.ConsensusSignal {
	groups := make(map[string][]signal.Signal)
	for _, sig := range raw {
		groups[sig.PatternTag] = append(groups[sig.PatternTag], sig)
	}

	tags := make([]string, 0, len(groups))
	for tag := range groups {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var out []signal.ConsensusSignal
	for _, tag := range tags {
		members := groups[tag]

		buys, sells := 0, 0
		confSum := 0.0
		for _, m := range members {
			if m.Direction == signal.DirectionBuy {
				buys++
			} else {
				sells++
			}
			confSum += m.Confidence
		}

		majority := signal.DirectionBuy
		if sells > buys {
			majority = signal.DirectionSell
		}

		agreement := float64(buys-sells) / float64(len(members))
		if agreement < 0 {
			agreement = -agreement
		}
		confidence := confSum / float64(len(members)) * agreement

		rep := representative(members, majority)
		cs := signal.ConsensusSignal{
			Signal:    rep,
			Members:   len(members),
			Agreement: agreement,
		}
		cs.Direction = majority
		cs.Confidence = confidence

		out = append(out, cs)
	}

	return out
}

// representative picks the highest-confidence member in the majority
// direction, falling back to the first member
func representative(members []signal.Signal, majority signal.Direction) signal.Signal {
	best := members[0]
	bestConf := -1.0
	for _, m := range members {
		if m.Direction == majority && m.Confidence > bestConf {
			best = m
			bestConf = m.Confidence
		}
	}
	return best
}

// applyRiskFilter sizes each signal, applies the risk adjustments, and drops
// anything below the profile thresholds. It is a pure function of its inputs.
func (e *Engine) applyRiskFilter(candidates []signal.ConsensusSignal, riskProfile signal.RiskProfile, pcfg ProfileConfig) []signal.ConsensusSignal {
	var out []signal.ConsensusSignal

	for _, cs := range candidates {
		// Widen the stop to the ATR band when ATR is available and the
		// detector's stop sits inside it.
		if riskProfile.ATR > 0 {
			atrStop := cs.EntryPrice - e.cfg.ATRStopMultiple*riskProfile.ATR
			if cs.Direction == signal.DirectionSell {
				atrStop = cs.EntryPrice + e.cfg.ATRStopMultiple*riskProfile.ATR
			}
			if stopInsideBand(cs.Direction, cs.StopLoss, atrStop) {
				cs.StopLoss = atrStop
				cs.RiskReward = signal.RiskRewardRatio(cs.EntryPrice, cs.StopLoss, cs.TakeProfit)
			}
		}

		cs.SuggestedSize = e.risk.PositionSize(cs.EntryPrice, cs.StopLoss, 0)
		if riskProfile.RiskScore > e.cfg.RiskScoreSizeCut {
			cs.SuggestedSize *= 0.5
		}

		if cs.Confidence < pcfg.MinConfidence {
			continue
		}
		if cs.RiskReward < pcfg.MinRiskReward {
			continue
		}
		if riskProfile.RiskScore > e.cfg.MaxRiskScore {
			continue
		}

		out = append(out, cs)
	}

	return out
}

// stopInsideBand reports whether the current stop is tighter than the ATR stop
func stopInsideBand(dir signal.Direction, stop, atrStop float64) bool {
	if dir == signal.DirectionBuy {
		return stop > atrStop
	}
	return stop < atrStop
}

func timeframeAllowed(pcfg ProfileConfig, tf market.Timeframe) bool {
	for _, allowed := range pcfg.Timeframes {
		if allowed == tf {
			return true
		}
	}
	return false
}
