// Package backtest replays historical candles through a strategy bar by bar,
// simulating one open position per symbol and producing a performance report.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
)

// Strategy produces signals from a windowed candle view at each replay step
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, dctx signal.Context) ([]signal.Signal, error)
}

// DetectorStrategy adapts any signal detector into a backtest strategy
type DetectorStrategy struct {
	detector signal.Detector
}

// NewDetectorStrategy wraps a detector for replay
func NewDetectorStrategy(d signal.Detector) *DetectorStrategy {
	return &DetectorStrategy{detector: d}
}

func (s *DetectorStrategy) Name() string { return s.detector.Name() }

func (s *DetectorStrategy) Evaluate(ctx context.Context, dctx signal.Context) ([]signal.Signal, error) {
	return s.detector.Detect(ctx, dctx)
}

// Config holds the replay parameters
type Config struct {
	InitialCapital float64 `yaml:"initial_capital" default:"10000"`
	RiskPerTrade   float64 `yaml:"risk_per_trade" default:"0.01"` // fraction of capital risked per trade
	Lookback       int     `yaml:"lookback" default:"30"`
}

// Trade is an immutable record of one completed simulated trade
type Trade struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Direction  signal.Direction `json:"direction"`
	EntryTime  time.Time        `json:"entryTime"`
	ExitTime   time.Time        `json:"exitTime"`
	EntryPrice float64          `json:"entryPrice"`
	ExitPrice  float64          `json:"exitPrice"`
	StopLoss   float64          `json:"stopLoss"`
	TakeProfit float64          `json:"takeProfit"`
	Quantity   float64          `json:"quantity"`
	PnL        float64          `json:"pnl"`
	PnLPercent float64          `json:"pnlPercent"`
	ExitReason string           `json:"exitReason"` // stop_loss, take_profit, forced_close
	PatternTag string           `json:"patternTag"`
}

// EquityPoint is one sample of account equity during replay
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Metrics summarizes replay performance. All fields are zero for a run with
// no trades; ProfitFactor is +Inf when there were wins but no losses.
type Metrics struct {
	TotalTrades    int     `json:"totalTrades"`
	WinningTrades  int     `json:"winningTrades"`
	LosingTrades   int     `json:"losingTrades"`
	WinRate        float64 `json:"winRate"`
	AverageWin     float64 `json:"averageWin"`
	AverageLoss    float64 `json:"averageLoss"`
	ProfitFactor   float64 `json:"profitFactor"`
	MaxDrawdownPct float64 `json:"maxDrawdownPct"`
	SharpeRatio    float64 `json:"sharpeRatio"`
	SortinoRatio   float64 `json:"sortinoRatio"`
}

// MarshalJSON emits null for an infinite profit factor, since JSON has no
// representation for it
func (m Metrics) MarshalJSON() ([]byte, error) {
	type plain Metrics
	aux := struct {
		plain
		ProfitFactor interface{} `json:"profitFactor"`
	}{plain: plain(m), ProfitFactor: m.ProfitFactor}
	if math.IsInf(m.ProfitFactor, 0) {
		aux.ProfitFactor = nil
	}
	return json.Marshal(aux)
}

// Report is the full result of one replay run
type Report struct {
	Symbol         string           `json:"symbol"`
	Strategy       string           `json:"strategy"`
	Timeframe      market.Timeframe `json:"timeframe"`
	InitialCapital float64          `json:"initialCapital"`
	FinalCapital   float64          `json:"finalCapital"`
	TotalReturnPct float64          `json:"totalReturnPct"`
	Trades         []Trade          `json:"trades"`
	EquityCurve    []EquityPoint    `json:"equityCurve"`
	Metrics        Metrics          `json:"metrics"`
}

// position is the single open trade during replay
type position struct {
	trade Trade
}

// Engine replays candles through a strategy
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates a replay engine, applying defaults for unset fields
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 10000
	}
	if cfg.RiskPerTrade <= 0 {
		cfg.RiskPerTrade = 0.01
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "backtest").Logger(),
	}
}

// Run replays the candles bar by bar. Each step feeds the trailing lookback
// window to the strategy; at most one position is open at a time and new
// signals are ignored while one is. A strategy error or panic on one bar is
// logged and skipped, never fatal to the run.
func (e *Engine) Run(ctx context.Context, strategy Strategy, symbol string, tf market.Timeframe, candles []market.Candle) (*Report, error) {
	report := &Report{
		Symbol:         symbol,
		Strategy:       strategy.Name(),
		Timeframe:      tf,
		InitialCapital: e.cfg.InitialCapital,
		Trades:         []Trade{},
		EquityCurve:    []EquityPoint{},
	}

	capital := e.cfg.InitialCapital
	var open *position

	if len(candles) > 0 {
		report.EquityCurve = append(report.EquityCurve, EquityPoint{Time: candles[0].OpenTime, Equity: capital})
	}

	for i := e.cfg.Lookback; i < len(candles); i++ {
		bar := candles[i]

		if open != nil {
			if closed, ok := checkExit(open.trade, bar); ok {
				capital += closed.PnL
				report.Trades = append(report.Trades, closed)
				report.EquityCurve = append(report.EquityCurve, EquityPoint{Time: bar.OpenTime, Equity: capital})
				open = nil
			}
		}

		if open != nil {
			continue
		}

		window := candles[i-e.cfg.Lookback+1 : i+1]
		sigs, err := e.safeEvaluate(ctx, strategy, signal.Context{
			Symbol:    symbol,
			Timeframe: tf,
			Candles:   window,
			Now:       bar.OpenTime,
		})
		if err != nil {
			e.log.Warn().Err(err).Int("bar", i).Msg("strategy failed on bar, skipping")
			continue
		}
		if len(sigs) == 0 {
			continue
		}

		sig := sigs[0]
		qty := positionSize(capital*e.cfg.RiskPerTrade, sig.EntryPrice, sig.StopLoss)
		if qty <= 0 {
			continue
		}

		open = &position{trade: Trade{
			ID:         sig.ID,
			Symbol:     symbol,
			Direction:  sig.Direction,
			EntryTime:  bar.OpenTime,
			EntryPrice: sig.EntryPrice,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
			Quantity:   qty,
			PatternTag: sig.PatternTag,
		}}
	}

	// Force-close whatever is still open at the final bar's close.
	if open != nil && len(candles) > 0 {
		last := candles[len(candles)-1]
		closed := closeTrade(open.trade, last.OpenTime, last.Close, "forced_close")
		capital += closed.PnL
		report.Trades = append(report.Trades, closed)
		report.EquityCurve = append(report.EquityCurve, EquityPoint{Time: last.OpenTime, Equity: capital})
	}

	report.FinalCapital = capital
	if report.InitialCapital > 0 {
		report.TotalReturnPct = (capital - report.InitialCapital) / report.InitialCapital * 100
	}
	report.Metrics = computeMetrics(report.Trades, report.EquityCurve)

	return report, nil
}

// safeEvaluate recovers strategy panics into errors so one bad bar cannot
// invalidate the whole run
func (e *Engine) safeEvaluate(ctx context.Context, strategy Strategy, dctx signal.Context) (sigs []signal.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sigs = nil
			err = fmt.Errorf("strategy %s panicked: %v", strategy.Name(), r)
		}
	}()
	return strategy.Evaluate(ctx, dctx)
}

func positionSize(riskAmount, entry, stop float64) float64 {
	dist := math.Abs(entry - stop)
	if dist == 0 {
		return 0
	}
	return riskAmount / dist
}

// checkExit tests whether the bar crosses the trade's stop or target. The
// stop is checked first: when a bar spans both levels the loss is realized.
func checkExit(t Trade, bar market.Candle) (Trade, bool) {
	if t.Direction == signal.DirectionBuy {
		if bar.Low <= t.StopLoss {
			return closeTrade(t, bar.OpenTime, t.StopLoss, "stop_loss"), true
		}
		if bar.High >= t.TakeProfit {
			return closeTrade(t, bar.OpenTime, t.TakeProfit, "take_profit"), true
		}
		return t, false
	}

	if bar.High >= t.StopLoss {
		return closeTrade(t, bar.OpenTime, t.StopLoss, "stop_loss"), true
	}
	if bar.Low <= t.TakeProfit {
		return closeTrade(t, bar.OpenTime, t.TakeProfit, "take_profit"), true
	}
	return t, false
}

func closeTrade(t Trade, at time.Time, price float64, reason string) Trade {
	t.ExitTime = at
	t.ExitPrice = price
	t.ExitReason = reason

	if t.Direction == signal.DirectionBuy {
		t.PnL = (price - t.EntryPrice) * t.Quantity
	} else {
		t.PnL = (t.EntryPrice - price) * t.Quantity
	}
	if t.EntryPrice != 0 {
		t.PnLPercent = t.PnL / (t.EntryPrice * t.Quantity) * 100
	}
	return t
}

// computeMetrics derives the performance summary. It never divides by zero:
// a run with no trades yields all-zero metrics.
func computeMetrics(trades []Trade, equity []EquityPoint) Metrics {
	var m Metrics
	m.TotalTrades = len(trades)
	if m.TotalTrades == 0 {
		return m
	}

	grossProfit, grossLoss := 0.0, 0.0
	for _, t := range trades {
		if t.PnL > 0 {
			m.WinningTrades++
			grossProfit += t.PnL
		} else {
			m.LosingTrades++
			grossLoss += -t.PnL
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	if m.WinningTrades > 0 {
		m.AverageWin = grossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = grossLoss / float64(m.LosingTrades)
	}

	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}

	m.MaxDrawdownPct = maxDrawdown(equity)
	m.SharpeRatio, m.SortinoRatio = riskAdjustedReturns(equity)

	return m
}

// maxDrawdown returns the worst peak-to-trough equity decline in percent
func maxDrawdown(equity []EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}

	peak := equity[0].Equity
	worst := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// riskAdjustedReturns computes annualized Sharpe and Sortino ratios from the
// equity curve, assuming 252 periods per year. Sortino penalizes only
// downside deviation.
func riskAdjustedReturns(equity []EquityPoint) (sharpe, sortino float64) {
	if len(equity) < 2 {
		return 0, 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0, 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance, downVariance := 0.0, 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downVariance += r * r
		}
	}
	variance /= float64(len(returns))
	downVariance /= float64(len(returns))

	annual := math.Sqrt(252)
	if std := math.Sqrt(variance); std > 0 {
		sharpe = mean / std * annual
	}
	if downStd := math.Sqrt(downVariance); downStd > 0 {
		sortino = mean / downStd * annual
	}
	return sharpe, sortino
}
