package risk

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/indicators"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
)

// Service assesses market risk and sizes positions. The signal pipeline treats
// its output as read-only input.
type Service interface {
	// Assess builds a risk profile for the symbol from its recent candles
	Assess(ctx context.Context, symbol string, candles []market.Candle) (signal.RiskProfile, error)

	// Validate checks whether a signal is still actionable at the current price
	Validate(sig signal.Signal, currentPrice float64) bool

	// PositionSize returns the quantity to trade for the given entry and stop.
	// riskPct overrides the configured per-trade risk when positive.
	PositionSize(entry, stop, riskPct float64) float64

	// RecordOutcome feeds a realized trade P&L into the daily counters
	RecordOutcome(pnl float64)
}

// Config holds risk manager configuration
type Config struct {
	AccountBalance  float64 `yaml:"account_balance" default:"10000"`
	MaxRiskPerTrade float64 `yaml:"max_risk_per_trade" default:"1.0"` // percent
	MaxDailyLoss    float64 `yaml:"max_daily_loss" default:"5.0"`     // percent
	ATRPeriod       int     `yaml:"atr_period" default:"14"`
	MaxEntryDrift   float64 `yaml:"max_entry_drift" default:"1.0"` // percent from entry
}

// Manager is the default Service implementation. The daily P&L counters are
// the only mutable state in the pipeline and are guarded by a mutex.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu          sync.Mutex
	dailyPnL    float64
	dailyTrades int
	day         time.Time
}

// NewManager creates a risk manager with the given configuration
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.MaxRiskPerTrade <= 0 {
		cfg.MaxRiskPerTrade = 1.0
	}
	return &Manager{
		cfg: cfg,
		log: log.With().Str("component", "risk").Logger(),
		day: time.Now().Truncate(24 * time.Hour),
	}
}

// Assess computes volatility, ATR and liquidity metrics from the candle
// window and folds them into a 0-1 risk score
func (m *Manager) Assess(ctx context.Context, symbol string, candles []market.Candle) (signal.RiskProfile, error) {
	if len(candles) < m.cfg.ATRPeriod+1 {
		return FallbackProfile(), nil
	}

	volatility := indicators.Volatility(candles)
	atr := indicators.ATR(candles, m.cfg.ATRPeriod)
	liquidity := indicators.VolumeRatio(candles, 20)

	score := riskScore(volatility, liquidity)

	profile := signal.RiskProfile{
		Volatility:     volatility,
		ATR:            atr,
		LiquidityRatio: liquidity,
		RiskScore:      score,
	}

	if score > 0.7 {
		profile.Recommendations = append(profile.Recommendations, "reduce position size")
	}
	if liquidity < 0.5 {
		profile.Recommendations = append(profile.Recommendations, "thin volume, widen stops")
	}

	return profile, nil
}

// riskScore maps volatility and liquidity into [0, 1]. Volatility above 3%
// per bar saturates the score; weak volume adds a flat penalty.
func riskScore(volatility, liquidity float64) float64 {
	score := volatility / 0.03
	if liquidity < 0.5 {
		score += 0.2
	}
	return clamp01(score)
}

// FallbackProfile returns the conservative profile used when the upstream
// candle source or an assessment fails. It deliberately overstates risk so
// downstream filters tighten rather than loosen.
func FallbackProfile() signal.RiskProfile {
	return signal.RiskProfile{
		Volatility:     0,
		ATR:            0,
		LiquidityRatio: 1,
		RiskScore:      0.9,
		Recommendations: []string{
			"risk assessment unavailable, conservative defaults applied",
		},
	}
}

// Validate rejects signals whose stop sits on the wrong side of the entry or
// whose entry has drifted too far from the current price
func (m *Manager) Validate(sig signal.Signal, currentPrice float64) bool {
	if sig.EntryPrice <= 0 || sig.StopLoss <= 0 || currentPrice <= 0 {
		return false
	}

	if sig.Direction == signal.DirectionBuy && sig.StopLoss >= sig.EntryPrice {
		return false
	}
	if sig.Direction == signal.DirectionSell && sig.StopLoss <= sig.EntryPrice {
		return false
	}

	drift := math.Abs(currentPrice-sig.EntryPrice) / sig.EntryPrice * 100
	if drift > m.cfg.MaxEntryDrift {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDayLocked()
	if m.cfg.AccountBalance > 0 {
		lossPct := -m.dailyPnL / m.cfg.AccountBalance * 100
		if lossPct >= m.cfg.MaxDailyLoss {
			m.log.Warn().Float64("daily_loss_pct", lossPct).Msg("daily loss limit reached, rejecting signal")
			return false
		}
	}

	return true
}

// PositionSize computes quantity as risk amount over stop distance
func (m *Manager) PositionSize(entry, stop, riskPct float64) float64 {
	if riskPct <= 0 {
		riskPct = m.cfg.MaxRiskPerTrade
	}

	distance := math.Abs(entry - stop)
	if distance == 0 || m.cfg.AccountBalance <= 0 {
		return 0
	}

	riskAmount := m.cfg.AccountBalance * riskPct / 100
	return riskAmount / distance
}

// RecordOutcome adds a realized P&L to the daily counters
func (m *Manager) RecordOutcome(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetDayLocked()
	m.dailyPnL += pnl
	m.dailyTrades++
}

// DailyPnL returns the running P&L for the current day
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDayLocked()
	return m.dailyPnL
}

func (m *Manager) resetDayLocked() {
	today := time.Now().Truncate(24 * time.Hour)
	if today.After(m.day) {
		m.day = today
		m.dailyPnL = 0
		m.dailyTrades = 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
