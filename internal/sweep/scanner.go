package sweep

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/indicators"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
)

// ScannerConfig holds the scanning scheduler parameters
type ScannerConfig struct {
	Enabled       bool             `yaml:"enabled" default:"true"`
	Symbols       []string         `yaml:"symbols"`
	Timeframe     market.Timeframe `yaml:"timeframe" default:"15m"`
	CandleCount   int              `yaml:"candle_count" default:"100"`
	Interval      time.Duration    `yaml:"interval" default:"5m"`
	BatchSize     int              `yaml:"batch_size" default:"5"`
	MinConfidence float64          `yaml:"min_confidence" default:"0.6"`
	MinRiskReward float64          `yaml:"min_risk_reward" default:"1.5"`
	FetchTimeout  time.Duration    `yaml:"fetch_timeout" default:"30s"`
}

// ScanStatus describes the last completed scan cycle
type ScanStatus struct {
	LastScan       time.Time `json:"last_scan"`
	Duration       string    `json:"duration"`
	SymbolsScanned int       `json:"symbols_scanned"`
	SignalsEmitted int       `json:"signals_emitted"`
	Scanning       bool      `json:"scanning"`
}

// Scanner iterates the tracked symbols on a timer in fixed-size concurrent
// batches, applies a simplified momentum-and-retracement detector per symbol
// and pushes qualifying signals onto a channel. A scan-in-progress flag gates
// re-entry so two scans of the same symbol set never overlap.
type Scanner struct {
	source market.Source
	cfg    ScannerConfig
	log    zerolog.Logger

	signals  chan signal.Signal
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	scanning atomic.Bool

	mu     sync.RWMutex
	status ScanStatus
}

// NewScanner creates a scanning scheduler
func NewScanner(source market.Source, cfg ScannerConfig, log zerolog.Logger) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.CandleCount <= 0 {
		cfg.CandleCount = 100
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.6
	}
	if cfg.MinRiskReward <= 0 {
		cfg.MinRiskReward = 1.5
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = market.Timeframe15m
	}
	return &Scanner{
		source:   source,
		cfg:      cfg,
		log:      log.With().Str("component", "scanner").Logger(),
		signals:  make(chan signal.Signal, 64),
		stopChan: make(chan struct{}),
	}
}

// Signals returns the channel scan results are emitted on. The channel is
// closed when the scanner stops.
func (s *Scanner) Signals() <-chan signal.Signal {
	return s.signals
}

// Status returns a snapshot of the last scan cycle
func (s *Scanner) Status() ScanStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Scanning = s.scanning.Load()
	return st
}

// Start begins the background scan loop
func (s *Scanner) Start() {
	if !s.cfg.Enabled {
		s.log.Info().Msg("scanner disabled")
		return
	}

	s.wg.Add(1)
	go s.runLoop()
	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Int("symbols", len(s.cfg.Symbols)).
		Msg("scanner started")
}

// Stop shuts the scanner down and waits for an in-flight scan to finish.
// A running scan is never preempted, only awaited.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		close(s.signals)
		s.log.Info().Msg("scanner stopped")
	})
}

func (s *Scanner) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Scan()

	for {
		select {
		case <-ticker.C:
			s.Scan()
		case <-s.stopChan:
			return
		}
	}
}

// Scan executes one scan cycle. It returns immediately when a scan is
// already in progress.
func (s *Scanner) Scan() {
	if !s.scanning.CompareAndSwap(false, true) {
		s.log.Debug().Msg("scan already in progress, skipping")
		return
	}
	defer s.scanning.Store(false)

	start := time.Now()
	emitted := 0

	// Process symbols in fixed-size concurrent batches.
	for i := 0; i < len(s.cfg.Symbols); i += s.cfg.BatchSize {
		select {
		case <-s.stopChan:
			return
		default:
		}

		end := i + s.cfg.BatchSize
		if end > len(s.cfg.Symbols) {
			end = len(s.cfg.Symbols)
		}

		var wg sync.WaitGroup
		results := make(chan signal.Signal, s.cfg.BatchSize)

		for _, symbol := range s.cfg.Symbols[i:end] {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				if sig, ok := s.scanSymbol(symbol); ok {
					results <- sig
				}
			}(symbol)
		}

		wg.Wait()
		close(results)

		for sig := range results {
			select {
			case s.signals <- sig:
				emitted++
			default:
				s.log.Warn().Str("symbol", sig.Symbol).Msg("signal channel full, dropping")
			}
		}
	}

	s.mu.Lock()
	s.status = ScanStatus{
		LastScan:       start,
		Duration:       time.Since(start).String(),
		SymbolsScanned: len(s.cfg.Symbols),
		SignalsEmitted: emitted,
	}
	s.mu.Unlock()

	s.log.Info().
		Int("symbols", len(s.cfg.Symbols)).
		Int("signals", emitted).
		Dur("took", time.Since(start)).
		Msg("scan cycle complete")
}

// scanSymbol fetches candles for one symbol and applies the momentum and
// retracement check
func (s *Scanner) scanSymbol(symbol string) (signal.Signal, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()

	candles, err := s.source.Candles(ctx, symbol, s.cfg.Timeframe, s.cfg.CandleCount)
	if err != nil {
		s.log.Debug().Err(err).Str("symbol", symbol).Msg("candle fetch failed")
		return signal.Signal{}, false
	}

	sig, ok := MomentumRetracement(symbol, s.cfg.Timeframe, candles)
	if !ok {
		return signal.Signal{}, false
	}

	if sig.Confidence < s.cfg.MinConfidence || sig.RiskReward < s.cfg.MinRiskReward {
		return signal.Signal{}, false
	}

	return sig, true
}

// MomentumRetracement is the simplified single-pass variant the scanner runs
// per symbol: a directional move over the window that has pulled back part of
// the way, entered in the direction of the move with the stop beyond the
// retracement extreme.
func MomentumRetracement(symbol string, tf market.Timeframe, candles []market.Candle) (signal.Signal, bool) {
	const window = 20

	if len(candles) < window+1 {
		return signal.Signal{}, false
	}

	recent := candles[len(candles)-window:]
	last := recent[len(recent)-1]
	sma := indicators.SMA(candles, window)
	if sma == 0 {
		return signal.Signal{}, false
	}

	high := highest(recent)
	low := lowest(recent)
	span := high - low
	if span == 0 {
		return signal.Signal{}, false
	}

	momentum := (last.Close - recent[0].Close) / recent[0].Close

	var direction signal.Direction
	var retrace float64

	switch {
	case momentum > 0 && last.Close > sma:
		direction = signal.DirectionBuy
		retrace = (high - last.Close) / span
	case momentum < 0 && last.Close < sma:
		direction = signal.DirectionSell
		retrace = (last.Close - low) / span
	default:
		return signal.Signal{}, false
	}

	// Want a partial pullback: deep enough to matter, shallow enough that the
	// move is still intact.
	if retrace < 0.25 || retrace > 0.6 {
		return signal.Signal{}, false
	}

	entry := last.Close
	var stop, target float64
	if direction == signal.DirectionBuy {
		stop = low
		target = entry + (entry-stop)*2
	} else {
		stop = high
		target = entry - (stop-entry)*2
	}

	absMomentum := momentum
	if absMomentum < 0 {
		absMomentum = -absMomentum
	}
	confidence := 0.6 + clamp(absMomentum*5, 0, 0.2)

	sig := signal.Signal{
		ID:             signal.NewID(),
		Symbol:         symbol,
		Timeframe:      tf,
		Direction:      direction,
		EntryPrice:     entry,
		StopLoss:       stop,
		TakeProfit:     target,
		Confidence:     confidence,
		RiskReward:     signal.RiskRewardRatio(entry, stop, target),
		PatternTag:     "momentum_retracement",
		SourceDetector: "scanner",
		CreatedAt:      last.OpenTime,
	}
	return sig, true
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

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
