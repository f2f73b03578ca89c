package sweep

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
)

// trendingCandles builds a rally with a partial pullback that satisfies the
// momentum and retracement gates
func trendingCandles() []market.Candle {
	closes := []float64{
		100, // padding so the window has a prior bar
		100, 101, 102, 103, 104, 105, 106, 107, 108, 109,
		110, 110, 110, 110, 110, 109, 108.5, 108, 107.8, 107.5,
	}
	candles := make([]market.Candle, len(closes))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		candles[i] = market.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute * 15),
			Open:     c,
			High:     c + 0.2,
			Low:      c - 0.2,
			Close:    c,
			Volume:   1000,
		}
	}
	return candles
}

func TestMomentumRetracement(t *testing.T) {
	sig, ok := MomentumRetracement("BTCUSDT", market.Timeframe15m, trendingCandles())

	if !ok {
		t.Fatal("Expected a signal from a rally with partial pullback")
	}
	if sig.Direction != "BUY" {
		t.Errorf("Expected BUY in an uptrend pullback, got %s", sig.Direction)
	}
	if sig.RiskReward < 1.5 {
		t.Errorf("Expected risk reward of at least 1.5, got %f", sig.RiskReward)
	}
	if sig.Confidence < 0.6 {
		t.Errorf("Expected confidence of at least 0.6, got %f", sig.Confidence)
	}
}

func TestMomentumRetracementFlatMarket(t *testing.T) {
	candles := make([]market.Candle, 30)
	for i := range candles {
		candles[i] = candle(100, 100.1, 99.9, 100)
	}

	_, ok := MomentumRetracement("BTCUSDT", market.Timeframe15m, candles)
	if ok {
		t.Error("Flat market must not produce a momentum signal")
	}
}

func TestScannerEmitsOnChannel(t *testing.T) {
	source := &stubSource{candles: map[string][]market.Candle{
		"BTCUSDT/15m": trendingCandles(),
	}}

	scanner := NewScanner(source, ScannerConfig{
		Enabled:   true,
		Symbols:   []string{"BTCUSDT"},
		Timeframe: market.Timeframe15m,
	}, zerolog.Nop())

	scanner.Scan()

	select {
	case sig := <-scanner.Signals():
		if sig.Symbol != "BTCUSDT" {
			t.Errorf("Expected BTCUSDT signal, got %s", sig.Symbol)
		}
		if sig.SourceDetector != "scanner" {
			t.Errorf("Expected scanner source, got %s", sig.SourceDetector)
		}
	default:
		t.Fatal("Expected a signal on the channel after a scan")
	}

	status := scanner.Status()
	if status.SymbolsScanned != 1 {
		t.Errorf("Expected 1 symbol scanned, got %d", status.SymbolsScanned)
	}
	if status.SignalsEmitted != 1 {
		t.Errorf("Expected 1 signal emitted, got %d", status.SignalsEmitted)
	}
}

func TestScannerReentryGate(t *testing.T) {
	source := &stubSource{candles: map[string][]market.Candle{
		"BTCUSDT/15m": trendingCandles(),
	}}

	scanner := NewScanner(source, ScannerConfig{
		Enabled:   true,
		Symbols:   []string{"BTCUSDT"},
		Timeframe: market.Timeframe15m,
	}, zerolog.Nop())

	// Simulate a scan already in flight: the next Scan call must be a no-op.
	scanner.scanning.Store(true)
	scanner.Scan()

	select {
	case <-scanner.Signals():
		t.Fatal("A gated scan must not emit signals")
	default:
	}

	scanner.scanning.Store(false)
	scanner.Scan()
	select {
	case <-scanner.Signals():
	default:
		t.Fatal("Scan after the gate clears should emit")
	}
}

func TestScannerFiltersLowConfidence(t *testing.T) {
	source := &stubSource{candles: map[string][]market.Candle{
		"BTCUSDT/15m": trendingCandles(),
	}}

	scanner := NewScanner(source, ScannerConfig{
		Enabled:       true,
		Symbols:       []string{"BTCUSDT"},
		Timeframe:     market.Timeframe15m,
		MinConfidence: 0.99,
	}, zerolog.Nop())

	scanner.Scan()

	select {
	case <-scanner.Signals():
		t.Fatal("Signals below the confidence floor must be dropped")
	default:
	}
}
