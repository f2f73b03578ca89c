package structure

import (
	"testing"
	"time"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
)

// makeCandles builds candles from close prices with a small fixed wick
func makeCandles(closes []float64) []market.Candle {
	candles := make([]market.Candle, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		candles[i] = market.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c + 0.5,
			Low:      c - 0.5,
			Close:    c,
			Volume:   1000,
		}
	}
	return candles
}

func TestAnalyzeInsufficientData(t *testing.T) {
	analyzer := NewAnalyzer(5)

	state := analyzer.Analyze(makeCandles([]float64{100, 101, 102}))

	if state == nil {
		t.Fatal("Analyze should never return nil")
	}
	if state.Trend != TrendNeutral {
		t.Errorf("Expected neutral trend with short history, got %s", state.Trend)
	}
	if len(state.SwingHighs) != 0 || len(state.SwingLows) != 0 {
		t.Error("Expected no swings with short history")
	}
	if state.BOS.Bullish || state.BOS.Bearish || state.CHOCH.Bullish || state.CHOCH.Bearish {
		t.Error("Expected no breaks with short history")
	}
}

func TestAnalyzeFlatPriceIsNeutral(t *testing.T) {
	analyzer := NewAnalyzer(5)

	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}

	state := analyzer.Analyze(makeCandles(closes))

	if state.Trend != TrendNeutral {
		t.Errorf("Expected neutral trend for flat price, got %s", state.Trend)
	}
	if len(state.SwingHighs) != 0 {
		t.Errorf("Expected no swing highs for flat price, got %d", len(state.SwingHighs))
	}
	if state.BOS.Bullish || state.BOS.Bearish {
		t.Error("Expected no BOS for flat price")
	}
	if state.CHOCH.Bullish || state.CHOCH.Bearish {
		t.Error("Expected no CHOCH for flat price")
	}
}

func TestSwingDetection(t *testing.T) {
	analyzer := NewAnalyzer(2)

	// Peak at index 4 (105), trough at index 8 (95)
	closes := []float64{100, 101, 102, 104, 105, 103, 100, 97, 95, 97, 99, 100, 100}
	candles := makeCandles(closes)

	state := analyzer.Analyze(candles)

	foundHigh := false
	for _, sp := range state.SwingHighs {
		if sp.Index == 4 {
			foundHigh = true
			if sp.Price != 105.5 {
				t.Errorf("Expected swing high price 105.5, got %f", sp.Price)
			}
			if sp.Kind != SwingHigh {
				t.Errorf("Expected kind high, got %s", sp.Kind)
			}
		}
	}
	if !foundHigh {
		t.Error("Expected swing high at index 4")
	}

	foundLow := false
	for _, sp := range state.SwingLows {
		if sp.Index == 8 {
			foundLow = true
			if sp.Price != 94.5 {
				t.Errorf("Expected swing low price 94.5, got %f", sp.Price)
			}
		}
	}
	if !foundLow {
		t.Error("Expected swing low at index 8")
	}
}

func TestSwingDetectionIdempotent(t *testing.T) {
	analyzer := NewAnalyzer(3)

	closes := []float64{100, 103, 106, 104, 101, 99, 102, 105, 108, 106, 103, 101, 104, 107, 110, 108}
	candles := makeCandles(closes)

	first := analyzer.Analyze(candles)
	second := analyzer.Analyze(candles)

	if len(first.SwingHighs) != len(second.SwingHighs) || len(first.SwingLows) != len(second.SwingLows) {
		t.Fatal("Repeated analysis produced different swing counts")
	}
	for i := range first.SwingHighs {
		if first.SwingHighs[i] != second.SwingHighs[i] {
			t.Errorf("Swing high %d differs between runs", i)
		}
	}
	for i := range first.SwingLows {
		if first.SwingLows[i] != second.SwingLows[i] {
			t.Errorf("Swing low %d differs between runs", i)
		}
	}
	if first.Trend != second.Trend {
		t.Error("Trend differs between runs")
	}
}

func TestBullishTrendAndBOS(t *testing.T) {
	analyzer := NewAnalyzer(2)

	// Two rising peaks (105 then 110) and two rising troughs (101 then 103)
	closes := []float64{
		100, 103, 105, 103, 101, // peak 105, trough 101
		102, 104, 103, 103, 103, // local peak 104
		103, 106, 110, 107, 103, // peak 110
		103.5, 104, 105, 105, 105, // trough 103 around index 14
	}
	candles := makeCandles(closes)

	state := analyzer.Analyze(candles)

	if state.Trend != TrendBullish {
		t.Errorf("Expected bullish trend, got %s", state.Trend)
	}
	if !state.BOS.Bullish {
		t.Error("Expected bullish BOS when latest swing high exceeds prior swing high")
	}
	if state.BOS.Bearish {
		t.Error("Did not expect bearish BOS in an uptrend")
	}
}

func TestCHOCHRequiresPriorOppositeTrend(t *testing.T) {
	// Downtrend: lower highs and lower lows, then a final higher high.
	closes := []float64{
		100, 104, 108, 104, 100, // peak 108
		96, 94, 92, 94, 96, // trough 92
		100, 103, 105, 103, 100, // peak 105 (lower high)
		95, 93, 91, 93, 95, // trough 91 (lower low)
		91, 89, 88, 90, 92, // trough 88 (lower low)
		98, 103, 107, 104, 100, // peak 107 breaks prior 105 against downtrend
		99, 99, 99,
	}
	candles := makeCandles(closes)

	gated := NewAnalyzer(2).Analyze(candles)
	if !gated.CHOCH.Bullish {
		t.Error("Expected bullish CHOCH after bearish structure")
	}

	// An uptrend making another higher high is continuation, not CHOCH.
	uptrend := []float64{
		100, 102, 104, 102, 101,
		103, 105, 107, 105, 104,
		106, 108, 110, 108, 107,
		109, 111, 113, 111, 110,
		112, 112, 112,
	}
	state := NewAnalyzer(2).Analyze(makeCandles(uptrend))
	if state.CHOCH.Bullish {
		t.Error("Higher high inside an uptrend must not register as bullish CHOCH")
	}
	if !state.BOS.Bullish {
		t.Error("Higher high inside an uptrend should register as bullish BOS")
	}
}

func TestCHOCHGateDisabled(t *testing.T) {
	uptrend := []float64{
		100, 102, 104, 102, 101,
		103, 105, 107, 105, 104,
		106, 108, 110, 108, 107,
		109, 111, 113, 111, 110,
		112, 112, 112,
	}
	state := NewAnalyzer(2, WithoutCHOCHGate()).Analyze(makeCandles(uptrend))

	// Without the gate CHOCH reduces to the plain break condition on 3+ swings.
	if !state.CHOCH.Bullish {
		t.Error("Expected bullish CHOCH with the reversal gate disabled")
	}
}
