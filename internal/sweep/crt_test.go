package sweep

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
)

type stubSource struct {
	candles map[string][]market.Candle
	err     error
}

func (s *stubSource) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candles[symbol+"/"+string(tf)], nil
}

func candle(open, high, low, close float64) market.Candle {
	return market.Candle{
		OpenTime: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   1000,
	}
}

func testContext(candles []market.Candle) signal.Context {
	return signal.Context{
		Symbol:    "EURUSD",
		Timeframe: market.Timeframe1h,
		Candles:   candles,
		Now:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCRTSweepUpProducesSell(t *testing.T) {
	detector := NewCRT(nil, CRTConfig{RefineEntry: false}, zerolog.Nop())

	candles := []market.Candle{
		candle(1.0960, 1.0975, 1.0950, 1.0970), // range [1.0950, 1.0975]
		candle(1.0970, 1.0980, 1.0962, 1.0968), // sweeps high, closes back inside
		candle(1.0966, 1.0970, 1.0960, 1.0963),
	}

	sigs, err := detector.Detect(context.Background(), testContext(candles))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(sigs))
	}

	sig := sigs[0]
	if sig.Direction != signal.DirectionSell {
		t.Errorf("Sweep up must produce SELL, got %s", sig.Direction)
	}
	if sig.EntryPrice != 1.0966 {
		t.Errorf("Expected entry at candle 3 open 1.0966, got %f", sig.EntryPrice)
	}

	wantStop := 1.0980 * 1.0005
	if math.Abs(sig.StopLoss-wantStop) > 1e-9 {
		t.Errorf("Expected stop %f (sweep high + 0.05%%), got %f", wantStop, sig.StopLoss)
	}
	if sig.TakeProfit != 1.0950 {
		t.Errorf("Expected target at range low 1.0950, got %f", sig.TakeProfit)
	}
	if sig.Confidence != 0.65 {
		t.Errorf("Expected base confidence 0.65, got %f", sig.Confidence)
	}
}

func TestCRTSweepDownProducesBuy(t *testing.T) {
	detector := NewCRT(nil, CRTConfig{RefineEntry: false}, zerolog.Nop())

	candles := []market.Candle{
		candle(100, 102, 98, 101),
		candle(101, 101.5, 97, 99), // sweeps low 98, closes back inside
		candle(99.5, 100, 99, 99.8),
	}

	sigs, err := detector.Detect(context.Background(), testContext(candles))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].Direction != signal.DirectionBuy {
		t.Errorf("Sweep down must produce BUY, got %s", sigs[0].Direction)
	}
	if sigs[0].TakeProfit != 102 {
		t.Errorf("Expected target at range high 102, got %f", sigs[0].TakeProfit)
	}
}

func TestCRTCloseOutsideRangeInvalidates(t *testing.T) {
	detector := NewCRT(nil, CRTConfig{RefineEntry: false}, zerolog.Nop())

	candles := []market.Candle{
		candle(1.0960, 1.0975, 1.0950, 1.0970),
		candle(1.0970, 1.0990, 1.0965, 1.0985), // closes above the range: invalid
		candle(1.0984, 1.0990, 1.0980, 1.0986),
	}

	sigs, err := detector.Detect(context.Background(), testContext(candles))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatal("A sweep candle closing outside the range must never produce a signal")
	}
}

func TestCRTNoSweepNoSignal(t *testing.T) {
	detector := NewCRT(nil, CRTConfig{RefineEntry: false}, zerolog.Nop())

	candles := []market.Candle{
		candle(100, 102, 98, 101),
		candle(101, 101.8, 98.5, 100.5), // stays inside the range
		candle(100.5, 101, 100, 100.8),
	}

	sigs, _ := detector.Detect(context.Background(), testContext(candles))
	if len(sigs) != 0 {
		t.Error("No boundary pierced must mean no signal")
	}
}

func TestCRTShortWindowReturnsEmpty(t *testing.T) {
	detector := NewCRT(nil, CRTConfig{}, zerolog.Nop())

	sigs, err := detector.Detect(context.Background(), testContext([]market.Candle{candle(100, 101, 99, 100)}))
	if err != nil {
		t.Fatalf("Short window must not error, got %v", err)
	}
	if len(sigs) != 0 {
		t.Error("Short window must return no signals")
	}
}

func TestCRTRefinedEntryUsesLowerTimeframeFVG(t *testing.T) {
	// Lower timeframe contains a bearish FVG [99.0, 99.4].
	lower := []market.Candle{
		candle(100, 100.5, 99.4, 99.6),
		candle(98.8, 99.0, 98.2, 98.5), // high 99.0 < prev low 99.4
	}

	source := &stubSource{candles: map[string][]market.Candle{
		"EURUSD/5m": lower,
	}}

	detector := NewCRT(source, CRTConfig{
		RefineEntry:    true,
		LowerTimeframe: market.Timeframe5m,
	}, zerolog.Nop())

	candles := []market.Candle{
		candle(100, 102, 98, 101),
		candle(101, 103, 100, 101.5), // sweeps high 102
		candle(101.2, 101.5, 100.5, 101),
	}

	sigs, err := detector.Detect(context.Background(), testContext(candles))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(sigs))
	}

	sig := sigs[0]
	if sig.Direction != signal.DirectionSell {
		t.Fatalf("Expected SELL, got %s", sig.Direction)
	}
	if sig.EntryPrice != 99.0 {
		t.Errorf("Expected refined entry at FVG boundary 99.0, got %f", sig.EntryPrice)
	}
	if math.Abs(sig.Confidence-0.75) > 1e-9 {
		t.Errorf("Expected confidence 0.75 with refined entry, got %f", sig.Confidence)
	}
}

func TestScalpPinBarAtSupport(t *testing.T) {
	detector := NewScalp(ScalpConfig{}, zerolog.Nop())

	// Several touches of support near 98, then a hammer on the last bar.
	candles := []market.Candle{
		candle(100, 101, 98.0, 100.5),
		candle(100.5, 101.5, 99, 101),
		candle(101, 102, 98.01, 100),
		candle(100, 101, 99.5, 100.5),
		candle(100.5, 101, 98.02, 100),
		candle(100, 100.8, 99.2, 100.2),
		candle(100.2, 100.9, 99.4, 100.1),
		candle(100.1, 100.6, 99.3, 100),
		candle(100, 100.5, 99.5, 99.9),
		candle(99.9, 100.02, 97.98, 100), // hammer: tiny body, long lower wick at support
	}

	sigs, err := detector.Detect(context.Background(), testContext(candles))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].Direction != signal.DirectionBuy {
		t.Errorf("Hammer at support must produce BUY, got %s", sigs[0].Direction)
	}
	if sigs[0].PatternTag != "pin_bar" {
		t.Errorf("Expected pin_bar tag, got %s", sigs[0].PatternTag)
	}
}

func TestScalpSessionGate(t *testing.T) {
	detector := NewScalp(ScalpConfig{SessionStartHour: 8, SessionEndHour: 16}, zerolog.Nop())

	dctx := testContext(make([]market.Candle, 12))
	for i := range dctx.Candles {
		dctx.Candles[i] = candle(100, 101, 99, 100)
	}
	dctx.Now = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC) // outside session

	sigs, err := detector.Detect(context.Background(), dctx)
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(sigs) != 0 {
		t.Error("Signals must be suppressed outside the trading session")
	}
}
