package zones

import (
	"testing"
	"time"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
)

func candle(open, high, low, close float64) market.Candle {
	return market.Candle{
		OpenTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   1000,
	}
}

func TestDetectBullishOrderBlock(t *testing.T) {
	detector := NewDetector(0.05)

	candles := []market.Candle{
		candle(100, 101, 99, 100.5),
		candle(100.5, 101, 99.5, 100), // down candle
		candle(100, 103, 99.8, 102.5), // closes above its high
	}

	blocks := detector.DetectOrderBlocks(candles)

	if len(blocks) != 1 {
		t.Fatalf("Expected 1 order block, got %d", len(blocks))
	}
	ob := blocks[0]
	if ob.Direction != Bullish {
		t.Errorf("Expected bullish order block, got %s", ob.Direction)
	}
	if ob.Top != 101 || ob.Bottom != 99.5 {
		t.Errorf("Expected zone [99.5, 101], got [%f, %f]", ob.Bottom, ob.Top)
	}
	if ob.Index != 1 {
		t.Errorf("Expected index 1, got %d", ob.Index)
	}
}

func TestDetectBearishOrderBlock(t *testing.T) {
	detector := NewDetector(0.05)

	candles := []market.Candle{
		candle(100, 101.5, 99.5, 101), // up candle
		candle(101, 101.2, 97, 98),    // closes below its low
	}

	blocks := detector.DetectOrderBlocks(candles)

	if len(blocks) != 1 {
		t.Fatalf("Expected 1 order block, got %d", len(blocks))
	}
	if blocks[0].Direction != Bearish {
		t.Errorf("Expected bearish order block, got %s", blocks[0].Direction)
	}
}

func TestDetectFairValueGaps(t *testing.T) {
	detector := NewDetector(0.05)

	candles := []market.Candle{
		candle(100, 101, 99, 100.5),
		candle(102, 104, 101.5, 103.5), // low 101.5 > prev high 101, bullish gap
		candle(103, 104, 102.5, 103),
	}

	gaps := detector.DetectFairValueGaps(candles)

	if len(gaps) != 1 {
		t.Fatalf("Expected 1 FVG, got %d", len(gaps))
	}
	gap := gaps[0]
	if gap.Direction != Bullish {
		t.Errorf("Expected bullish FVG, got %s", gap.Direction)
	}
	if gap.Bottom != 101 || gap.Top != 101.5 {
		t.Errorf("Expected gap [101, 101.5], got [%f, %f]", gap.Bottom, gap.Top)
	}
	if gap.Midpoint() != 101.25 {
		t.Errorf("Expected midpoint 101.25, got %f", gap.Midpoint())
	}
}

func TestFVGMinimumSizeFilter(t *testing.T) {
	detector := NewDetector(1.0) // 1% minimum

	candles := []market.Candle{
		candle(100, 101, 99, 100.5),
		candle(101.1, 102, 101.05, 101.8), // gap of 0.05%, below threshold
	}

	gaps := detector.DetectFairValueGaps(candles)
	if len(gaps) != 0 {
		t.Errorf("Expected tiny gap to be filtered, got %d FVGs", len(gaps))
	}
}

func TestFlatPriceProducesNoZones(t *testing.T) {
	detector := NewDetector(0.05)

	candles := make([]market.Candle, 20)
	for i := range candles {
		candles[i] = candle(100, 100.5, 99.5, 100)
	}

	snap := detector.Analyze(candles)

	if len(snap.OrderBlocks) != 0 {
		t.Errorf("Expected no order blocks for flat price, got %d", len(snap.OrderBlocks))
	}
	if len(snap.FairValueGaps) != 0 {
		t.Errorf("Expected no FVGs for flat price, got %d", len(snap.FairValueGaps))
	}
}

func TestMitigationIsMonotonic(t *testing.T) {
	detector := NewDetector(0.05)

	candles := []market.Candle{
		candle(100.5, 101, 99.5, 100), // down candle, becomes bullish OB [99.5, 101]
		candle(100, 103, 100, 102.5),  // displacement
		candle(102.5, 104, 102, 103),     // stays away
		candle(103, 103.2, 100.8, 102.3), // wick back into zone: mitigation
		candle(102.3, 103, 101.5, 102.8), // drifts away again
	}

	blocks := detector.DetectOrderBlocks(candles)
	mitigated, breakers := detector.ApplyMitigation(blocks, candles)

	if len(mitigated) != 1 {
		t.Fatalf("Expected 1 order block, got %d", len(mitigated))
	}
	if !mitigated[0].Mitigated {
		t.Fatal("Expected order block to be mitigated by the returning wick")
	}

	// Re-applying mitigation over the full history must never flip it back.
	again, _ := detector.ApplyMitigation(mitigated, candles)
	if !again[0].Mitigated {
		t.Error("Mitigation must be one-way: zone reverted to unmitigated")
	}

	if len(breakers) != 1 {
		t.Fatalf("Expected 1 breaker, got %d", len(breakers))
	}
	if breakers[0].Direction != Bearish {
		t.Errorf("Breaker should flip direction to bearish, got %s", breakers[0].Direction)
	}
	if !breakers[0].Breaker {
		t.Error("Breaker flag should be set")
	}
}

func TestDisplacementCandleDoesNotMitigate(t *testing.T) {
	detector := NewDetector(0.05)

	candles := []market.Candle{
		candle(100.5, 101, 99.5, 100), // bullish OB
		candle(100, 103, 100, 102.5),  // displacement overlaps the zone top
		candle(102.5, 104, 102, 103),
	}

	blocks := detector.DetectOrderBlocks(candles)
	mitigated, _ := detector.ApplyMitigation(blocks, candles)

	if mitigated[0].Mitigated {
		t.Error("Displacement candle itself must not count as mitigation")
	}
}

func TestDetectLiquidityLevels(t *testing.T) {
	detector := NewDetector(0.05)

	// Three touches of resistance near 105, two touches of support near 95.
	var candles []market.Candle
	highs := []float64{105.0, 102, 104.99, 103, 105.02, 101}
	lows := []float64{95.0, 97, 95.01, 98, 96.5, 99}
	for i := range highs {
		candles = append(candles, candle(100, highs[i], lows[i], 100))
	}

	support, resistance := detector.DetectLiquidityLevels(candles)

	if len(resistance) == 0 {
		t.Fatal("Expected at least one resistance level")
	}
	if resistance[0].Strength != 3 {
		t.Errorf("Expected strongest resistance with 3 touches, got %d", resistance[0].Strength)
	}
	if resistance[0].Price < 104.9 || resistance[0].Price > 105.1 {
		t.Errorf("Expected resistance near 105, got %f", resistance[0].Price)
	}

	if len(support) == 0 {
		t.Fatal("Expected at least one support level")
	}
	if support[0].Strength != 2 {
		t.Errorf("Expected strongest support with 2 touches, got %d", support[0].Strength)
	}
}

func TestLiquidityLevelsCappedPerSide(t *testing.T) {
	detector := NewDetector(0.05)

	var candles []market.Candle
	for i := 0; i < 20; i++ {
		// Each candle far enough from the others to form its own level
		base := 100 + float64(i)*10
		candles = append(candles, candle(base, base+1, base-1, base))
	}

	support, resistance := detector.DetectLiquidityLevels(candles)

	if len(support) > 5 {
		t.Errorf("Expected at most 5 support levels, got %d", len(support))
	}
	if len(resistance) > 5 {
		t.Errorf("Expected at most 5 resistance levels, got %d", len(resistance))
	}
}

func TestNearestZone(t *testing.T) {
	zones := []Zone{
		{Direction: Bullish, Top: 101, Bottom: 99},                   // midpoint 100
		{Direction: Bullish, Top: 111, Bottom: 109},                  // midpoint 110
		{Direction: Bullish, Top: 105, Bottom: 103, Mitigated: true}, // midpoint 104, skipped
	}

	nearest := NearestZone(zones, 104.5)

	if nearest == nil {
		t.Fatal("Expected a nearest zone")
	}
	if nearest.Midpoint() != 100 {
		t.Errorf("Mitigated zones must be skipped; expected midpoint 100, got %f", nearest.Midpoint())
	}
}
