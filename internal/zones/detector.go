package zones

import (
	"math"
	"sort"
	"time"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
)

// Kind represents the type of a price zone
type Kind string

const (
	KindOrderBlock   Kind = "order_block"
	KindFairValueGap Kind = "fair_value_gap"
)

// Direction represents the polarity of a zone
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Flip returns the opposite polarity
func (d Direction) Flip() Direction {
	if d == Bullish {
		return Bearish
	}
	return Bullish
}

// Zone represents a price area expected to attract future reaction. Mitigation
// is a one-way transition: once a later candle wicks into the zone it stays
// mitigated forever.
type Zone struct {
	Kind      Kind
	Direction Direction
	Top       float64
	Bottom    float64
	Index     int // candle index the zone was created at
	CreatedAt time.Time
	Mitigated bool
	Breaker   bool // flipped-direction variant recorded after mitigation
}

// Midpoint returns the center price of the zone
func (z Zone) Midpoint() float64 {
	return (z.Top + z.Bottom) / 2
}

// Contains reports whether price falls inside the zone boundaries
func (z Zone) Contains(price float64) bool {
	return price >= z.Bottom && price <= z.Top
}

// LiquidityLevel is a clustered support or resistance level built from raw
// highs or lows. Strength is the number of touches inside the cluster.
type LiquidityLevel struct {
	Price     float64
	Strength  int
	Side      Direction // Bullish = support, Bearish = resistance
	LastIndex int
}

// Snapshot holds all zones detected in one analysis call
type Snapshot struct {
	OrderBlocks   []Zone
	FairValueGaps []Zone
	Breakers      []Zone
	Support       []LiquidityLevel
	Resistance    []LiquidityLevel
}

// Detector finds order blocks, fair value gaps and liquidity levels
type Detector struct {
	minGapPercent float64 // minimum FVG size as percentage of price
	proximity     float64 // liquidity clustering threshold as fraction of price
	maxLevels     int     // levels retained per side
}

// NewDetector creates a zone detector. minGapPercent filters out fair value
// gaps smaller than the given percentage of price (default 0.05%).
func NewDetector(minGapPercent float64) *Detector {
	if minGapPercent <= 0 {
		minGapPercent = 0.05
	}
	return &Detector{
		minGapPercent: minGapPercent,
		proximity:     0.001, // 0.1% price proximity for level clustering
		maxLevels:     5,
	}
}

// Analyze runs all zone detection passes over the candle sequence and applies
// mitigation from the candles that followed each zone's creation.
func (d *Detector) Analyze(candles []market.Candle) *Snapshot {
	snap := &Snapshot{}
	if len(candles) < 2 {
		return snap
	}

	snap.OrderBlocks = d.DetectOrderBlocks(candles)
	snap.FairValueGaps = d.DetectFairValueGaps(candles)
	snap.OrderBlocks, snap.Breakers = d.ApplyMitigation(snap.OrderBlocks, candles)

	var fvgBreakers []Zone
	snap.FairValueGaps, fvgBreakers = d.ApplyMitigation(snap.FairValueGaps, candles)
	snap.Breakers = append(snap.Breakers, fvgBreakers...)

	snap.Support, snap.Resistance = d.DetectLiquidityLevels(candles)
	return snap
}

// DetectOrderBlocks finds the last opposing candle before a displacement move.
// A down candle whose successor closes above its high forms a bullish order
// block spanning the down candle; the bearish case mirrors it.
func (d *Detector) DetectOrderBlocks(candles []market.Candle) []Zone {
	var blocks []Zone

	for i := 1; i < len(candles); i++ {
		b := candles[i-1]
		c := candles[i]

		if b.Bearish() && c.Close > b.High {
			blocks = append(blocks, Zone{
				Kind:      KindOrderBlock,
				Direction: Bullish,
				Top:       b.High,
				Bottom:    b.Low,
				Index:     i - 1,
				CreatedAt: b.OpenTime,
			})
		}

		if b.Bullish() && c.Close < b.Low {
			blocks = append(blocks, Zone{
				Kind:      KindOrderBlock,
				Direction: Bearish,
				Top:       b.High,
				Bottom:    b.Low,
				Index:     i - 1,
				CreatedAt: b.OpenTime,
			})
		}
	}

	return blocks
}

// DetectFairValueGaps finds two-candle imbalances: a bullish gap when a
// candle's low clears the previous candle's high, and the bearish mirror.
// The gap boundaries are the two prices that did not overlap.
func (d *Detector) DetectFairValueGaps(candles []market.Candle) []Zone {
	var gaps []Zone

	for i := 1; i < len(candles); i++ {
		prev := candles[i-1]
		cur := candles[i]

		if cur.Low > prev.High {
			gapPct := (cur.Low - prev.High) / prev.High * 100
			if gapPct >= d.minGapPercent {
				gaps = append(gaps, Zone{
					Kind:      KindFairValueGap,
					Direction: Bullish,
					Top:       cur.Low,
					Bottom:    prev.High,
					Index:     i,
					CreatedAt: cur.OpenTime,
				})
			}
		}

		if cur.High < prev.Low {
			gapPct := (prev.Low - cur.High) / cur.High * 100
			if gapPct >= d.minGapPercent {
				gaps = append(gaps, Zone{
					Kind:      KindFairValueGap,
					Direction: Bearish,
					Top:       prev.Low,
					Bottom:    cur.High,
					Index:     i,
					CreatedAt: cur.OpenTime,
				})
			}
		}
	}

	return gaps
}

// ApplyMitigation marks each zone mitigated at the first later candle whose
// wick reaches back into the zone boundary. Mitigated zones spawn a breaker
// variant with flipped direction. The input slice is not modified.
func (d *Detector) ApplyMitigation(zones []Zone, candles []market.Candle) (out []Zone, breakers []Zone) {
	out = make([]Zone, len(zones))
	copy(out, zones)

	for i := range out {
		if out[i].Mitigated {
			continue
		}
		// An order block overlaps its own displacement candle, so mitigation
		// only counts from the bar after it. FVGs start at the gap candle.
		start := out[i].Index + 1
		if out[i].Kind == KindOrderBlock {
			start = out[i].Index + 2
		}
		for j := start; j < len(candles); j++ {
			if mitigates(out[i], candles[j]) {
				out[i].Mitigated = true

				breaker := out[i]
				breaker.Direction = breaker.Direction.Flip()
				breaker.Breaker = true
				breakers = append(breakers, breaker)
				break
			}
		}
	}

	return out, breakers
}

// mitigates reports whether the candle's wick crosses back into the zone:
// a bullish zone is entered from above through its top, a bearish zone from
// below through its bottom.
func mitigates(z Zone, c market.Candle) bool {
	if z.Direction == Bullish {
		return c.Low <= z.Top
	}
	return c.High >= z.Bottom
}

// DetectLiquidityLevels clusters raw highs and lows within the proximity
// threshold into discrete resistance and support levels, keeping the
// strongest maxLevels per side.
func (d *Detector) DetectLiquidityLevels(candles []market.Candle) (support, resistance []LiquidityLevel) {
	for i, c := range candles {
		resistance = d.cluster(resistance, c.High, Bearish, i)
		support = d.cluster(support, c.Low, Bullish, i)
	}

	support = d.trim(support)
	resistance = d.trim(resistance)
	return support, resistance
}

// cluster merges a price into an existing level when within the proximity
// threshold, otherwise starts a new level
func (d *Detector) cluster(levels []LiquidityLevel, price float64, side Direction, index int) []LiquidityLevel {
	for i := range levels {
		if math.Abs(price-levels[i].Price)/levels[i].Price < d.proximity {
			// Rolling average keeps the level centered on its touches
			n := float64(levels[i].Strength)
			levels[i].Price = (levels[i].Price*n + price) / (n + 1)
			levels[i].Strength++
			levels[i].LastIndex = index
			return levels
		}
	}
	return append(levels, LiquidityLevel{Price: price, Strength: 1, Side: side, LastIndex: index})
}

// trim keeps the strongest levels, breaking ties by recency
func (d *Detector) trim(levels []LiquidityLevel) []LiquidityLevel {
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].Strength != levels[j].Strength {
			return levels[i].Strength > levels[j].Strength
		}
		return levels[i].LastIndex > levels[j].LastIndex
	})
	if len(levels) > d.maxLevels {
		levels = levels[:d.maxLevels]
	}
	return levels
}

// NearestZone returns the unmitigated zone whose midpoint is closest to price,
// or nil when none qualifies
func NearestZone(zones []Zone, price float64) *Zone {
	var nearest *Zone
	best := math.MaxFloat64

	for i := range zones {
		if zones[i].Mitigated {
			continue
		}
		dist := math.Abs(zones[i].Midpoint() - price)
		if dist < best {
			best = dist
			nearest = &zones[i]
		}
	}

	return nearest
}
