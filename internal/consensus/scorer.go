package consensus

import (
	"context"
	"math"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/indicators"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/structure"
)

// featureCount is the size of the scorer's feature vector: price change,
// volatility, volume ratio, CHOCH score and regime indicator.
const featureCount = 5

// Scorer is a deterministic linear model over standardized candle features.
// Its weights are the per-feature covariance with the binary next-bar
// direction, fit in-process from the same historical window used for feature
// extraction. This is a documented heuristic scorer, not a statistically
// validated predictive model.
type Scorer struct {
	weights [featureCount]float64
	means   [featureCount]float64
	stds    [featureCount]float64
	fitted  bool
}

// featureWindow is the trailing window each feature row is computed over
const featureWindow = 30

// FitScorer fits a scorer on the candle history. Returns an unfitted scorer
// (which scores everything 0.5) when the history is too short.
func FitScorer(candles []market.Candle, analyzer *structure.Analyzer) *Scorer {
	s := &Scorer{}

	if len(candles) < featureWindow+10 {
		return s
	}

	var rows [][featureCount]float64
	var targets []float64

	for i := featureWindow; i < len(candles)-1; i++ {
		rows = append(rows, extractFeatures(candles[:i+1], analyzer))
		if candles[i+1].Close > candles[i].Close {
			targets = append(targets, 1)
		} else {
			targets = append(targets, 0)
		}
	}

	// Standardize each feature column.
	for j := 0; j < featureCount; j++ {
		col := make([]float64, len(rows))
		for i := range rows {
			col[i] = rows[i][j]
		}
		s.means[j] = indicators.Mean(col)
		s.stds[j] = indicators.StdDev(col)
	}

	targetMean := indicators.Mean(targets)

	// Weight per feature is its covariance with the centered target.
	for j := 0; j < featureCount; j++ {
		cov := 0.0
		for i := range rows {
			cov += s.standardize(j, rows[i][j]) * (targets[i] - targetMean)
		}
		s.weights[j] = cov / float64(len(rows))
	}

	s.fitted = true
	return s
}

// Score maps the latest candle window onto [0, 1]; above 0.5 leans bullish.
// An unfitted scorer always returns 0.5.
func (s *Scorer) Score(candles []market.Candle, analyzer *structure.Analyzer) float64 {
	if !s.fitted || len(candles) < featureWindow {
		return 0.5
	}

	features := extractFeatures(candles, analyzer)
	raw := 0.0
	for j := 0; j < featureCount; j++ {
		raw += s.weights[j] * s.standardize(j, features[j])
	}

	// Logistic squash keeps the output in (0, 1).
	return 1 / (1 + math.Exp(-4*raw))
}

// Fitted reports whether the scorer has been fit on history
func (s *Scorer) Fitted() bool { return s.fitted }

func (s *Scorer) standardize(j int, v float64) float64 {
	if s.stds[j] == 0 {
		return 0
	}
	return (v - s.means[j]) / s.stds[j]
}

// extractFeatures builds one feature row from the trailing window of the
// sequence
func extractFeatures(candles []market.Candle, analyzer *structure.Analyzer) [featureCount]float64 {
	window := candles
	if len(window) > featureWindow {
		window = window[len(window)-featureWindow:]
	}

	last := window[len(window)-1]
	first := window[0]

	priceChange := 0.0
	if first.Close != 0 {
		priceChange = (last.Close - first.Close) / first.Close
	}

	state := analyzer.Analyze(window)

	chochScore := 0.0
	if state.CHOCH.Bullish {
		chochScore = 1
	} else if state.CHOCH.Bearish {
		chochScore = -1
	}

	regime := 0.0
	switch state.Trend {
	case structure.TrendBullish:
		regime = 1
	case structure.TrendBearish:
		regime = -1
	}

	return [featureCount]float64{
		priceChange,
		indicators.Volatility(window),
		indicators.VolumeRatio(window, 10),
		chochScore,
		regime,
	}
}

// ScorerDetector adapts the linear scorer to the common detector interface so
// it participates in consensus like any other detector. It fits on the
// context's own candle window each call, keeping the pipeline stateless.
type ScorerDetector struct {
	analyzer *structure.Analyzer

	// Thresholds on the score before a directional signal is emitted
	BuyThreshold  float64
	SellThreshold float64
}

// NewScorerDetector creates the statistical bias detector
func NewScorerDetector(swingLookback int) *ScorerDetector {
	return &ScorerDetector{
		analyzer:      structure.NewAnalyzer(swingLookback),
		BuyThreshold:  0.6,
		SellThreshold: 0.4,
	}
}

// Name implements signal.Detector
func (d *ScorerDetector) Name() string { return "linear_scorer" }

// Detect fits the scorer on the window and emits a directional signal when
// the score clears a threshold. Stops are ATR-based with a 2R target.
func (d *ScorerDetector) Detect(ctx context.Context, dctx signal.Context) ([]signal.Signal, error) {
	if len(dctx.Candles) < featureWindow+10 {
		return nil, nil
	}

	scorer := FitScorer(dctx.Candles, d.analyzer)
	score := scorer.Score(dctx.Candles, d.analyzer)

	var direction signal.Direction
	var confidence float64

	switch {
	case score >= d.BuyThreshold:
		direction = signal.DirectionBuy
		confidence = score
	case score <= d.SellThreshold:
		direction = signal.DirectionSell
		confidence = 1 - score
	default:
		return nil, nil
	}

	atr := indicators.ATR(dctx.Candles, 14)
	if atr == 0 {
		return nil, nil
	}

	entry := dctx.LastClose()
	var stop, target float64
	if direction == signal.DirectionBuy {
		stop = entry - 2*atr
		target = entry + 4*atr
	} else {
		stop = entry + 2*atr
		target = entry - 4*atr
	}

	sig := signal.Signal{
		ID:             signal.NewID(),
		Symbol:         dctx.Symbol,
		Timeframe:      dctx.Timeframe,
		Direction:      direction,
		EntryPrice:     entry,
		StopLoss:       stop,
		TakeProfit:     target,
		Confidence:     confidence,
		RiskReward:     signal.RiskRewardRatio(entry, stop, target),
		PatternTag:     "statistical_bias",
		SourceDetector: d.Name(),
		CreatedAt:      dctx.Now,
	}
	return []signal.Signal{sig}, nil
}
