// Command replay runs a strategy backtest from the terminal and prints the
// performance report, without starting the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/tafadzwa-coder-sw23/grassroot/config"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/backtest"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/consensus"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/logging"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/smc"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/sweep"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to replay")
	timeframe := flag.String("timeframe", "1h", "candle timeframe")
	strategy := flag.String("strategy", "crt_sweep", "strategy name (detector name)")
	bars := flag.Int("bars", 500, "number of candles to replay")
	asJSON := flag.Bool("json", false, "print the full report as JSON")
	flag.Parse()

	if err := run(*configPath, *symbol, *timeframe, *strategy, *bars, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, symbol, timeframe, strategyName string, bars int, asJSON bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return err
	}

	var source market.Source
	if cfg.DemoMode {
		log.Warn().Msg("demo mode enabled, replaying synthetic candles")
		source = market.NewMockSource()
	} else {
		source = market.NewBinanceSource(cfg.Exchange, log)
	}

	detectors := map[string]signal.Detector{}
	for _, d := range []signal.Detector{
		smc.New(source, cfg.SMC, log),
		sweep.NewCRT(source, cfg.CRT, log),
		sweep.NewScalp(cfg.Scalp, log),
		consensus.NewScorerDetector(cfg.SMC.SwingLookback),
	} {
		detectors[d.Name()] = d
	}

	detector, ok := detectors[strategyName]
	if !ok {
		return fmt.Errorf("unknown strategy %q", strategyName)
	}

	ctx := context.Background()
	candles, err := source.Candles(ctx, symbol, tf, bars)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}

	engine := backtest.NewEngine(cfg.Backtest, log)
	report, err := engine.Run(ctx, backtest.NewDetectorStrategy(detector), symbol, tf, candles)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printSummary(report)
	return nil
}

func printSummary(report *backtest.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Symbol\t%s\n", report.Symbol)
	fmt.Fprintf(w, "Strategy\t%s\n", report.Strategy)
	fmt.Fprintf(w, "Timeframe\t%s\n", report.Timeframe)
	fmt.Fprintf(w, "Initial capital\t%.2f\n", report.InitialCapital)
	fmt.Fprintf(w, "Final capital\t%.2f\n", report.FinalCapital)
	fmt.Fprintf(w, "Return\t%.2f%%\n", report.TotalReturnPct)
	fmt.Fprintf(w, "Trades\t%d\n", report.Metrics.TotalTrades)
	fmt.Fprintf(w, "Win rate\t%.1f%%\n", report.Metrics.WinRate)
	fmt.Fprintf(w, "Profit factor\t%.2f\n", report.Metrics.ProfitFactor)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", report.Metrics.MaxDrawdownPct)
	fmt.Fprintf(w, "Sharpe\t%.2f\n", report.Metrics.SharpeRatio)
	fmt.Fprintf(w, "Sortino\t%.2f\n", report.Metrics.SortinoRatio)
}
