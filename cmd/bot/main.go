package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/config"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/api"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/backtest"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/consensus"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/logging"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/recorder"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/risk"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/smc"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/sweep"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	source := buildSource(cfg, log)

	riskSvc := risk.NewManager(cfg.Risk, log)

	detectors := []signal.Detector{
		smc.New(source, cfg.SMC, log),
		sweep.NewCRT(source, cfg.CRT, log),
		sweep.NewScalp(cfg.Scalp, log),
		consensus.NewScorerDetector(cfg.SMC.SwingLookback),
	}

	engine := consensus.NewEngine(detectors, riskSvc, cfg.Consensus, log)
	backtester := backtest.NewEngine(cfg.Backtest, log)
	scanner := sweep.NewScanner(source, cfg.Scanner, log)

	rec, err := recorder.New(cfg.Recorder)
	if err != nil {
		return fmt.Errorf("init recorder: %w", err)
	}
	defer rec.Close()

	strategies := make(map[string]signal.Detector, len(detectors))
	for _, d := range detectors {
		strategies[d.Name()] = d
	}

	server := api.NewServer(cfg.Server, source, engine, scanner, backtester, strategies, rec, log)

	scanner.Start()
	defer scanner.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// buildSource assembles the candle source chain: exchange or labeled mock,
// optionally behind the Redis cache
func buildSource(cfg *config.Config, log zerolog.Logger) market.Source {
	var source market.Source
	if cfg.DemoMode {
		log.Warn().Msg("demo mode enabled, serving deterministic synthetic candles")
		source = market.NewMockSource()
	} else {
		source = market.NewBinanceSource(cfg.Exchange, log)
	}

	if cfg.Cache.Enabled {
		source = market.NewCachedSource(source, cfg.Cache, log)
	}
	return source
}
