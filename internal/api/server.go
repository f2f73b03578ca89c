// Package api exposes the signal pipeline over HTTP and WebSocket. It is thin
// plumbing: every endpoint delegates to the consensus engine, the scanner or
// the backtest engine and serializes the result.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/backtest"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/consensus"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/recorder"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/sweep"
)

// Config holds HTTP server settings
type Config struct {
	Port         int      `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	Mode         string   `yaml:"mode" default:"release" validate:"oneof=debug release test"`
	AllowOrigins []string `yaml:"allow_origins"`
	CandleLimit  int      `yaml:"candle_limit" default:"200"`
}

// Server wires the pipeline components behind HTTP handlers
type Server struct {
	cfg        Config
	source     market.Source
	engine     *consensus.Engine
	scanner    *sweep.Scanner
	backtester *backtest.Engine
	strategies map[string]signal.Detector
	rec        recorder.Recorder
	hub        *Hub
	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer builds the HTTP server. strategies maps the names accepted by the
// backtest endpoint onto detectors.
func NewServer(
	cfg Config,
	source market.Source,
	engine *consensus.Engine,
	scanner *sweep.Scanner,
	backtester *backtest.Engine,
	strategies map[string]signal.Detector,
	rec recorder.Recorder,
	log zerolog.Logger,
) *Server {
	if cfg.Port <= 0 {
		cfg.Port = 8080
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 200
	}

	s := &Server{
		cfg:        cfg,
		source:     source,
		engine:     engine,
		scanner:    scanner,
		backtester: backtester,
		strategies: strategies,
		rec:        rec,
		hub:        NewHub(log),
		log:        log.With().Str("component", "api").Logger(),
	}

	gin.SetMode(ginMode(cfg.Mode))
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.handleWebSocket)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/signals", s.handleSignals)
		apiGroup.GET("/scanner/status", s.handleScannerStatus)
		apiGroup.POST("/backtest", s.handleBacktest)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start runs the hub, the scanner fan-out and the HTTP listener. It blocks
// until the listener stops.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.forwardScannerSignals()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the HTTP listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// forwardScannerSignals pushes scanner output to WebSocket subscribers and
// the recorder. It exits when the scanner channel closes.
func (s *Server) forwardScannerSignals() {
	for sig := range s.scanner.Signals() {
		s.hub.BroadcastSignal(sig)
		if err := s.rec.RecordSignal(sig); err != nil {
			s.log.Warn().Err(err).Str("signal", sig.ID).Msg("record signal failed")
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// handleSignals generates consensus signals on demand for one symbol
func (s *Server) handleSignals(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	tf, err := market.ParseTimeframe(c.DefaultQuery("timeframe", "1h"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile := consensus.Profile(c.DefaultQuery("profile", string(consensus.ProfileDayTrading)))

	candles, err := s.source.Candles(c.Request.Context(), symbol, tf, s.cfg.CandleLimit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("fetch candles: %v", err)})
		return
	}

	signals, err := s.engine.Generate(c.Request.Context(), symbol, tf, candles, profile)
	if err != nil {
		if errors.Is(err, consensus.ErrUnknownProfile) || errors.Is(err, consensus.ErrTimeframeNotAllowed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for _, cs := range signals {
		if err := s.rec.RecordConsensus(cs); err != nil {
			s.log.Warn().Err(err).Str("signal", cs.ID).Msg("record consensus failed")
		}
	}
	if signals == nil {
		signals = []signal.ConsensusSignal{}
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "timeframe": tf, "signals": signals})
}

func (s *Server) handleScannerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.scanner.Status())
}

type backtestRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe" binding:"required"`
	Strategy  string `json:"strategy" binding:"required"`
	Bars      int    `json:"bars"`
}

// handleBacktest fetches history and replays it through the named strategy
func (s *Server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detector, ok := s.strategies[req.Strategy]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown strategy %q", req.Strategy)})
		return
	}

	bars := req.Bars
	if bars <= 0 {
		bars = 500
	}

	candles, err := s.source.Candles(c.Request.Context(), req.Symbol, tf, bars)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("fetch candles: %v", err)})
		return
	}

	report, err := s.backtester.Run(c.Request.Context(), backtest.NewDetectorStrategy(detector), req.Symbol, tf, candles)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := s.rec.RecordBacktest(report); err != nil {
		s.log.Warn().Err(err).Msg("record backtest failed")
	}

	c.JSON(http.StatusOK, report)
}

func ginMode(mode string) string {
	switch mode {
	case "debug":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
