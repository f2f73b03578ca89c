package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/backtest"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/consensus"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/recorder"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/risk"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/sweep"
)

type stubSource struct{}

func (s *stubSource) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	candles := make([]market.Candle, 50)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = market.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     100, High: 100.5, Low: 99.5, Close: 100, Volume: 1000,
		}
	}
	return candles, nil
}

type quietDetector struct{}

func (d *quietDetector) Name() string { return "quiet" }
func (d *quietDetector) Detect(ctx context.Context, dctx signal.Context) ([]signal.Signal, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	log := zerolog.Nop()
	source := &stubSource{}
	engine := consensus.NewEngine(nil, risk.NewManager(risk.Config{}, log), consensus.Config{}, log)
	scanner := sweep.NewScanner(source, sweep.ScannerConfig{Symbols: []string{"BTCUSDT"}}, log)
	backtester := backtest.NewEngine(backtest.Config{}, log)
	strategies := map[string]signal.Detector{"quiet": &quietDetector{}}

	return NewServer(Config{Mode: "test"}, source, engine, scanner, backtester, strategies, recorder.NewNoop(), log)
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(newTestServer(t), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestSignalsRequiresSymbol(t *testing.T) {
	rec := doRequest(newTestServer(t), http.MethodGet, "/api/signals", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Missing symbol must be rejected, got %d", rec.Code)
	}
}

func TestSignalsRejectsUnknownProfile(t *testing.T) {
	rec := doRequest(newTestServer(t), http.MethodGet, "/api/signals?symbol=BTCUSDT&profile=hodl", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Unknown profile must be rejected, got %d", rec.Code)
	}
}

func TestSignalsReturnsEmptyList(t *testing.T) {
	rec := doRequest(newTestServer(t), http.MethodGet, "/api/signals?symbol=BTCUSDT&timeframe=1h", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Signals []signal.ConsensusSignal `json:"signals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if resp.Signals == nil {
		t.Error("Signals must serialize as an empty list, not null")
	}
}

func TestScannerStatusEndpoint(t *testing.T) {
	rec := doRequest(newTestServer(t), http.MethodGet, "/api/scanner/status", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestBacktestRejectsUnknownStrategy(t *testing.T) {
	body := `{"symbol":"BTCUSDT","timeframe":"1h","strategy":"nope"}`
	rec := doRequest(newTestServer(t), http.MethodPost, "/api/backtest", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Unknown strategy must be rejected, got %d", rec.Code)
	}
}

func TestBacktestRunsStrategy(t *testing.T) {
	body := `{"symbol":"BTCUSDT","timeframe":"1h","strategy":"quiet","bars":50}`
	rec := doRequest(newTestServer(t), http.MethodPost, "/api/backtest", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var report backtest.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Invalid JSON report: %v", err)
	}
	if report.FinalCapital != report.InitialCapital {
		t.Errorf("A silent strategy must leave capital unchanged, got %f", report.FinalCapital)
	}
}
