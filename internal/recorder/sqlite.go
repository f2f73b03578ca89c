package recorder

import (
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/backtest"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
)

// SQLite persists signals and backtest runs to a SQLite database
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database and runs migrations
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers don't block the recording writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLite{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return r, nil
}

func (r *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id          TEXT PRIMARY KEY,
			created_at  INTEGER NOT NULL,
			symbol      TEXT NOT NULL,
			timeframe   TEXT NOT NULL,
			direction   TEXT NOT NULL,
			entry_price REAL,
			stop_loss   REAL,
			take_profit REAL,
			confidence  REAL,
			risk_reward REAL,
			pattern     TEXT,
			detector    TEXT,
			members     INTEGER DEFAULT 0,
			agreement   REAL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, created_at)`,

		`CREATE TABLE IF NOT EXISTS backtests (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_at          INTEGER NOT NULL,
			symbol          TEXT NOT NULL,
			strategy        TEXT NOT NULL,
			timeframe       TEXT NOT NULL,
			initial_capital REAL,
			final_capital   REAL,
			return_pct      REAL,
			total_trades    INTEGER,
			win_rate        REAL,
			profit_factor   REAL,
			max_drawdown    REAL,
			sharpe          REAL,
			sortino         REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtests_symbol ON backtests(symbol, run_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (r *SQLite) RecordSignal(sig signal.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR IGNORE INTO signals
		(id, created_at, symbol, timeframe, direction, entry_price, stop_loss,
		 take_profit, confidence, risk_reward, pattern, detector)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		sig.ID, sig.CreatedAt.Unix(), sig.Symbol, string(sig.Timeframe),
		string(sig.Direction), sig.EntryPrice, sig.StopLoss, sig.TakeProfit,
		sig.Confidence, sig.RiskReward, sig.PatternTag, sig.SourceDetector,
	)
	return err
}

func (r *SQLite) RecordConsensus(cs signal.ConsensusSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR IGNORE INTO signals
		(id, created_at, symbol, timeframe, direction, entry_price, stop_loss,
		 take_profit, confidence, risk_reward, pattern, detector, members, agreement)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		cs.ID, cs.CreatedAt.Unix(), cs.Symbol, string(cs.Timeframe),
		string(cs.Direction), cs.EntryPrice, cs.StopLoss, cs.TakeProfit,
		cs.Confidence, cs.RiskReward, cs.PatternTag, cs.SourceDetector,
		cs.Members, cs.Agreement,
	)
	return err
}

func (r *SQLite) RecordBacktest(report *backtest.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// SQLite has no +Inf literal, so an all-win run stores a NULL factor.
	profitFactor := sql.NullFloat64{Float64: report.Metrics.ProfitFactor, Valid: true}
	if math.IsInf(report.Metrics.ProfitFactor, 0) {
		profitFactor.Valid = false
	}

	_, err := r.db.Exec(`INSERT INTO backtests
		(run_at, symbol, strategy, timeframe, initial_capital, final_capital,
		 return_pct, total_trades, win_rate, profit_factor, max_drawdown, sharpe, sortino)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), report.Symbol, report.Strategy, string(report.Timeframe),
		report.InitialCapital, report.FinalCapital, report.TotalReturnPct,
		report.Metrics.TotalTrades, report.Metrics.WinRate, profitFactor,
		report.Metrics.MaxDrawdownPct, report.Metrics.SharpeRatio, report.Metrics.SortinoRatio,
	)
	return err
}

func (r *SQLite) Close() error {
	return r.db.Close()
}
