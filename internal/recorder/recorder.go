// Package recorder persists emitted signals and backtest runs for later
// analysis. The pipeline treats recording as best-effort: a recorder failure
// is logged by the caller, never propagated into signal generation.
package recorder

import (
	"github.com/tafadzwa-coder-sw23/grassroot/internal/backtest"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
)

// Config holds recorder settings
type Config struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Path    string `yaml:"path" default:"grassroot.db"`
}

// Recorder persists pipeline output
type Recorder interface {
	RecordSignal(sig signal.Signal) error
	RecordConsensus(cs signal.ConsensusSignal) error
	RecordBacktest(report *backtest.Report) error
	Close() error
}

// New returns the SQLite recorder when enabled, the noop recorder otherwise
func New(cfg Config) (Recorder, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}
	return NewSQLite(cfg.Path)
}
