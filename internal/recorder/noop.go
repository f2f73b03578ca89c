package recorder

import (
	"github.com/tafadzwa-coder-sw23/grassroot/internal/backtest"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/signal"
)

// Noop is the recorder used when persistence is not configured
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) RecordSignal(_ signal.Signal) error             { return nil }
func (n *Noop) RecordConsensus(_ signal.ConsensusSignal) error { return nil }
func (n *Noop) RecordBacktest(_ *backtest.Report) error        { return nil }
func (n *Noop) Close() error                                   { return nil }
