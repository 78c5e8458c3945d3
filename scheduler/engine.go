package scheduler

import (
	"context"

	"github.com/ledgerkit/txcore/executor"
	"github.com/ledgerkit/txcore/journal"
)

// Engine runs a block's transactions against view and returns one
// receipt per transaction in original order. Serial and Parallel both
// satisfy it.
type Engine interface {
	Run(
		ctx context.Context,
		view journal.Target,
		exec executor.Executor,
		header executor.BlockHeader,
		txs []executor.Transaction,
		cfg executor.LedgerConfig,
	) ([]executor.Receipt, error)
}

// NewEngine selects Parallel or Serial according to cfg.Parallel. The
// two engines are interchangeable: for identical inputs they produce
// identical receipts and post-state.
func NewEngine(cfg Config) Engine {
	if cfg.Parallel {
		return NewParallel(cfg)
	}
	return NewSerial()
}
