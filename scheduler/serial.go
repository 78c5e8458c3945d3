package scheduler

import (
	"context"
	"errors"

	"github.com/ledgerkit/txcore/executor"
	"github.com/ledgerkit/txcore/journal"
)

// Serial executes a block's transactions sequentially against a single
// overlay.
type Serial struct{}

// NewSerial constructs a Serial engine.
func NewSerial() *Serial { return &Serial{} }

// Run opens a Rollbackable over view and executes txs in order,
// appending one receipt per transaction. A transaction-level revert is
// rolled back before the next transaction begins; any other executor
// error aborts the run and propagates to the caller.
func (s *Serial) Run(
	ctx context.Context,
	view journal.Target,
	exec executor.Executor,
	header executor.BlockHeader,
	txs []executor.Transaction,
	cfg executor.LedgerConfig,
) ([]executor.Receipt, error) {
	rb := journal.NewRollbackable(view)
	receipts := make([]executor.Receipt, len(txs))

	for i, tx := range txs {
		sp := rb.Savepoint()
		rcpt, err := exec.Execute(ctx, rb, header, tx, i, cfg)
		var revertErr *executor.RevertError
		if errors.As(err, &revertErr) {
			if rerr := rb.Rollback(ctx, sp); rerr != nil {
				return nil, rerr
			}
			receipts[i] = executor.Receipt{Status: 1}
			continue
		}
		if err != nil {
			return nil, err
		}
		rb.Commit()
		receipts[i] = rcpt
	}
	return receipts, nil
}
