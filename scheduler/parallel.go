package scheduler

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerkit/txcore/executor"
	"github.com/ledgerkit/txcore/journal"
	"github.com/ledgerkit/txcore/kvstore"
	"github.com/ledgerkit/txcore/memtier"
	"github.com/ledgerkit/txcore/metrics"
	"github.com/ledgerkit/txcore/rwset"
)

var conflictRetries = metrics.LazyLoadCounter("scheduler_conflict_retries_total")

// Parallel speculatively executes chunks of transactions concurrently
// against a chunk-local overlay, then commits them in original order
// subject to read/write-set conflict detection. Given identical
// inputs, its post-state and ordered receipts are bit-identical to
// Serial's regardless of ChunkSize or MaxTokens.
type Parallel struct {
	chunkSize int
	maxTokens int
}

// NewParallel builds a Parallel engine from cfg. A non-positive
// ChunkSize defaults to 1; a non-positive MaxTokens defaults to the
// host's available concurrency.
func NewParallel(cfg Config) *Parallel {
	chunkSize := cfg.ChunkSize
	if chunkSize < 1 {
		chunkSize = 1
	}
	maxTokens := cfg.MaxTokens
	if maxTokens < 1 {
		maxTokens = runtime.GOMAXPROCS(0)
	}
	return &Parallel{chunkSize: chunkSize, maxTokens: maxTokens}
}

// specResult is one transaction's speculative outcome. overlay points
// at the chunk-wide overlay all of a chunk's results share; it is
// only read back during the merge pass, never mutated there.
type specResult struct {
	index    int
	receipt  executor.Receipt
	tracker  *rwset.Tracker
	overlay  *memtier.Ordered
	reverted bool
}

// Run executes txs against view, chunking and speculating, and
// returns receipts in original transaction order.
func (p *Parallel) Run(
	ctx context.Context,
	view journal.Target,
	exec executor.Executor,
	header executor.BlockHeader,
	txs []executor.Transaction,
	cfg executor.LedgerConfig,
) ([]executor.Receipt, error) {
	n := len(txs)
	receipts := make([]executor.Receipt, n)

	// m summarizes every transaction already committed to the block's
	// mutable tier, across all rounds.
	m := rwset.New(memtier.NewOrdered())

	pending := make([]int, n)
	for i := range pending {
		pending[i] = i
	}

	for len(pending) > 0 {
		round := pending
		pending = nil

		var chunks [][]int
		for start := 0; start < len(round); start += p.chunkSize {
			end := start + p.chunkSize
			if end > len(round) {
				end = len(round)
			}
			chunks = append(chunks, round[start:end])
		}

		chunkResults := make([][]specResult, len(chunks))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.maxTokens)
		for ci, chunk := range chunks {
			ci, chunk := ci, chunk
			g.Go(func() error {
				results, err := p.speculateChunk(gctx, view, exec, header, txs, chunk, cfg)
				if err != nil {
					return err
				}
				chunkResults[ci] = results
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// committedSinceLaunch tracks only the writes landed during
		// this round: a speculative read is already safe against
		// everything in the shared view when the round launched, so
		// the conflict predicate only needs what landed after launch,
		// not the whole history in m.
		committedSinceLaunch := rwset.New(memtier.NewOrdered())
		for _, results := range chunkResults {
			stillPending, err := p.mergeChunk(ctx, view, m, committedSinceLaunch, results, receipts)
			if err != nil {
				return nil, err
			}
			pending = append(pending, stillPending...)
		}
	}

	return receipts, nil
}

// speculateChunk executes chunk's transactions serially against one
// shared overlay stacked on the shared view: a fresh in-memory
// mutable tier wrapped in a Rollbackable. Each transaction gets its
// own Read/Write-Set Tracker so the merge pass can reason about it
// individually, but all of them read and write through the same
// overlay, so a transaction observes its chunk-mates' prior writes
// exactly as the serial engine would.
func (p *Parallel) speculateChunk(
	ctx context.Context,
	view journal.Target,
	exec executor.Executor,
	header executor.BlockHeader,
	txs []executor.Transaction,
	chunk []int,
	cfg executor.LedgerConfig,
) ([]specResult, error) {
	ov := newOverlay(view)
	rb := journal.NewRollbackable(ov)
	results := make([]specResult, len(chunk))

	for pos, idx := range chunk {
		tracker := rwset.New(rb)

		sp := rb.Savepoint()
		rcpt, err := exec.Execute(ctx, tracker, header, txs[idx], idx, cfg)

		var revertErr *executor.RevertError
		reverted := errors.As(err, &revertErr)
		if reverted {
			if rerr := rb.Rollback(ctx, sp); rerr != nil {
				return nil, rerr
			}
			rcpt = executor.Receipt{Status: 1}
		} else if err != nil {
			return nil, err
		} else {
			rb.Commit()
		}

		results[pos] = specResult{
			index:    idx,
			receipt:  rcpt,
			tracker:  tracker,
			overlay:  ov.private,
			reverted: reverted,
		}
	}
	return results, nil
}

// mergeChunk walks one chunk's results in original index order and
// commits each that has no RAW conflict against writes already landed
// from *other* chunks (committedSinceLaunch as it stood when this
// chunk started merging). A chunk-mate's write is never itself a
// conflict source for this chunk: speculateChunk already resolved
// those reads through the chunk's shared overlay, the same as the
// serial engine would. Once a transaction in the chunk conflicts,
// every transaction after it in that same chunk is also discarded
// without being checked: it executed against the chunk's shared
// overlay after the conflicting one, so its own read set may already
// have observed state that is about to be thrown away. A reverted
// transaction contributes nothing to either merged write-set: it made
// no real write for a later transaction to depend on.
func (p *Parallel) mergeChunk(
	ctx context.Context,
	view journal.Target,
	m *rwset.Tracker,
	committedSinceLaunch *rwset.Tracker,
	results []specResult,
	receipts []executor.Receipt,
) ([]int, error) {
	var pending []int
	tainted := false
	chunkWrites := rwset.New(memtier.NewOrdered())

	for _, res := range results {
		if !tainted && res.tracker.HasRAWConflict(committedSinceLaunch) {
			tainted = true
			conflictRetries().Add(1)
		}
		if tainted {
			pending = append(pending, res.index)
			continue
		}
		if !res.reverted {
			if err := commitWriteSet(ctx, view, res.overlay, res.tracker); err != nil {
				return nil, err
			}
			chunkWrites.MergeWriteSet(res.tracker)
		}
		receipts[res.index] = res.receipt
	}

	m.MergeWriteSet(chunkWrites)
	committedSinceLaunch.MergeWriteSet(chunkWrites)
	return pending, nil
}

// commitWriteSet applies tracker's recorded writes, reading each
// key's final value back out of the chunk's shared overlay rather
// than replaying the overlay wholesale, since overlay also holds
// writes belonging to other transactions in the same chunk.
func commitWriteSet(ctx context.Context, view journal.Target, overlay *memtier.Ordered, tracker *rwset.Tracker) error {
	for _, k := range tracker.WriteSet() {
		e, err := overlay.ReadOne(ctx, k)
		if err != nil {
			return err
		}
		if e == nil {
			continue
		}
		if e.Deleted() {
			if err := view.RemoveSome(ctx, []kvstore.StateKey{k}); err != nil {
				return err
			}
			continue
		}
		if err := view.WriteOne(ctx, k, e.Value); err != nil {
			return err
		}
	}
	return nil
}
