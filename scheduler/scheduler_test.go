package scheduler_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txcore/backendstore"
	"github.com/ledgerkit/txcore/executor"
	"github.com/ledgerkit/txcore/kv"
	"github.com/ledgerkit/txcore/kvstore"
	"github.com/ledgerkit/txcore/layerstack"
	"github.com/ledgerkit/txcore/memtier"
	"github.com/ledgerkit/txcore/scheduler"
)

var ctx = context.Background()

func balanceKey(addr string) kvstore.StateKey {
	return kvstore.StateKey{Table: "balances", Key: []byte(addr)}
}

func newView(t *testing.T, seed map[string]int64) *layerstack.View {
	t.Helper()
	cache := memtier.NewConcurrent(4)
	backend := backendstore.NewStore(backendstore.NewKVEngine(kv.NewMemLevelDB()))
	stack := layerstack.New(cache, backend)
	stack.NewMutable()
	v := stack.Fork(true)
	for addr, bal := range seed {
		require.NoError(t, v.WriteOne(ctx, balanceKey(addr), []byte(strconv.FormatInt(bal, 10))))
	}
	return v
}

func readBalance(t *testing.T, v *layerstack.View, addr string) int64 {
	t.Helper()
	val, ok, err := v.Get(ctx, balanceKey(addr))
	require.NoError(t, err)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(string(val), 10, 64)
	require.NoError(t, err)
	return n
}

// transferOp reads both balances through the passed view (so the
// scheduler's read/write-set tracking observes them), then writes the
// updated balances, or returns a RevertError on insufficient funds.
func transferOp(from, to string, amount int64) executor.Op {
	return func(ctx context.Context, v kvstore.Tier, h executor.BlockHeader, tx executor.Transaction, id int, cfg executor.LedgerConfig) (executor.Receipt, error) {
		fromEntry, err := v.ReadOne(ctx, balanceKey(from))
		if err != nil {
			return executor.Receipt{}, err
		}
		fromBal := int64(0)
		if fromEntry != nil && !fromEntry.Deleted() {
			fromBal, _ = strconv.ParseInt(string(fromEntry.Value), 10, 64)
		}
		if fromBal < amount {
			return executor.Receipt{}, executor.NewRevertError("insufficient balance")
		}
		toEntry, err := v.ReadOne(ctx, balanceKey(to))
		if err != nil {
			return executor.Receipt{}, err
		}
		toBal := int64(0)
		if toEntry != nil && !toEntry.Deleted() {
			toBal, _ = strconv.ParseInt(string(toEntry.Value), 10, 64)
		}
		if err := v.WriteOne(ctx, balanceKey(from), []byte(strconv.FormatInt(fromBal-amount, 10))); err != nil {
			return executor.Receipt{}, err
		}
		if err := v.WriteOne(ctx, balanceKey(to), []byte(strconv.FormatInt(toBal+amount, 10))); err != nil {
			return executor.Receipt{}, err
		}
		return executor.Receipt{Status: 0}, nil
	}
}

func issueOp(addr string, amount int64) executor.Op {
	return func(ctx context.Context, v kvstore.Tier, h executor.BlockHeader, tx executor.Transaction, id int, cfg executor.LedgerConfig) (executor.Receipt, error) {
		if err := v.WriteOne(ctx, balanceKey(addr), []byte(strconv.FormatInt(amount, 10))); err != nil {
			return executor.Receipt{}, err
		}
		return executor.Receipt{Status: 0}, nil
	}
}

func opsExecutor(ops []executor.Op) executor.Executor {
	return &executor.ScriptedExecutor{
		Op: func(ctx context.Context, v kvstore.Tier, h executor.BlockHeader, tx executor.Transaction, id int, cfg executor.LedgerConfig) (executor.Receipt, error) {
			return ops[id](ctx, v, h, tx, id, cfg)
		},
	}
}

func txs(n int) []executor.Transaction {
	out := make([]executor.Transaction, n)
	return out
}

func TestEmptyBlock(t *testing.T) {
	v := newView(t, nil)
	serial := scheduler.NewSerial()
	rcpts, err := serial.Run(ctx, v, opsExecutor(nil), executor.BlockHeader{}, nil, executor.LedgerConfig{})
	require.NoError(t, err)
	assert.Empty(t, rcpts)
}

func TestSingleIssueSerial(t *testing.T) {
	v := newView(t, nil)
	ops := []executor.Op{issueOp("0x01", 1000000)}
	serial := scheduler.NewSerial()
	rcpts, err := serial.Run(ctx, v, opsExecutor(ops), executor.BlockHeader{}, txs(1), executor.LedgerConfig{})
	require.NoError(t, err)
	require.Len(t, rcpts, 1)
	assert.Equal(t, uint32(0), rcpts[0].Status)
	assert.Equal(t, int64(1000000), readBalance(t, v, "0x01"))
}

func TestNonConflictingTransfersParallel(t *testing.T) {
	v := newView(t, map[string]int64{"a": 1000000, "b": 1000000, "c": 1000000, "d": 1000000})
	ops := []executor.Op{transferOp("a", "b", 1), transferOp("c", "d", 1)}
	par := scheduler.NewParallel(scheduler.Config{ChunkSize: 1, MaxTokens: 4})
	rcpts, err := par.Run(ctx, v, opsExecutor(ops), executor.BlockHeader{}, txs(2), executor.LedgerConfig{})
	require.NoError(t, err)
	for _, r := range rcpts {
		assert.Equal(t, uint32(0), r.Status)
	}
	assert.Equal(t, int64(999999), readBalance(t, v, "a"))
	assert.Equal(t, int64(1000001), readBalance(t, v, "b"))
	assert.Equal(t, int64(999999), readBalance(t, v, "c"))
	assert.Equal(t, int64(1000001), readBalance(t, v, "d"))
}

func TestSerialChainTransfersMatchSerialScheduler(t *testing.T) {
	addrs := []string{"a", "b", "c", "d", "e", "f"}
	seed := make(map[string]int64, len(addrs))
	for _, a := range addrs {
		seed[a] = 1000000
	}

	buildOps := func() []executor.Op {
		ops := make([]executor.Op, len(addrs)-1)
		for i := 0; i < len(addrs)-1; i++ {
			ops[i] = transferOp(addrs[i], addrs[i+1], 1)
		}
		return ops
	}

	vSerial := newView(t, seed)
	serial := scheduler.NewSerial()
	serialRcpts, err := serial.Run(ctx, vSerial, opsExecutor(buildOps()), executor.BlockHeader{}, txs(len(addrs)-1), executor.LedgerConfig{})
	require.NoError(t, err)

	vParallel := newView(t, seed)
	par := scheduler.NewParallel(scheduler.Config{ChunkSize: 2, MaxTokens: 2})
	parallelRcpts, err := par.Run(ctx, vParallel, opsExecutor(buildOps()), executor.BlockHeader{}, txs(len(addrs)-1), executor.LedgerConfig{})
	require.NoError(t, err)

	assert.Equal(t, serialRcpts, parallelRcpts)
	for _, a := range addrs {
		assert.Equal(t, readBalance(t, vSerial, a), readBalance(t, vParallel, a))
	}
}

// TestSameChunkDependencySettlesWithoutRetry pins a dependent pair of
// transfers into a single chunk (ChunkSize 2) and expects them to
// commit in one pass: they execute serially against the chunk's
// shared overlay, so the second transfer observes the first's write
// directly and never needs a conflict-triggered retry round.
func TestSameChunkDependencySettlesWithoutRetry(t *testing.T) {
	v := newView(t, map[string]int64{"a": 1000000, "b": 1000000, "c": 1000000})
	ops := []executor.Op{transferOp("a", "b", 1), transferOp("b", "c", 1)}
	par := scheduler.NewParallel(scheduler.Config{ChunkSize: 2, MaxTokens: 1})
	rcpts, err := par.Run(ctx, v, opsExecutor(ops), executor.BlockHeader{}, txs(2), executor.LedgerConfig{})
	require.NoError(t, err)
	for _, r := range rcpts {
		assert.Equal(t, uint32(0), r.Status)
	}
	assert.Equal(t, int64(999999), readBalance(t, v, "a"))
	assert.Equal(t, int64(1000000), readBalance(t, v, "b"))
	assert.Equal(t, int64(1000001), readBalance(t, v, "c"))
}

func TestNewEngineSelectsByConfig(t *testing.T) {
	_, ok := scheduler.NewEngine(scheduler.Config{Parallel: false}).(*scheduler.Serial)
	assert.True(t, ok)

	_, ok = scheduler.NewEngine(scheduler.Config{Parallel: true}).(*scheduler.Parallel)
	assert.True(t, ok)
}

func TestRevertLeavesKeyAbsentThenSucceeds(t *testing.T) {
	v := newView(t, nil)
	k := kvstore.StateKey{Table: "t", Key: []byte("k")}
	ops := []executor.Op{
		func(ctx context.Context, view kvstore.Tier, h executor.BlockHeader, tx executor.Transaction, id int, cfg executor.LedgerConfig) (executor.Receipt, error) {
			if err := view.WriteOne(ctx, k, []byte("1")); err != nil {
				return executor.Receipt{}, err
			}
			return executor.Receipt{}, executor.NewRevertError("boom")
		},
		func(ctx context.Context, view kvstore.Tier, h executor.BlockHeader, tx executor.Transaction, id int, cfg executor.LedgerConfig) (executor.Receipt, error) {
			if err := view.WriteOne(ctx, k, []byte("2")); err != nil {
				return executor.Receipt{}, err
			}
			return executor.Receipt{Status: 0}, nil
		},
	}
	serial := scheduler.NewSerial()
	rcpts, err := serial.Run(ctx, v, opsExecutor(ops), executor.BlockHeader{}, txs(2), executor.LedgerConfig{})
	require.NoError(t, err)
	assert.NotEqual(t, uint32(0), rcpts[0].Status)
	assert.Equal(t, uint32(0), rcpts[1].Status)

	val, ok, err := v.Get(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), val)
}
