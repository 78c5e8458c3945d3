package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txcore/backendstore"
	"github.com/ledgerkit/txcore/kv"
	"github.com/ledgerkit/txcore/scheduler"
)

func TestNewStackSizesCacheAndWiresBackend(t *testing.T) {
	engine := backendstore.NewKVEngine(kv.NewMemLevelDB())
	stack, err := scheduler.NewStack(scheduler.Config{
		CacheCapacityBytes:  1 << 20,
		BackendWriteTimeout: 50 * time.Millisecond,
	}, engine)
	require.NoError(t, err)

	stack.NewMutable()
	v := stack.Fork(true)
	require.NoError(t, v.WriteOne(ctx, balanceKey("a"), []byte("1")))
	stack.PushMutableToImmutableFront()
	require.NoError(t, stack.MergeAndPopImmutableBack(ctx))

	got, ok, err := stack.Fork(false).Get(ctx, balanceKey("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), got)
}

func TestWriteTimeoutFailsSlowBatch(t *testing.T) {
	store := backendstore.NewStore(slowEngine{delay: 50 * time.Millisecond}, backendstore.WithWriteTimeout(time.Millisecond))
	err := store.WriteOne(ctx, balanceKey("a"), []byte("1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, backendstore.ErrWriteTimeout)
}

type slowEngine struct {
	delay time.Duration
}

func (slowEngine) Get([]byte) ([]byte, bool, error) { return nil, false, nil }

func (s slowEngine) WriteBatch([]backendstore.BatchOp, int) error {
	time.Sleep(s.delay)
	return nil
}

func (slowEngine) Iterate(_, _ []byte) (kv.Iterator, error) { return nil, nil }
