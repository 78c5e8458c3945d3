package memtier_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txcore/kvstore"
	"github.com/ledgerkit/txcore/memtier"
)

var ctx = context.Background()

func key(k string) kvstore.StateKey { return kvstore.StateKey{Table: "accounts", Key: []byte(k)} }

func TestOrderedWriteReadRange(t *testing.T) {
	o := memtier.NewOrdered()
	require.NoError(t, o.WriteOne(ctx, key("a"), []byte("1")))
	require.NoError(t, o.WriteOne(ctx, key("b"), []byte("2")))
	require.NoError(t, o.RemoveSome(ctx, []kvstore.StateKey{key("c")}))

	e, err := o.ReadOne(ctx, key("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), e.Value)

	e, err = o.ReadOne(ctx, key("missing"))
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = o.ReadOne(ctx, key("c"))
	require.NoError(t, err)
	assert.True(t, e.Deleted())

	it, err := o.Range(ctx, nil, nil)
	require.NoError(t, err)
	defer it.Release()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Entry().Key.Key))
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestOrderedWriteSomeLengthMismatchPanics(t *testing.T) {
	o := memtier.NewOrdered()
	assert.Panics(t, func() {
		_ = o.WriteSome(ctx, []kvstore.StateKey{key("a")}, nil)
	})
}

func TestConcurrentShardedAccess(t *testing.T) {
	c := memtier.NewConcurrent(4)
	require.NoError(t, c.WriteOne(ctx, key("a"), []byte("1")))
	require.NoError(t, c.WriteOne(ctx, key("b"), []byte("2")))

	ok, err := c.ExistsOne(ctx, key("a"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.RemoveSome(ctx, []kvstore.StateKey{key("a")}))
	e, err := c.ReadOne(ctx, key("a"))
	require.NoError(t, err)
	assert.True(t, e.Deleted())
}

func TestMRUEvictsWithoutTombstone(t *testing.T) {
	m, err := memtier.NewMRU(1, 1)
	require.NoError(t, err)

	require.NoError(t, m.WriteOne(ctx, key("a"), []byte("1")))
	require.NoError(t, m.WriteOne(ctx, key("b"), []byte("2")))

	// single-shard, capacity 1: writing b evicts a outright, no tombstone.
	e, err := m.ReadOne(ctx, key("a"))
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = m.ReadOne(ctx, key("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), e.Value)
}

func TestNewDispatchesByOption(t *testing.T) {
	ordered, err := memtier.New()
	require.NoError(t, err)
	_, isRanger := ordered.(kvstore.Ranger)
	assert.True(t, isRanger)

	mru, err := memtier.New(memtier.WithMRU(2, 4))
	require.NoError(t, err)
	_, isRanger = mru.(kvstore.Ranger)
	assert.False(t, isRanger)
}
