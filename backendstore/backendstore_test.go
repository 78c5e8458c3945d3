package backendstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txcore/backendstore"
	"github.com/ledgerkit/txcore/kv"
	"github.com/ledgerkit/txcore/kvstore"
)

var ctx = context.Background()

func newStore() *backendstore.Store {
	return backendstore.NewStore(backendstore.NewKVEngine(kv.NewMemLevelDB()))
}

func key(table, k string) kvstore.StateKey { return kvstore.StateKey{Table: table, Key: []byte(k)} }

func TestStoreReadWriteRemove(t *testing.T) {
	s := newStore()

	require.NoError(t, s.WriteOne(ctx, key("accounts", "a"), []byte("1")))
	e, err := s.ReadOne(ctx, key("accounts", "a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), e.Value)

	e, err = s.ReadOne(ctx, key("accounts", "missing"))
	require.NoError(t, err)
	assert.Nil(t, e)

	require.NoError(t, s.RemoveSome(ctx, []kvstore.StateKey{key("accounts", "a")}))
	e, err = s.ReadOne(ctx, key("accounts", "a"))
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestStoreReadSomePreservesOrder(t *testing.T) {
	s := newStore()
	keys := []kvstore.StateKey{key("t", "a"), key("t", "b"), key("t", "c")}
	require.NoError(t, s.WriteOne(ctx, keys[0], []byte("1")))
	require.NoError(t, s.WriteOne(ctx, keys[2], []byte("3")))

	out, err := s.ReadSome(ctx, keys)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []byte("1"), out[0].Value)
	assert.Nil(t, out[1])
	assert.Equal(t, []byte("3"), out[2].Value)
}

func TestStoreRangeRoundTrip(t *testing.T) {
	s := newStore()
	require.NoError(t, s.WriteOne(ctx, key("t", "a"), []byte("1")))
	require.NoError(t, s.WriteOne(ctx, key("t", "b"), []byte("2")))

	it, err := s.Range(ctx, nil, nil)
	require.NoError(t, err)
	defer it.Release()

	var seen []string
	for it.Next() {
		seen = append(seen, string(it.Entry().Key.Key))
	}
	require.NoError(t, it.Error())
	assert.Equal(t, []string{"a", "b"}, seen)
}
