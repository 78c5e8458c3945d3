package kvstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerkit/txcore/kvstore"
)

func TestStateKeyOrdering(t *testing.T) {
	a := kvstore.StateKey{Table: "accounts", Key: []byte("a")}
	b := kvstore.StateKey{Table: "accounts", Key: []byte("b")}
	c := kvstore.StateKey{Table: "balances", Key: []byte("a")}

	assert.True(t, kvstore.Less(a, b))
	assert.False(t, kvstore.Less(b, a))
	assert.True(t, kvstore.Less(b, c))
	assert.Equal(t, 0, kvstore.Compare(a, a))
}

func TestEntryDeleted(t *testing.T) {
	assert.True(t, kvstore.Tombstone().Deleted())
	assert.False(t, (kvstore.Entry{Value: []byte("x")}).Deleted())
}

func TestInvariantViolationPanics(t *testing.T) {
	assert.Panics(t, func() {
		kvstore.Violate("WriteSome", "len(keys) != len(values)")
	})
}
