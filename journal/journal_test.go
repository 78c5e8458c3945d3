package journal_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txcore/journal"
	"github.com/ledgerkit/txcore/kvstore"
	"github.com/ledgerkit/txcore/memtier"
)

var ctx = context.Background()

func key(k string) kvstore.StateKey { return kvstore.StateKey{Table: "t", Key: []byte(k)} }

func TestRollbackRestoresPriorValue(t *testing.T) {
	tier := memtier.NewOrdered()
	require.NoError(t, tier.WriteOne(ctx, key("a"), []byte("orig")))

	r := journal.NewRollbackable(tier)
	sp := r.Savepoint()
	require.NoError(t, r.Write(ctx, key("a"), []byte("new")))

	e, err := tier.ReadOne(ctx, key("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), e.Value)

	require.NoError(t, r.Rollback(ctx, sp))

	e, err = tier.ReadOne(ctx, key("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("orig"), e.Value)
}

func TestRollbackRestoresAbsence(t *testing.T) {
	tier := memtier.NewOrdered()
	r := journal.NewRollbackable(tier)
	sp := r.Savepoint()
	require.NoError(t, r.Write(ctx, key("new"), []byte("v")))

	require.NoError(t, r.Rollback(ctx, sp))

	// the key was absent before the savepoint, so rollback leaves a
	// tombstone, which reads as absent at the view boundary.
	e, err := tier.ReadOne(ctx, key("new"))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Deleted())
}

func TestNestedSavepoints(t *testing.T) {
	tier := memtier.NewOrdered()
	r := journal.NewRollbackable(tier)

	sp1 := r.Savepoint()
	require.NoError(t, r.Write(ctx, key("a"), []byte("1")))
	sp2 := r.Savepoint()
	require.NoError(t, r.Write(ctx, key("a"), []byte("2")))

	require.NoError(t, r.Rollback(ctx, sp2))
	e, err := tier.ReadOne(ctx, key("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), e.Value)

	require.NoError(t, r.Rollback(ctx, sp1))
	e, err = tier.ReadOne(ctx, key("a"))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Deleted())
}

func TestCommitDiscardsJournal(t *testing.T) {
	tier := memtier.NewOrdered()
	r := journal.NewRollbackable(tier)
	sp := r.Savepoint()
	require.NoError(t, r.Write(ctx, key("a"), []byte("1")))
	r.Commit()

	// savepoint taken before commit is no longer reachable; a rollback
	// to it is a no-op because the journal was reset to depth 1.
	require.NoError(t, r.Rollback(ctx, sp))
	e, err := tier.ReadOne(ctx, key("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), e.Value)
}

func TestDedupRecordsPriorImageOnce(t *testing.T) {
	tier := memtier.NewOrdered()
	require.NoError(t, tier.WriteOne(ctx, key("a"), []byte("orig")))
	r := journal.NewRollbackable(tier)
	sp := r.Savepoint()

	require.NoError(t, r.Write(ctx, key("a"), []byte("mid")))
	require.NoError(t, r.Write(ctx, key("a"), []byte("final")))

	require.NoError(t, r.Rollback(ctx, sp))
	e, err := tier.ReadOne(ctx, key("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("orig"), e.Value)
}
