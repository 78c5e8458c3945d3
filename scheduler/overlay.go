package scheduler

import (
	"context"

	"github.com/ledgerkit/txcore/kvstore"
	"github.com/ledgerkit/txcore/memtier"
)

// overlay stacks a fresh per-chunk mutable tier on top of a shared,
// read-only base; every transaction of a chunk reads and writes it. Reads miss through to base; writes and
// removes land only in the private tier, so the shared base is
// unaffected until the scheduler explicitly commits the overlay's
// accumulated delta. It satisfies journal.Target (plain read/write),
// which is all journal.NewRollbackable requires of what it wraps.
type overlay struct {
	private *memtier.Ordered
	base    kvstore.Reader
}

func newOverlay(base kvstore.Reader) *overlay {
	return &overlay{private: memtier.NewOrdered(), base: base}
}

func (o *overlay) ReadOne(ctx context.Context, key kvstore.StateKey) (*kvstore.Entry, error) {
	e, err := o.private.ReadOne(ctx, key)
	if err != nil {
		return nil, err
	}
	if e != nil {
		return e, nil
	}
	return o.base.ReadOne(ctx, key)
}

func (o *overlay) ReadSome(ctx context.Context, keys []kvstore.StateKey) ([]*kvstore.Entry, error) {
	out := make([]*kvstore.Entry, len(keys))
	for i, k := range keys {
		e, err := o.ReadOne(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (o *overlay) ExistsOne(ctx context.Context, key kvstore.StateKey) (bool, error) {
	e, err := o.ReadOne(ctx, key)
	if err != nil {
		return false, err
	}
	return e != nil && !e.Deleted(), nil
}

func (o *overlay) WriteOne(ctx context.Context, key kvstore.StateKey, value []byte) error {
	return o.private.WriteOne(ctx, key, value)
}

func (o *overlay) WriteSome(ctx context.Context, keys []kvstore.StateKey, values [][]byte) error {
	return o.private.WriteSome(ctx, keys, values)
}

func (o *overlay) RemoveSome(ctx context.Context, keys []kvstore.StateKey) error {
	return o.private.RemoveSome(ctx, keys)
}
