// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package memtier implements the in-memory storage tier: an ordered
// single-writer variant backed by google/btree, a sharded concurrent
// variant, and an MRU-bounded cache variant backed by hashicorp's LRU.
// All three satisfy kvstore.Tier; only Ordered and Concurrent also
// satisfy kvstore.Ranger.
package memtier

import (
	"context"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/ledgerkit/txcore/kvstore"
)

type item struct {
	key   kvstore.StateKey
	entry kvstore.Entry
}

// Less satisfies btree.Item, ordering items by (table, key).
func (it item) Less(than btree.Item) bool { return kvstore.Less(it.key, than.(item).key) }

// Ordered is the mutable-tier implementation: a balanced tree keyed by
// (table, key), supporting range. Exactly one mutable tier may be live
// on a layerstack.Stack at a time; Ordered itself does not enforce
// that, layerstack.Stack.NewMutable does.
type Ordered struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewOrdered creates an empty Ordered tier.
func NewOrdered() *Ordered {
	return &Ordered{tree: btree.New(32)}
}

func (o *Ordered) ReadOne(_ context.Context, key kvstore.StateKey) (*kvstore.Entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	found := o.tree.Get(item{key: key})
	if found == nil {
		return nil, nil
	}
	e := found.(item).entry
	return &e, nil
}

func (o *Ordered) ReadSome(ctx context.Context, keys []kvstore.StateKey) ([]*kvstore.Entry, error) {
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

func (o *Ordered) ExistsOne(ctx context.Context, key kvstore.StateKey) (bool, error) {
	e, err := o.ReadOne(ctx, key)
	if err != nil {
		return false, err
	}
	return e != nil && !e.Deleted(), nil
}

func (o *Ordered) WriteOne(_ context.Context, key kvstore.StateKey, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tree.ReplaceOrInsert(item{key: key, entry: kvstore.Entry{Value: value, Status: kvstore.StatusNormal}})
	return nil
}

func (o *Ordered) WriteSome(ctx context.Context, keys []kvstore.StateKey, values [][]byte) error {
	if len(keys) != len(values) {
		kvstore.Violate("Ordered.WriteSome", "len(keys) != len(values)")
	}
	for i, k := range keys {
		if err := o.WriteOne(ctx, k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (o *Ordered) RemoveSome(_ context.Context, keys []kvstore.StateKey) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range keys {
		o.tree.ReplaceOrInsert(item{key: k, entry: kvstore.Tombstone()})
	}
	return nil
}

// Range snapshots the matching span under a read lock and replays it
// lazily; a concurrent writer after Range returns does not affect an
// iterator already handed out.
func (o *Ordered) Range(_ context.Context, from, to *kvstore.StateKey) (kvstore.RangeIterator, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []kvstore.RangeEntry
	visit := func(bi btree.Item) bool {
		it := bi.(item)
		if to != nil && !kvstore.Less(it.key, *to) {
			return false
		}
		out = append(out, kvstore.RangeEntry{Key: it.key, Entry: it.entry})
		return true
	}
	if from != nil {
		o.tree.AscendGreaterOrEqual(item{key: *from}, visit)
	} else {
		o.tree.Ascend(visit)
	}
	return &sliceIterator{entries: out, pos: -1}, nil
}

func (o *Ordered) Merge(ctx context.Context, from kvstore.Ranger) error {
	return kvstore.MergeInto(ctx, o, from)
}

// Len reports the number of keys currently held, tombstones included.
func (o *Ordered) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.tree.Len()
}

type sliceIterator struct {
	entries []kvstore.RangeEntry
	pos     int
}

func (s *sliceIterator) Next() bool {
	s.pos++
	return s.pos < len(s.entries)
}
func (s *sliceIterator) Entry() kvstore.RangeEntry { return s.entries[s.pos] }
func (s *sliceIterator) Error() error              { return nil }
func (s *sliceIterator) Release()                  {}

// sortEntries is a helper shared with Concurrent's merged range.
func sortEntries(entries []kvstore.RangeEntry) {
	sort.Slice(entries, func(i, j int) bool { return kvstore.Less(entries[i].Key, entries[j].Key) })
}
