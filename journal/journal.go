// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package journal generalizes stackedmap.StackedMap's push/pop/journal
// discipline from an arbitrary interface{}-keyed map onto a
// kvstore.Tier: Rollbackable wraps any tier and lets a transaction take
// nested savepoints and roll back to any of them.
package journal

import (
	"context"
	"sync"

	"github.com/ledgerkit/txcore/kvstore"
)

type entry struct {
	key   kvstore.StateKey
	prior *kvstore.Entry // nil means the key was absent before this mutation
}

type level struct {
	seen    map[string]struct{}
	entries []entry
}

func newLevel() *level {
	return &level{seen: make(map[string]struct{})}
}

// Target is the minimum a Rollbackable needs from what it wraps: plain
// reads and writes. It lets Rollbackable wrap things narrower than a
// full kvstore.Tier, such as a layerstack.View, which has no Merge of
// its own (merging is the layerstack.Stack's job, not a view's).
type Target interface {
	kvstore.Reader
	kvstore.Writer
}

// Rollbackable wraps a Target and records every write and remove
// performed through it, once per key since the most recent savepoint,
// so the transaction can be undone back to that savepoint.
type Rollbackable struct {
	mu     sync.Mutex
	tier   Target
	levels []*level
}

// NewRollbackable wraps tier. Mutations made before the first
// Savepoint call are recorded in the base level and can only be
// undone by a Rollback to savepoint 0 or discarded wholesale by Commit.
func NewRollbackable(tier Target) *Rollbackable {
	return &Rollbackable{tier: tier, levels: []*level{newLevel()}}
}

// Savepoint captures the current journal depth and opens a new level
// for subsequent mutations. It returns the depth to pass to Rollback.
func (r *Rollbackable) Savepoint() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.levels)
	r.levels = append(r.levels, newLevel())
	return before
}

func (r *Rollbackable) recordIfNeeded(ctx context.Context, key kvstore.StateKey) error {
	top := r.levels[len(r.levels)-1]
	enc := key.Encode()
	if _, ok := top.seen[enc]; ok {
		return nil
	}
	prior, err := r.tier.ReadOne(ctx, key)
	if err != nil {
		return err
	}
	top.seen[enc] = struct{}{}
	top.entries = append(top.entries, entry{key: key, prior: prior})
	return nil
}

// Write records key's prior image (if not already recorded at this
// level) then applies the write.
func (r *Rollbackable) Write(ctx context.Context, key kvstore.StateKey, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.recordIfNeeded(ctx, key); err != nil {
		return err
	}
	return r.tier.WriteOne(ctx, key, value)
}

// Remove records key's prior image then applies the deletion.
func (r *Rollbackable) Remove(ctx context.Context, key kvstore.StateKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.recordIfNeeded(ctx, key); err != nil {
		return err
	}
	return r.tier.RemoveSome(ctx, []kvstore.StateKey{key})
}

// Rollback pops levels until the journal's depth reaches savepoint,
// re-applying each popped level's recorded prior images in reverse
// order so the net effect of every mutation since savepoint is undone.
func (r *Rollbackable) Rollback(ctx context.Context, savepoint int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.levels) > savepoint {
		top := r.levels[len(r.levels)-1]
		for i := len(top.entries) - 1; i >= 0; i-- {
			e := top.entries[i]
			if e.prior == nil {
				if err := r.tier.RemoveSome(ctx, []kvstore.StateKey{e.key}); err != nil {
					return err
				}
				continue
			}
			if e.prior.Deleted() {
				if err := r.tier.RemoveSome(ctx, []kvstore.StateKey{e.key}); err != nil {
					return err
				}
				continue
			}
			if err := r.tier.WriteOne(ctx, e.key, e.prior.Value); err != nil {
				return err
			}
		}
		r.levels = r.levels[:len(r.levels)-1]
	}
	return nil
}

// Commit discards the whole journal; the underlying tier's current
// state becomes final and unrollbackable.
func (r *Rollbackable) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = []*level{newLevel()}
}

// ReadOne, ReadSome and ExistsOne pass straight through to the wrapped
// tier; Rollbackable only intercepts the write path.
func (r *Rollbackable) ReadOne(ctx context.Context, key kvstore.StateKey) (*kvstore.Entry, error) {
	return r.tier.ReadOne(ctx, key)
}

func (r *Rollbackable) ReadSome(ctx context.Context, keys []kvstore.StateKey) ([]*kvstore.Entry, error) {
	return r.tier.ReadSome(ctx, keys)
}

func (r *Rollbackable) ExistsOne(ctx context.Context, key kvstore.StateKey) (bool, error) {
	return r.tier.ExistsOne(ctx, key)
}

// WriteOne and WriteSome/RemoveSome satisfy kvstore.Writer by routing
// through the journaled Write/Remove so that any consumer holding a
// Rollbackable as a plain kvstore.Tier still gets rollback coverage.
func (r *Rollbackable) WriteOne(ctx context.Context, key kvstore.StateKey, value []byte) error {
	return r.Write(ctx, key, value)
}

func (r *Rollbackable) WriteSome(ctx context.Context, keys []kvstore.StateKey, values [][]byte) error {
	if len(keys) != len(values) {
		kvstore.Violate("Rollbackable.WriteSome", "len(keys) != len(values)")
	}
	for i, k := range keys {
		if err := r.Write(ctx, k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rollbackable) RemoveSome(ctx context.Context, keys []kvstore.StateKey) error {
	for _, k := range keys {
		if err := r.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Merge requires the wrapped Target to also be a kvstore.Merger; it
// panics with an InvariantViolation if it is not (e.g. a
// layerstack.View, which deliberately does not merge).
func (r *Rollbackable) Merge(ctx context.Context, from kvstore.Ranger) error {
	m, ok := r.tier.(kvstore.Merger)
	if !ok {
		kvstore.Violate("Rollbackable.Merge", "wrapped target does not support merge")
	}
	return m.Merge(ctx, from)
}
