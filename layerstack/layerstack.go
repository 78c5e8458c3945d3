// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package layerstack implements the multi-layer storage stack:
// newest-first lookup across a mutable tier, a deque of frozen
// immutable tiers, a concurrent cache tier and a persistent backend
// tier, with fork-as-view and merge-down. Grounded on muxdb.MuxDB's
// backend/cache layering and state.Stater's fork-by-block naming.
package layerstack

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ledgerkit/txcore/kvstore"
	"github.com/ledgerkit/txcore/memtier"
	"github.com/ledgerkit/txcore/metrics"
)

var mergeCount = metrics.LazyLoadCounter("layerstack_merge_total")

// Stack holds the four tiers named in the spec. cache and backend are
// supplied by the caller (typically memtier.Concurrent/MRU and
// backendstore.Store respectively) so Stack stays agnostic of their
// concrete shape beyond the kvstore.Tier contract.
type Stack struct {
	mu sync.Mutex

	mutable    *memtier.Ordered
	immutables []*memtier.Ordered // front (index 0) is newest

	cache   kvstore.Tier
	backend kvstore.Tier
}

// New creates a Stack with no mutable tier yet.
func New(cache, backend kvstore.Tier) *Stack {
	return &Stack{cache: cache, backend: backend}
}

// NewMutable allocates a fresh mutable tier. It panics with an
// InvariantViolation if one already exists.
func (s *Stack) NewMutable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutable != nil {
		kvstore.Violate("Stack.NewMutable", "a mutable tier already exists")
	}
	s.mutable = memtier.NewOrdered()
}

// PushMutableToImmutableFront atomically moves the current mutable
// tier to the front of the immutable deque and clears the mutable slot.
func (s *Stack) PushMutableToImmutableFront() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutable == nil {
		kvstore.Violate("Stack.PushMutableToImmutableFront", "no mutable tier to push")
	}
	s.immutables = append([]*memtier.Ordered{s.mutable}, s.immutables...)
	s.mutable = nil
}

// MergeAndPopImmutableBack drains the oldest immutable tier through
// cache then backend within one merge pass, then pops it. On backend
// failure the immutable tier is left in place and the error surfaces;
// a retry of the same call is idempotent since Merge replays the same
// range. The whole stack is locked for the duration, matching the
// spec's "one outstanding merge batch at a time" guarantee.
func (s *Stack) MergeAndPopImmutableBack(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.immutables) == 0 {
		return nil
	}
	oldest := s.immutables[len(s.immutables)-1]

	if err := s.cache.Merge(ctx, oldest); err != nil {
		log.Error("layerstack: cache merge failed", "err", err)
		return err
	}
	if err := s.backend.Merge(ctx, oldest); err != nil {
		log.Error("layerstack: backend merge failed", "err", err)
		return err
	}
	s.immutables = s.immutables[:len(s.immutables)-1]
	mergeCount().Add(1)
	return nil
}

// Fork produces a View pinning the stack's current tiers. withMutable
// includes the live mutable tier (if any) at the front of the lookup
// chain and permits the View's write-side methods.
func (s *Stack) Fork(withMutable bool) *View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &View{}
	if withMutable && s.mutable != nil {
		v.tiers = append(v.tiers, s.mutable)
		v.mutable = s.mutable
	}
	for _, imm := range s.immutables {
		v.tiers = append(v.tiers, imm)
	}
	v.tiers = append(v.tiers, s.cache, s.backend)
	return v
}

// View is a pinned, newest-first lookup chain over a snapshot of the
// stack's tiers at Fork time. It satisfies kvstore.Reader directly and
// kvstore.Writer when it was forked withMutable.
type View struct {
	tiers   []kvstore.Reader
	mutable kvstore.Writer
}

// ReadOne resolves by first-hit newest-first; a tombstone hit is
// returned as-is (Status == StatusDeleted) rather than translated to
// absent, since callers composing Views (journal, rwset) need to
// distinguish "shadowed by a tombstone" from "unknown to every tier."
// Use Get for the absent-at-the-boundary convenience form.
func (v *View) ReadOne(ctx context.Context, key kvstore.StateKey) (*kvstore.Entry, error) {
	for _, tier := range v.tiers {
		e, err := tier.ReadOne(ctx, key)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return e, nil
		}
	}
	return nil, nil
}

func (v *View) ReadSome(ctx context.Context, keys []kvstore.StateKey) ([]*kvstore.Entry, error) {
	out := make([]*kvstore.Entry, len(keys))
	for i, k := range keys {
		e, err := v.ReadOne(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (v *View) ExistsOne(ctx context.Context, key kvstore.StateKey) (bool, error) {
	e, err := v.ReadOne(ctx, key)
	if err != nil {
		return false, err
	}
	return e != nil && !e.Deleted(), nil
}

// Get is the external-facing read: a tombstone and "unknown to every
// tier" both surface as absent, so callers outside the storage stack
// never observe a logical deletion as a distinct state from "never
// written."
func (v *View) Get(ctx context.Context, key kvstore.StateKey) ([]byte, bool, error) {
	e, err := v.ReadOne(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if e == nil || e.Deleted() {
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (v *View) WriteOne(ctx context.Context, key kvstore.StateKey, value []byte) error {
	if v.mutable == nil {
		kvstore.Violate("View.WriteOne", "view has no mutable tier")
	}
	return v.mutable.WriteOne(ctx, key, value)
}

func (v *View) WriteSome(ctx context.Context, keys []kvstore.StateKey, values [][]byte) error {
	if v.mutable == nil {
		kvstore.Violate("View.WriteSome", "view has no mutable tier")
	}
	return v.mutable.WriteSome(ctx, keys, values)
}

func (v *View) RemoveSome(ctx context.Context, keys []kvstore.StateKey) error {
	if v.mutable == nil {
		kvstore.Violate("View.RemoveSome", "view has no mutable tier")
	}
	return v.mutable.RemoveSome(ctx, keys)
}
