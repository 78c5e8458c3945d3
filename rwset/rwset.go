// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package rwset implements the read/write-set tracker: a view decorator
// that records every key a transaction touches, with a conflict
// predicate used by the parallel scheduler's merge pass. Directly
// grounded on
// transaction-scheduler/bcos-transaction-scheduler/ReadWriteSetStorage.h
// (putSet, hasRAWIntersection, mergeWriteSet).
package rwset

import (
	"context"
	"sync"

	"github.com/ledgerkit/txcore/kvstore"
)

// Flag records whether a key was read, written, or both, OR-merged
// across every access performed through the Tracker.
type Flag struct {
	Read  bool
	Write bool
}

// Tracker decorates a kvstore.Tier (typically a *journal.Rollbackable)
// and records every key it forwards to the underlying tier, except
// through ReadFront which bypasses recording entirely. Tracker itself
// satisfies kvstore.Tier so it composes into the same overlay stack it
// observes.
type Tracker struct {
	mu     sync.Mutex
	tier   kvstore.Tier
	reads  map[string]kvstore.StateKey
	writes map[string]kvstore.StateKey
}

// New wraps tier with read/write-set recording.
func New(tier kvstore.Tier) *Tracker {
	return &Tracker{
		tier:   tier,
		reads:  make(map[string]kvstore.StateKey),
		writes: make(map[string]kvstore.StateKey),
	}
}

func (t *Tracker) putRead(key kvstore.StateKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads[key.Encode()] = key
}

func (t *Tracker) putWrite(key kvstore.StateKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes[key.Encode()] = key
}

// ReadOne forwards to the underlying tier and records a read access.
func (t *Tracker) ReadOne(ctx context.Context, key kvstore.StateKey) (*kvstore.Entry, error) {
	t.putRead(key)
	return t.tier.ReadOne(ctx, key)
}

func (t *Tracker) ReadSome(ctx context.Context, keys []kvstore.StateKey) ([]*kvstore.Entry, error) {
	for _, k := range keys {
		t.putRead(k)
	}
	return t.tier.ReadSome(ctx, keys)
}

func (t *Tracker) ExistsOne(ctx context.Context, key kvstore.StateKey) (bool, error) {
	t.putRead(key)
	return t.tier.ExistsOne(ctx, key)
}

// ReadFront bypasses read-set recording entirely, for the scheduler to
// speculatively peek at state it does not intend to conflict on (e.g.
// warming an overlay). It mirrors the C++ READ_FRONT_TYPE overloads.
func (t *Tracker) ReadFront(ctx context.Context, key kvstore.StateKey) (*kvstore.Entry, error) {
	return t.tier.ReadOne(ctx, key)
}

func (t *Tracker) WriteOne(ctx context.Context, key kvstore.StateKey, value []byte) error {
	t.putWrite(key)
	return t.tier.WriteOne(ctx, key, value)
}

func (t *Tracker) WriteSome(ctx context.Context, keys []kvstore.StateKey, values [][]byte) error {
	if len(keys) != len(values) {
		kvstore.Violate("Tracker.WriteSome", "len(keys) != len(values)")
	}
	for _, k := range keys {
		t.putWrite(k)
	}
	return t.tier.WriteSome(ctx, keys, values)
}

func (t *Tracker) RemoveSome(ctx context.Context, keys []kvstore.StateKey) error {
	for _, k := range keys {
		t.putWrite(k)
	}
	return t.tier.RemoveSome(ctx, keys)
}

func (t *Tracker) Merge(ctx context.Context, from kvstore.Ranger) error {
	return t.tier.Merge(ctx, from)
}

// Flags returns the OR-merged {read, write} flag recorded for key.
func (t *Tracker) Flags(key kvstore.StateKey) Flag {
	t.mu.Lock()
	defer t.mu.Unlock()
	enc := key.Encode()
	_, r := t.reads[enc]
	_, w := t.writes[enc]
	return Flag{Read: r, Write: w}
}

// WriteSet returns the set of keys this tracker recorded as written.
func (t *Tracker) WriteSet() []kvstore.StateKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]kvstore.StateKey, 0, len(t.writes))
	for _, k := range t.writes {
		out = append(out, k)
	}
	return out
}

// HasRAWConflict reports whether t (the later transaction in serial
// order) read a key that earlier wrote — a read-after-write conflict.
// Write-after-write and write-after-read never conflict by themselves;
// serial commit order resolves those. Empty read or write sets
// short-circuit immediately, mirroring ReadWriteSetStorage.h's early
// RANGES::empty(...) check.
func (t *Tracker) HasRAWConflict(earlier *Tracker) bool {
	t.mu.Lock()
	reads := t.reads
	t.mu.Unlock()
	earlier.mu.Lock()
	writes := earlier.writes
	earlier.mu.Unlock()

	if len(reads) == 0 || len(writes) == 0 {
		return false
	}
	for enc := range reads {
		if _, ok := writes[enc]; ok {
			return true
		}
	}
	return false
}

// MergeWriteSet OR-merges from's write-set into t's, used by the
// parallel scheduler to grow the running merged tracker M as each
// transaction commits.
func (t *Tracker) MergeWriteSet(from *Tracker) {
	from.mu.Lock()
	snapshot := make([]kvstore.StateKey, 0, len(from.writes))
	for _, k := range from.writes {
		snapshot = append(snapshot, k)
	}
	from.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range snapshot {
		t.writes[k.Encode()] = k
	}
}
