package memtier

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/ledgerkit/txcore/kvstore"
)

const defaultShardCount = 16

type shard struct {
	mu sync.RWMutex
	m  map[string]kvstore.RangeEntry
}

// Concurrent is the cache-tier implementation: a fixed number of
// independently-locked shards so that writers never contend on keys
// that hash to different shards. A reader blocks writers only to keys
// in the same shard as the key it reads.
type Concurrent struct {
	shards []*shard
}

// NewConcurrent creates a Concurrent tier with the given shard count;
// a count below 1 selects defaultShardCount.
func NewConcurrent(shardCount int) *Concurrent {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}
	c := &Concurrent{shards: make([]*shard, shardCount)}
	for i := range c.shards {
		c.shards[i] = &shard{m: make(map[string]kvstore.RangeEntry)}
	}
	return c
}

func (c *Concurrent) shardFor(key kvstore.StateKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.Table))
	_, _ = h.Write(key.Key)
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

func (c *Concurrent) ReadOne(_ context.Context, key kvstore.StateKey) (*kvstore.Entry, error) {
	sh := c.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	re, ok := sh.m[key.Encode()]
	if !ok {
		return nil, nil
	}
	e := re.Entry
	return &e, nil
}

func (c *Concurrent) ReadSome(ctx context.Context, keys []kvstore.StateKey) ([]*kvstore.Entry, error) {
	out := make([]*kvstore.Entry, len(keys))
	for i, k := range keys {
		e, err := c.ReadOne(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (c *Concurrent) ExistsOne(ctx context.Context, key kvstore.StateKey) (bool, error) {
	e, err := c.ReadOne(ctx, key)
	if err != nil {
		return false, err
	}
	return e != nil && !e.Deleted(), nil
}

func (c *Concurrent) WriteOne(_ context.Context, key kvstore.StateKey, value []byte) error {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.m[key.Encode()] = kvstore.RangeEntry{Key: key, Entry: kvstore.Entry{Value: value, Status: kvstore.StatusNormal}}
	return nil
}

func (c *Concurrent) WriteSome(ctx context.Context, keys []kvstore.StateKey, values [][]byte) error {
	if len(keys) != len(values) {
		kvstore.Violate("Concurrent.WriteSome", "len(keys) != len(values)")
	}
	for i, k := range keys {
		if err := c.WriteOne(ctx, k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Concurrent) RemoveSome(_ context.Context, keys []kvstore.StateKey) error {
	for _, k := range keys {
		sh := c.shardFor(k)
		sh.mu.Lock()
		sh.m[k.Encode()] = kvstore.RangeEntry{Key: k, Entry: kvstore.Tombstone()}
		sh.mu.Unlock()
	}
	return nil
}

// Range merges each shard's matching span in key order. Shards are
// snapshotted independently, so Range observes a point-in-time view
// per shard rather than one atomic snapshot of the whole tier.
func (c *Concurrent) Range(_ context.Context, from, to *kvstore.StateKey) (kvstore.RangeIterator, error) {
	var out []kvstore.RangeEntry
	for _, sh := range c.shards {
		sh.mu.RLock()
		for _, re := range sh.m {
			if from != nil && kvstore.Less(re.Key, *from) {
				continue
			}
			if to != nil && !kvstore.Less(re.Key, *to) {
				continue
			}
			out = append(out, re)
		}
		sh.mu.RUnlock()
	}
	sortEntries(out)
	return &sliceIterator{entries: out, pos: -1}, nil
}

func (c *Concurrent) Merge(ctx context.Context, from kvstore.Ranger) error {
	return kvstore.MergeInto(ctx, c, from)
}
