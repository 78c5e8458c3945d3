package memtier

import (
	"context"
	"hash/fnv"

	"github.com/ledgerkit/txcore/cache"
	"github.com/ledgerkit/txcore/kvstore"
	"github.com/ledgerkit/txcore/metrics"
)

var mruHitMiss = metrics.LazyLoadGaugeVec("memtier_mru_cache_hit_miss", []string{"event"})

// MRU is the bounded cache-tier implementation: a per-shard LRU-approx
// eviction list over cache.LRU. Writes move the touched entry to the
// head; once a shard exceeds its capacity the least-recently-used
// entry is evicted outright. MRU cannot retain tombstones: an evicted
// key is simply unknown again and a lookup misses through to whatever
// tier sits below. MRU does not implement kvstore.Ranger.
type MRU struct {
	shards []*cache.LRU
	stats  cache.Stats
}

// NewMRU creates an MRU tier with shardCount shards, each bounded to
// capacityPerShard entries.
func NewMRU(shardCount, capacityPerShard int) (*MRU, error) {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}
	if capacityPerShard < 1 {
		capacityPerShard = 1
	}
	m := &MRU{shards: make([]*cache.LRU, shardCount)}
	for i := range m.shards {
		l, err := cache.NewLRU(capacityPerShard)
		if err != nil {
			return nil, err
		}
		m.shards[i] = l
	}
	return m, nil
}

// reportStats pushes the running hit/miss counters to the hit-miss
// gauge only when Stats reports the hit rate moved, to avoid emitting
// on every single lookup.
func (m *MRU) reportStats() {
	if changed, hit, miss := m.stats.Stats(); changed {
		mruHitMiss().SetWithLabel(hit, map[string]string{"event": "hit"})
		mruHitMiss().SetWithLabel(miss, map[string]string{"event": "miss"})
	}
}

func (m *MRU) shardFor(key kvstore.StateKey) *cache.LRU {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.Table))
	_, _ = h.Write(key.Key)
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *MRU) ReadOne(_ context.Context, key kvstore.StateKey) (*kvstore.Entry, error) {
	v, ok := m.shardFor(key).Get(key.Encode())
	if !ok {
		m.stats.Miss()
		m.reportStats()
		return nil, nil
	}
	m.stats.Hit()
	m.reportStats()
	e := v.(kvstore.Entry)
	return &e, nil
}

func (m *MRU) ReadSome(ctx context.Context, keys []kvstore.StateKey) ([]*kvstore.Entry, error) {
	out := make([]*kvstore.Entry, len(keys))
	for i, k := range keys {
		e, err := m.ReadOne(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (m *MRU) ExistsOne(ctx context.Context, key kvstore.StateKey) (bool, error) {
	e, err := m.ReadOne(ctx, key)
	if err != nil {
		return false, err
	}
	return e != nil && !e.Deleted(), nil
}

func (m *MRU) WriteOne(_ context.Context, key kvstore.StateKey, value []byte) error {
	m.shardFor(key).Add(key.Encode(), kvstore.Entry{Value: value, Status: kvstore.StatusNormal})
	return nil
}

func (m *MRU) WriteSome(ctx context.Context, keys []kvstore.StateKey, values [][]byte) error {
	if len(keys) != len(values) {
		kvstore.Violate("MRU.WriteSome", "len(keys) != len(values)")
	}
	for i, k := range keys {
		if err := m.WriteOne(ctx, k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// RemoveSome erases the key from its shard outright; MRU has no
// logical-deletion mode, so there is no tombstone to leave behind.
func (m *MRU) RemoveSome(_ context.Context, keys []kvstore.StateKey) error {
	for _, k := range keys {
		m.shardFor(k).Remove(k.Encode())
	}
	return nil
}

// Merge writes each entry of from's range into the cache and erases
// each key that arrives as a tombstone, since MRU keeps no tombstones;
// merging here means "warm the cache with what was just folded
// downward," not "replace this tier's contents."
func (m *MRU) Merge(ctx context.Context, from kvstore.Ranger) error {
	it, err := from.Range(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer it.Release()
	for it.Next() {
		re := it.Entry()
		if re.Entry.Deleted() {
			if err := m.RemoveSome(ctx, []kvstore.StateKey{re.Key}); err != nil {
				return err
			}
			continue
		}
		if err := m.WriteOne(ctx, re.Key, re.Entry.Value); err != nil {
			return err
		}
	}
	return it.Error()
}
