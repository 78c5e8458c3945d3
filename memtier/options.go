package memtier

import "github.com/ledgerkit/txcore/kvstore"

// config collects the attributes the source models as a bitmask
// (ORDERED, CONCURRENT, LOGICAL_DELETION, MRU); Go expresses the kind
// selection as functional options over New rather than a flag enum.
// Logical deletion is not a separate option: Ordered and Concurrent
// always keep tombstones, and MRU never does.
type config struct {
	concurrent       bool
	shardCount       int
	mru              bool
	capacityPerShard int
}

// Option configures New.
type Option func(*config)

// WithConcurrency selects the sharded Concurrent implementation with
// shardCount shards. Without it, New returns an Ordered tier.
func WithConcurrency(shardCount int) Option {
	return func(c *config) {
		c.concurrent = true
		c.shardCount = shardCount
	}
}

// WithMRU selects the bounded MRU implementation, overriding any
// WithConcurrency choice of kind (MRU is itself sharded internally);
// shardCount still controls its internal shard count.
func WithMRU(shardCount, capacityPerShard int) Option {
	return func(c *config) {
		c.mru = true
		c.shardCount = shardCount
		c.capacityPerShard = capacityPerShard
	}
}

// approxEntryBytes is the assumed average size of one stored entry,
// used only to turn a byte budget into a shard capacity for WithMRU;
// it is a rough sizing knob, not a tracked invariant.
const approxEntryBytes = 256

// CapacityFromBytes converts a total byte budget into a per-shard
// entry capacity suitable for WithMRU, spreading the budget evenly
// across shardCount shards. Always returns at least 1.
func CapacityFromBytes(totalBytes int64, shardCount int) int {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}
	if totalBytes <= 0 {
		return 1
	}
	cap := int(totalBytes / int64(shardCount) / approxEntryBytes)
	if cap < 1 {
		cap = 1
	}
	return cap
}

// New constructs a storage tier from the given options: MRU takes
// precedence over Concurrent, and the zero-option default is an
// Ordered tier. The returned kvstore.Tier additionally implements
// kvstore.Ranger for the Ordered and Concurrent kinds; MRU does not.
func New(opts ...Option) (kvstore.Tier, error) {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	switch {
	case c.mru:
		return NewMRU(c.shardCount, c.capacityPerShard)
	case c.concurrent:
		return NewConcurrent(c.shardCount), nil
	default:
		return NewOrdered(), nil
	}
}
