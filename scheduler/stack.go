package scheduler

import (
	"github.com/ledgerkit/txcore/backendstore"
	"github.com/ledgerkit/txcore/layerstack"
	"github.com/ledgerkit/txcore/memtier"
)

// cacheShardCount is the default shard count for the MRU cache tier
// NewStack builds; Config has no separate knob for it since
// CacheCapacityBytes already controls the tier's total footprint.
const cacheShardCount = 16

// NewStack builds the multi-layer storage stack a Serial or Parallel
// engine runs against, sizing the cache tier from cfg.CacheCapacityBytes
// and bounding the persistent tier's writes by cfg.BackendWriteTimeout.
func NewStack(cfg Config, engine backendstore.Engine) (*layerstack.Stack, error) {
	cache, err := memtier.New(memtier.WithMRU(cacheShardCount, memtier.CapacityFromBytes(cfg.CacheCapacityBytes, cacheShardCount)))
	if err != nil {
		return nil, err
	}
	backend := backendstore.NewStore(engine, backendstore.WithWriteTimeout(cfg.BackendWriteTimeout))
	return layerstack.New(cache, backend), nil
}
