// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	writeOpt = opt.WriteOptions{}
	readOpt  = opt.ReadOptions{}
	scanOpt  = opt.ReadOptions{DontFillCache: true}
)

// levelStore is a Store backed by goleveldb, modeling the "opaque
// ordered on-disk KV backend" that the persistent storage tier wraps.
type levelStore struct {
	db        *leveldb.DB
	batchPool *sync.Pool
}

// OpenLevelDB opens (or creates) a LevelDB-backed Store at path.
func OpenLevelDB(path string, cacheSizeMB, openFilesCacheCapacity int) (Store, error) {
	if cacheSizeMB < 16 {
		cacheSizeMB = 16
	}
	if openFilesCacheCapacity < 64 {
		openFilesCacheCapacity = 64
	}
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: openFilesCacheCapacity,
		BlockCacheCapacity:     cacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            cacheSizeMB / 4 * opt.MiB,
	})
	if err != nil {
		return nil, err
	}
	return newLevelStore(db), nil
}

// NewMemLevelDB creates an in-memory LevelDB-backed Store, for tests
// and other transient, non-persistent use.
func NewMemLevelDB() Store {
	db, _ := leveldb.Open(storage.NewMemStorage(), nil)
	return newLevelStore(db)
}

func newLevelStore(db *leveldb.DB) *levelStore {
	return &levelStore{
		db: db,
		batchPool: &sync.Pool{
			New: func() interface{} { return &leveldb.Batch{} },
		},
	}
}

func (ldb *levelStore) Close() error { return ldb.db.Close() }

func (ldb *levelStore) IsNotFound(err error) bool { return err == leveldb.ErrNotFound }

func (ldb *levelStore) Get(key []byte) ([]byte, error) {
	val, err := ldb.db.Get(key, &readOpt)
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (ldb *levelStore) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, &readOpt)
}

func (ldb *levelStore) Put(key, val []byte) error {
	return ldb.db.Put(key, val, &writeOpt)
}

func (ldb *levelStore) Delete(key []byte) error {
	return ldb.db.Delete(key, &writeOpt)
}

func (ldb *levelStore) Snapshot() Snapshot {
	s, err := ldb.db.GetSnapshot()
	return &struct {
		GetFunc
		HasFunc
		IsNotFoundFunc
		ReleaseFunc
	}{
		func(key []byte) ([]byte, error) {
			if err != nil {
				return nil, err
			}
			return s.Get(key, &readOpt)
		},
		func(key []byte) (bool, error) {
			if err != nil {
				return false, err
			}
			return s.Has(key, &readOpt)
		},
		ldb.IsNotFound,
		func() {
			if s != nil {
				s.Release()
			}
		},
	}
}

// idealBatchSize is the size, in estimated bytes, at which an
// auto-flushing Bulk writer commits its pending batch.
const idealBatchSize = 128 * 1024

func (ldb *levelStore) Bulk() Bulk {
	var batch *leveldb.Batch
	getBatch := func() *leveldb.Batch {
		if batch == nil {
			batch = ldb.batchPool.Get().(*leveldb.Batch)
			batch.Reset()
		}
		return batch
	}
	flush := func(minSize int) error {
		if batch != nil && len(batch.Dump()) >= minSize {
			if batch.Len() > 0 {
				if err := ldb.db.Write(batch, &writeOpt); err != nil {
					return err
				}
			}
			ldb.batchPool.Put(batch)
			batch = nil
		}
		return nil
	}
	var autoFlush bool
	return &struct {
		PutFunc
		DeleteFunc
		EnableAutoFlushFunc
		WriteFunc
	}{
		func(key, val []byte) error {
			getBatch().Put(key, val)
			if autoFlush {
				return flush(idealBatchSize)
			}
			return nil
		},
		func(key []byte) error {
			getBatch().Delete(key)
			if autoFlush {
				return flush(idealBatchSize)
			}
			return nil
		},
		func() { autoFlush = true },
		func() error { return flush(0) },
	}
}

func (ldb *levelStore) Iterate(r Range) Iterator {
	return ldb.db.NewIterator(&util.Range{Start: r.Start, Limit: r.Limit}, &scanOpt)
}
