// Copyright (c) 2021 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import "sync"

// Bucket provides a logical namespace over a shared kv store, by
// prefixing every key with the bucket name.
type Bucket string

var bufPool = sync.Pool{
	New: func() interface{} { return &buf{} },
}

type buf struct {
	k []byte
}

// NewStore creates a bucketed store from the source store.
func (b Bucket) NewStore(src Store) Store {
	return &bucketStore{string(b), src}
}

type bucketStore struct {
	prefix string
	src    Store
}

func (bs *bucketStore) key(key []byte) []byte {
	buf := bufPool.Get().(*buf)
	defer bufPool.Put(buf)
	buf.k = append(append(buf.k[:0], bs.prefix...), key...)
	// copy out, since buf is pooled and reused
	out := make([]byte, len(buf.k))
	copy(out, buf.k)
	return out
}

func (bs *bucketStore) Get(key []byte) ([]byte, error) { return bs.src.Get(bs.key(key)) }
func (bs *bucketStore) Has(key []byte) (bool, error)   { return bs.src.Has(bs.key(key)) }
func (bs *bucketStore) IsNotFound(err error) bool      { return bs.src.IsNotFound(err) }
func (bs *bucketStore) Put(key, val []byte) error      { return bs.src.Put(bs.key(key), val) }
func (bs *bucketStore) Delete(key []byte) error        { return bs.src.Delete(bs.key(key)) }

func (bs *bucketStore) Snapshot() Snapshot {
	snap := bs.src.Snapshot()
	return &struct {
		GetFunc
		HasFunc
		IsNotFoundFunc
		ReleaseFunc
	}{
		func(key []byte) ([]byte, error) { return snap.Get(bs.key(key)) },
		func(key []byte) (bool, error) { return snap.Has(bs.key(key)) },
		snap.IsNotFound,
		snap.Release,
	}
}

func (bs *bucketStore) Bulk() Bulk {
	bulk := bs.src.Bulk()
	return &struct {
		PutFunc
		DeleteFunc
		EnableAutoFlushFunc
		WriteFunc
	}{
		func(key, val []byte) error { return bulk.Put(bs.key(key), val) },
		func(key []byte) error { return bulk.Delete(bs.key(key)) },
		bulk.EnableAutoFlush,
		bulk.Write,
	}
}

func (bs *bucketStore) Iterate(r Range) Iterator {
	lo := bs.key(r.Start)
	var hi []byte
	if r.Limit != nil {
		hi = bs.key(r.Limit)
	} else {
		// upper-bound the prefix itself, so iteration stays within the bucket.
		hi = append([]byte(nil), bs.prefix...)
		hi = incBytes(hi)
	}
	return bs.src.Iterate(Range{Start: lo, Limit: hi})
}

// incBytes returns the smallest byte string greater than every string
// that has b as a prefix, or nil if b is all 0xff (unbounded).
func incBytes(b []byte) []byte {
	out := append([]byte(nil), b...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}
