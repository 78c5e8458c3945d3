// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package backendstore implements the persistent storage tier: a
// kvstore.Tier over an opaque ordered on-disk KV backend, backed by
// the LevelDB engine in kv.Store. Multi-key reads fan out over a
// bounded worker pool, and writes/merges encode and size-estimate
// their entries over fixed-size chunks run concurrently before
// handing the engine one atomic batch, the way a RocksDB-backed
// storage layer chunks its write path ahead of a single batch commit.
package backendstore

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerkit/txcore/kv"
	"github.com/ledgerkit/txcore/kvstore"
	"github.com/ledgerkit/txcore/metric"
	"github.com/ledgerkit/txcore/metrics"
)

var batchBytesBuckets = []int64{0, 256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304}

var batchBytes = metrics.LazyLoadHistogram("backend_batch_bytes", batchBytesBuckets)

// BackendError wraps a failure reported by the underlying engine. It is
// fatal for the block commit in flight; in-memory state above the
// persistent tier remains consistent and the block may be retried.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return "backendstore: " + e.Op + ": " + e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }

// ErrWriteTimeout is wrapped in a BackendError when a write exceeds
// the Store's configured WithWriteTimeout. It is retryable: the caller
// never observed success, and replaying the same batch is idempotent,
// though the timed-out batch may still land after the error returns.
var ErrWriteTimeout = errors.New("backendstore: write exceeded configured timeout")

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: errors.WithStack(err)}
}

// Engine is the persistent backend contract: ordered byte-key KV with
// a point get, an atomic write batch, and range iteration. It has no
// multi-get of its own; Store.ReadSome fans point Gets out instead.
// Store satisfies kvstore.Tier by adapting StateKeys onto this
// byte-key contract.
type Engine interface {
	Get(key []byte) ([]byte, bool, error)
	WriteBatch(ops []BatchOp, sizeHint int) error
	Iterate(lower, upper []byte) (kv.Iterator, error)
}

// BatchOp is one write or delete queued for an atomic batch.
type BatchOp struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// kvEngine adapts a kv.Store (LevelDB-backed) to Engine. kv.Store has
// no native multi-get, so Store.ReadSome fans single-key Gets out
// itself rather than relying on the engine for it.
type kvEngine struct {
	store kv.Store
}

// NewKVEngine adapts store to the Engine contract.
func NewKVEngine(store kv.Store) Engine {
	return &kvEngine{store: store}
}

func (e *kvEngine) Get(key []byte) ([]byte, bool, error) {
	val, err := e.store.Get(key)
	if err != nil {
		if e.store.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

func (e *kvEngine) WriteBatch(ops []BatchOp, _ int) error {
	bulk := e.store.Bulk()
	for _, op := range ops {
		if op.Delete {
			if err := bulk.Delete(op.Key); err != nil {
				return err
			}
			continue
		}
		if err := bulk.Put(op.Key, op.Value); err != nil {
			return err
		}
	}
	return bulk.Write()
}

func (e *kvEngine) Iterate(lower, upper []byte) (kv.Iterator, error) {
	return e.store.Iterate(kv.Range{Start: lower, Limit: upper}), nil
}

// Store is the persistent tier. It implements kvstore.Tier and
// kvstore.Ranger.
type Store struct {
	engine       Engine
	fanoutLimit  int
	writeTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithFanoutLimit bounds the number of concurrent Get calls ReadSome
// issues against the engine. The default is 32.
func WithFanoutLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.fanoutLimit = n
		}
	}
}

// WithWriteTimeout bounds how long a single WriteBatch call (from
// WriteSome, RemoveSome, or Merge) may run. Exceeding it fails that
// call with ErrWriteTimeout wrapped in a BackendError; the caller may
// retry. A non-positive duration disables the bound (the default).
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.writeTimeout = d
	}
}

// NewStore wraps engine as the persistent tier.
func NewStore(engine Engine, opts ...Option) *Store {
	s := &Store{engine: engine, fanoutLimit: 32}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func encodeKey(k kvstore.StateKey) []byte {
	return []byte(k.Encode())
}

func (s *Store) ReadOne(_ context.Context, key kvstore.StateKey) (*kvstore.Entry, error) {
	val, found, err := s.engine.Get(encodeKey(key))
	if err != nil {
		return nil, wrap("ReadOne", err)
	}
	if !found {
		return nil, nil
	}
	return &kvstore.Entry{Value: val, Status: kvstore.StatusNormal}, nil
}

// ReadSome performs the tier's "single multi_get" by fanning out one
// Get per key over a bounded worker pool (kv.Store exposes no native
// multi-get; see DESIGN.md). Results preserve input order. A "not
// found" maps to a nil entry; any other engine error is a fatal
// BackendError and aborts the whole call.
func (s *Store) ReadSome(ctx context.Context, keys []kvstore.StateKey) ([]*kvstore.Entry, error) {
	out := make([]*kvstore.Entry, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanoutLimit)

	var mu sync.Mutex
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			val, found, err := s.engine.Get(encodeKey(k))
			if err != nil {
				return wrap("ReadSome", err)
			}
			if !found {
				return nil
			}
			mu.Lock()
			out[i] = &kvstore.Entry{Value: val, Status: kvstore.StatusNormal}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ExistsOne(ctx context.Context, key kvstore.StateKey) (bool, error) {
	e, err := s.ReadOne(ctx, key)
	if err != nil {
		return false, err
	}
	return e != nil && !e.Deleted(), nil
}

func (s *Store) WriteOne(ctx context.Context, key kvstore.StateKey, value []byte) error {
	return s.WriteSome(ctx, []kvstore.StateKey{key}, [][]byte{value})
}

// writeChunkSize mirrors RocksDBStorage2's ROCKSDB_WRITE_CHUNK_SIZE:
// keys/values are encoded and size-estimated in fixed-size chunks run
// concurrently, then handed to the engine as one atomic batch.
const writeChunkSize = 64

func (s *Store) WriteSome(ctx context.Context, keys []kvstore.StateKey, values [][]byte) error {
	if len(keys) != len(values) {
		kvstore.Violate("backendstore.Store.WriteSome", "len(keys) != len(values)")
	}
	ops := make([]BatchOp, len(keys))
	sizeHint, err := encodeChunked(ctx, s.fanoutLimit, len(keys), func(i int) (int, error) {
		enc := encodeKey(keys[i])
		ops[i] = BatchOp{Key: enc, Value: values[i]}
		return estimateEntrySize(enc, values[i]), nil
	})
	if err != nil {
		return err
	}
	return s.writeBatch(ctx, ops, sizeHint, "WriteSome")
}

// encodeChunked partitions [0, n) into writeChunkSize-sized spans and
// runs encode over each span concurrently, bounded by fanoutLimit,
// summing the per-item size it returns. encode must only touch index
// i on its own goroutine (callers pre-size their output slice so each
// span writes disjoint indices).
func encodeChunked(ctx context.Context, fanoutLimit, n int, encode func(i int) (int, error)) (int, error) {
	var total int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutLimit)
	for start := 0; start < n; start += writeChunkSize {
		end := start + writeChunkSize
		if end > n {
			end = n
		}
		start, end := start, end
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			var local int64
			for i := start; i < end; i++ {
				sz, err := encode(i)
				if err != nil {
					return err
				}
				local += int64(sz)
			}
			atomic.AddInt64(&total, local)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(total), nil
}

// RemoveSome writes backend tombstones (plain deletes); the persistent
// tier has no logical-deletion mode of its own.
func (s *Store) RemoveSome(ctx context.Context, keys []kvstore.StateKey) error {
	ops := make([]BatchOp, len(keys))
	sizeHint := 0
	for i, k := range keys {
		enc := encodeKey(k)
		ops[i] = BatchOp{Key: enc, Delete: true}
		sizeHint += estimateEntrySize(enc, nil)
	}
	return s.writeBatch(ctx, ops, sizeHint, "RemoveSome")
}

// writeBatch hands ops to the engine as one atomic write. When
// writeTimeout is set, the engine call races a timer on a background
// goroutine; on timeout writeBatch returns ErrWriteTimeout without
// waiting for the engine call to finish (the batch may still land,
// but the caller is free to retry since it never observed success).
func (s *Store) writeBatch(ctx context.Context, ops []BatchOp, sizeHint int, op string) error {
	if len(ops) == 0 {
		return nil
	}
	if s.writeTimeout <= 0 {
		if err := s.engine.WriteBatch(ops, sizeHint); err != nil {
			return wrap(op, err)
		}
		batchBytes().Observe(metric.StorageSize(sizeHint).Int64())
		return nil
	}

	timer := time.NewTimer(s.writeTimeout)
	defer timer.Stop()
	done := make(chan error, 1)
	go func() { done <- s.engine.WriteBatch(ops, sizeHint) }()

	select {
	case <-timer.C:
		return wrap(op, ErrWriteTimeout)
	case <-ctx.Done():
		return wrap(op, ctx.Err())
	case err := <-done:
		if err != nil {
			return wrap(op, err)
		}
		batchBytes().Observe(metric.StorageSize(sizeHint).Int64())
		return nil
	}
}

// Merge drains from's range into one atomic batch. Range iteration
// itself is sequential, but once the entries are collected, encoding
// and size estimation run over writeChunkSize-sized spans concurrently
// the same way WriteSome's do, before the single atomic write.
func (s *Store) Merge(ctx context.Context, from kvstore.Ranger) error {
	it, err := from.Range(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer it.Release()

	var entries []kvstore.RangeEntry
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	if err := it.Error(); err != nil {
		return err
	}

	ops := make([]BatchOp, len(entries))
	sizeHint, err := encodeChunked(ctx, s.fanoutLimit, len(entries), func(i int) (int, error) {
		re := entries[i]
		enc := encodeKey(re.Key)
		if re.Entry.Deleted() {
			ops[i] = BatchOp{Key: enc, Delete: true}
			return estimateEntrySize(enc, nil), nil
		}
		ops[i] = BatchOp{Key: enc, Value: re.Entry.Value}
		return estimateEntrySize(enc, re.Entry.Value), nil
	})
	if err != nil {
		return err
	}
	return s.writeBatch(ctx, ops, sizeHint, "Merge")
}

// Range iterates the backend directly; the returned iterator decodes
// each raw key back into a StateKey with the scheme encodeKey uses
// (table + NUL + key), which kv.Iterate's range semantics bound
// naturally since NUL sorts before every other byte within a table's
// key space.
func (s *Store) Range(_ context.Context, from, to *kvstore.StateKey) (kvstore.RangeIterator, error) {
	var lower, upper []byte
	if from != nil {
		lower = encodeKey(*from)
	}
	if to != nil {
		upper = encodeKey(*to)
	}
	it, err := s.engine.Iterate(lower, upper)
	if err != nil {
		return nil, wrap("Range", err)
	}
	return &engineIterator{it: it}, nil
}

type engineIterator struct {
	it kv.Iterator
}

func (e *engineIterator) Next() bool { return e.it.Next() }
func (e *engineIterator) Entry() kvstore.RangeEntry {
	raw := e.it.Key()
	table, key := decodeKey(raw)
	return kvstore.RangeEntry{
		Key:   kvstore.StateKey{Table: table, Key: key},
		Entry: kvstore.Entry{Value: e.it.Value(), Status: kvstore.StatusNormal},
	}
}
func (e *engineIterator) Error() error { return e.it.Error() }
func (e *engineIterator) Release()     { e.it.Release() }

func decodeKey(raw []byte) (table string, key []byte) {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i]), raw[i+1:]
		}
	}
	return string(raw), nil
}

// estimateEntrySize mirrors RocksDBStorage2's batch-size accounting:
// one tag byte, a varint-encoded key length, the key itself, a
// varint-encoded value length, and the value itself.
func estimateEntrySize(key, value []byte) int {
	return 1 + uvarintLen(uint64(len(key))) + len(key) + uvarintLen(uint64(len(value))) + len(value)
}

func uvarintLen(v uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], v)
}
