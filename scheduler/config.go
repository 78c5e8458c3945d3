// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package scheduler implements the serial and parallel execution
// engines: Serial runs a block's transactions sequentially against one
// overlay; Parallel speculatively executes chunks concurrently and
// reconciles them with read/write-set conflict detection, producing
// results bit-identical to Serial regardless of chunk size or worker
// count. Grounded on runtime.Runtime.ExecuteTransaction's
// checkpoint/execute/revert loop,
// transaction-scheduler/tests/testSchedulerParallel.cpp's
// SchedulerParallelImpl, and the optimistic-concurrency design of
// bnb-chain-op-geth's UncommittedDB/ParallelStateDB.
package scheduler

import "time"

// Config carries the settings needed to build and run a block's
// execution pipeline: which engine to run, how to bound its
// concurrency, and how to size and time out the storage stack NewStack
// builds from it.
type Config struct {
	Parallel            bool
	ChunkSize           int
	MaxTokens           int
	CacheCapacityBytes  int64
	BackendWriteTimeout time.Duration
}
