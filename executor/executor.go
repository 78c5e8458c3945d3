// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package executor defines the boundary between the scheduler and the
// external VM/transaction executor. The core never decides what a
// transaction computes — only how it is invoked and how its revert is
// observed — so Transaction and Receipt stay deliberately opaque.
// Grounded on runtime.Runtime.ExecuteTransaction's call shape and the
// MockExecutor/MockConflictExecutor test fixtures of
// transaction-scheduler/tests/testSchedulerParallel.cpp.
package executor

import (
	"context"

	"github.com/ledgerkit/txcore/kvstore"
)

// BlockHeader carries opaque, immutable block metadata; the core
// treats it as a pass-through value and never interprets it. The
// concrete chain type, consensus and wire format are out of scope.
type BlockHeader struct {
	Number  uint32
	Version uint32
	ID      [32]byte
}

// Transaction is an opaque unit of work; the VM/bytecode format that
// gives it meaning is out of scope for the core.
type Transaction struct {
	ID      [32]byte
	Payload []byte
}

// LedgerConfig is opaque ledger-level configuration (fork rules, fee
// parameters, etc.) passed through to Execute untouched; gas
// accounting and contract ABI semantics are non-goals of the core.
type LedgerConfig struct {
	Params map[string][]byte
}

// Receipt is the result of one Execute call. Status == 0 is success;
// any other value marks a transaction-level revert. Output is
// executor-defined.
type Receipt struct {
	Status uint32
	Output []byte
}

// Reverted reports whether the receipt recorded a non-zero status.
func (r Receipt) Reverted() bool { return r.Status != 0 }

// RevertError signals a transaction-level revert. The scheduler
// recovers it fully: it rolls back the transaction's journal savepoint
// and records a non-zero-status receipt instead of propagating the
// error to the caller of Serial.Run/Parallel.Run.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return "executor: transaction reverted: " + e.Reason }

// NewRevertError constructs a RevertError with the given reason.
func NewRevertError(reason string) *RevertError { return &RevertError{Reason: reason} }

// Executor is the single operation the core invokes against the
// external VM. It must be pure in the sense that any mutation happens
// exclusively through view; nested re-entrant calls into Execute are
// the executor's own responsibility for contract-level reverts, while
// the scheduler owns transaction-level reverts (signaled by returning
// a *RevertError).
type Executor interface {
	Execute(ctx context.Context, view kvstore.Tier, header BlockHeader, tx Transaction, contextID int, cfg LedgerConfig) (Receipt, error)
}

// Op is the function shape an Executor reduces to; ScriptedExecutor
// adapts one directly, mirroring the closure-injected MockExecutor
// fixture used by the source's scheduler tests.
type Op func(ctx context.Context, view kvstore.Tier, header BlockHeader, tx Transaction, contextID int, cfg LedgerConfig) (Receipt, error)

// ScriptedExecutor is an Executor whose behavior is supplied as a
// plain function, for tests and for simple embedders that do not need
// a full VM.
type ScriptedExecutor struct {
	Op Op
}

func (s *ScriptedExecutor) Execute(ctx context.Context, view kvstore.Tier, header BlockHeader, tx Transaction, contextID int, cfg LedgerConfig) (Receipt, error) {
	return s.Op(ctx, view, header, tx, contextID, cfg)
}
