package exec

import (
	"github.com/parexlabs/parex/core/state"
	"github.com/parexlabs/parex/core/types"
	"github.com/parexlabs/parex/core/vm"
)

// Status tracks a transaction attempt through the wave pipeline.
type Status int

const (
	StatusPending Status = iota
	StatusExecuting
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuting:
		return "executing"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// TxTask is one scheduled attempt of a transaction. Index is the
// transaction's block position and never changes; Incarnation counts
// attempts, starting at zero and bumped on every abort.
type TxTask struct {
	Index       int
	Incarnation int
	Tx          *types.Transaction

	status Status
}

func (t *TxTask) Version() state.Version {
	return state.Version{TxIndex: t.Index, Incarnation: t.Incarnation}
}

// TxResult carries everything a finished attempt produced back to the
// scheduler. Err is set only on a fatal ledger access failure; transaction
// faults travel inside Exec and the derived receipt.
type TxResult struct {
	Task    *TxTask
	Reads   state.VersionedReads
	Writes  state.VersionedWrites
	Exec    *vm.ExecutionResult
	Receipt *types.Receipt
	Err     error
}
