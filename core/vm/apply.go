package vm

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/parexlabs/parex/core/ssa"
	"github.com/parexlabs/parex/core/state"
	"github.com/parexlabs/parex/core/types"
)

// IntrinsicSteps is the flat per-transaction charge, debited from the sender
// balance and counted against the step limit before any program runs.
const IntrinsicSteps = 21

// ExecutionResult is the outcome of one transaction attempt. Fault is nil on
// success; a non-nil Fault means the attempt committed only its intrinsic
// effects (nonce bump and fee), everything else rolled back.
type ExecutionResult struct {
	Status    uint64
	Output    []byte
	StepsUsed uint64
	Fault     error

	// Path identification, populated only when tracing was requested and a
	// program actually ran.
	Traced   bool
	PathKey  ssa.PathKey
	TraceLog *ssa.Log
}

func (r *ExecutionResult) Failed() bool { return r.Fault != nil }

var intrinsicFee = uint256.NewInt(IntrinsicSteps)

// ApplyTransaction runs one transaction against its tracker. The returned
// error is a fatal ledger access failure only; transaction faults are
// reported in ExecutionResult.Fault and leave the tracker holding exactly the
// intrinsic effects.
//
// A nonce mismatch or an unpayable fee faults before any effect is buffered,
// so such attempts commit nothing at all.
func ApplyTransaction(tracker *state.Tracker, tx *types.Transaction, tracePaths bool) (*ExecutionResult, error) {
	nonce, err := tracker.Nonce(tx.From)
	if err != nil {
		return nil, err
	}
	if nonce != tx.Nonce {
		return fault(ErrNonceMismatch, 0), nil
	}
	if tx.StepLimit < IntrinsicSteps {
		return fault(ErrStepLimitExceeded, 0), nil
	}
	balance, err := tracker.Balance(tx.From)
	if err != nil {
		return nil, err
	}
	if balance.Lt(intrinsicFee) {
		return fault(ErrInsufficientFunds, 0), nil
	}

	tracker.SetNonce(tx.From, nonce+1)
	var remaining uint256.Int
	remaining.Sub(balance, intrinsicFee)
	tracker.SetBalance(tx.From, &remaining)

	// Program effects past this mark are all-or-nothing.
	mark := tracker.Snapshot()

	if tx.Value != nil && !tx.Value.IsZero() {
		if remaining.Lt(tx.Value) {
			return fault(ErrInsufficientFunds, IntrinsicSteps), nil
		}
		var after uint256.Int
		after.Sub(&remaining, tx.Value)
		tracker.SetBalance(tx.From, &after)

		dst, err := tracker.Balance(tx.To)
		if err != nil {
			return nil, err
		}
		var sum uint256.Int
		sum.Add(dst, tx.Value)
		tracker.SetBalance(tx.To, &sum)
	}

	if tx.IsTransfer() {
		return &ExecutionResult{Status: types.ReceiptStatusSuccessful, StepsUsed: IntrinsicSteps}, nil
	}

	program, err := Decode(tx.Data)
	if err != nil {
		tracker.RevertToSnapshot(mark)
		return fault(err, IntrinsicSteps), nil
	}

	in := NewInterpreter(tracker, tx.To, tx.From, tx.StepLimit-IntrinsicSteps, tracePaths)
	output, runErr := in.Run(program)
	steps := IntrinsicSteps + in.StepsUsed()
	if runErr != nil {
		if errors.Is(runErr, state.ErrLedgerAccess) {
			return nil, runErr
		}
		tracker.RevertToSnapshot(mark)
		return fault(runErr, steps), nil
	}

	res := &ExecutionResult{
		Status:    types.ReceiptStatusSuccessful,
		Output:    output,
		StepsUsed: steps,
	}
	if tracePaths {
		res.Traced = true
		res.PathKey = ssa.NewPathKey(program.Digest, in.BranchTrace())
		res.TraceLog = in.TraceLog()
	}
	return res, nil
}

func fault(reason error, steps uint64) *ExecutionResult {
	return &ExecutionResult{Status: types.ReceiptStatusFailed, StepsUsed: steps, Fault: reason}
}
