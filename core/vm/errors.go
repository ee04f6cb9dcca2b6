package vm

import "errors"

// Fault conditions of a transaction's own execution. They terminate the
// transaction, never the block: the scheduler records them in the receipt and
// the transaction still occupies its commit slot.
var (
	ErrInvalidCode       = errors.New("invalid code")
	ErrInvalidOpcode     = errors.New("invalid opcode")
	ErrStackUnderflow    = errors.New("stack underflow")
	ErrInvalidJump       = errors.New("invalid jump destination")
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExecutionReverted = errors.New("execution reverted")
	ErrNonceMismatch     = errors.New("nonce mismatch")
)
