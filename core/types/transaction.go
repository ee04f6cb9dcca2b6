package types

import (
	"github.com/holiman/uint256"

	"github.com/parexlabs/parex/common"
	"github.com/parexlabs/parex/crypto"
)

// Transaction is one ordered entry of a block payload. The instruction
// semantics of Data are owned by core/vm; this package only carries the
// fields the scheduler and the ledger need.
type Transaction struct {
	From  common.Address
	To    common.Address
	Nonce uint64
	Value *uint256.Int
	// StepLimit bounds the transaction's own execution, standing in for gas.
	// The scheduler imposes no timeout of its own.
	StepLimit uint64
	// Data is the encoded program executed against To's storage.
	Data []byte

	codeDigest *common.Hash
}

// CodeDigest returns the Keccak256 digest of Data, memoized after the first
// call. An empty Data yields the digest of the empty string.
func (tx *Transaction) CodeDigest() common.Hash {
	if tx.codeDigest == nil {
		h := crypto.Keccak256Hash(tx.Data)
		tx.codeDigest = &h
	}
	return *tx.codeDigest
}

// IsTransfer reports whether the transaction carries no program at all.
func (tx *Transaction) IsTransfer() bool {
	return len(tx.Data) == 0
}
