package types

const (
	// ReceiptStatusFailed is the status code of a transaction whose own
	// execution faulted (revert, step limit, invalid instruction).
	ReceiptStatusFailed = uint64(0)

	// ReceiptStatusSuccessful is the status code of a transaction that
	// completed normally.
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt is the per-transaction outcome of block execution. A failed
// transaction still occupies its slot and produces a receipt; the only
// condition without receipts is a whole-block ledger access failure.
type Receipt struct {
	TransactionIndex uint
	Status           uint64
	StepsUsed        uint64
	CumulativeSteps  uint64
	Output           []byte
	// FaultReason carries the transaction's own execution fault, if any.
	// It is informational; the fault is not a scheduler error.
	FaultReason string
}

// Failed reports whether the transaction's own execution faulted.
func (r *Receipt) Failed() bool {
	return r.Status == ReceiptStatusFailed
}

type Receipts []*Receipt
