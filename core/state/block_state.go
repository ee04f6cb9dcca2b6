package state

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/google/btree"

	"github.com/parexlabs/parex/common"
	"github.com/parexlabs/parex/crypto"
)

// ErrLedgerAccess marks a failing state provider. It is the one condition
// fatal to the whole block; everything else the engine absorbs by retry or
// degradation.
var ErrLedgerAccess = errors.New("ledger access failure")

// Reader is the abstract state provider behind block execution. A failing
// reader is the one fatal condition of the engine: no consistent block result
// can be produced without the base state.
type Reader interface {
	// ReadLocation returns the canonical encoding of the value at key, or
	// nil if the location was never written. Implementations must be safe
	// for concurrent use.
	ReadLocation(key VersionKey) ([]byte, error)
}

// StateItem is one committed in-block change.
type StateItem struct {
	key []byte
	val []byte
}

func stateItemLess(i, j StateItem) bool {
	return bytes.Compare(i.key, j.key) < 0
}

// BlockState accumulates the committed effects of a block on top of a base
// Reader. All workers observe it; speculative writes never touch it. Commits
// are applied by the scheduler's validation pass only, in index order.
type BlockState struct {
	lock         sync.RWMutex
	base         Reader
	changes      *btree.BTreeG[StateItem]
	sizeEstimate uint64
	txsDone      uint64
}

func NewBlockState(base Reader) *BlockState {
	return &BlockState{
		base:    base,
		changes: btree.NewG[StateItem](32, stateItemLess),
	}
}

// Get returns the committed in-block value at key, if any. It does not
// consult the base reader.
func (bs *BlockState) Get(key VersionKey) ([]byte, bool) {
	bs.lock.RLock()
	defer bs.lock.RUnlock()
	return bs.get(key)
}

func (bs *BlockState) get(key VersionKey) ([]byte, bool) {
	if item, ok := bs.changes.Get(StateItem{key: key.Bytes()}); ok {
		return item.val, true
	}
	return nil, false
}

// ReadCommitted returns the value at key as of the latest committed
// transaction: the in-block overlay if present, otherwise the base reader.
// An error here is a ledger access failure and is fatal to the block.
func (bs *BlockState) ReadCommitted(key VersionKey) ([]byte, error) {
	if val, ok := bs.Get(key); ok {
		return val, nil
	}
	val, err := bs.base.ReadLocation(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerAccess, err)
	}
	return val, nil
}

// ApplyWrites commits one transaction's write set. Caller guarantees index
// order; BlockState only guards against concurrent readers.
func (bs *BlockState) ApplyWrites(writes VersionedWrites) {
	bs.lock.Lock()
	defer bs.lock.Unlock()
	for _, w := range writes {
		item := StateItem{key: w.Key.Bytes(), val: w.Val}
		bs.changes.ReplaceOrInsert(item)
		bs.sizeEstimate += uint64(unsafe.Sizeof(item)) + uint64(len(item.key)) + uint64(len(item.val))
	}
	bs.txsDone++
}

// DoneCount returns the number of committed transactions.
func (bs *BlockState) DoneCount() uint64 {
	bs.lock.RLock()
	defer bs.lock.RUnlock()
	return bs.txsDone
}

// SizeEstimate approximates the memory held by committed changes.
func (bs *BlockState) SizeEstimate() uint64 {
	bs.lock.RLock()
	defer bs.lock.RUnlock()
	return bs.sizeEstimate
}

// StateRoot returns the commitment over the block's committed changes: the
// Keccak256 of all key/value pairs in canonical key order. Durable storage
// and trie commitment live behind the Reader and are out of scope here; the
// root makes committed results comparable across schedules.
func (bs *BlockState) StateRoot() common.Hash {
	bs.lock.RLock()
	defer bs.lock.RUnlock()

	h := crypto.NewKeccakState()
	bs.changes.Ascend(func(item StateItem) bool {
		h.Write(item.key)
		h.Write(item.val)
		return true
	})
	var root common.Hash
	h.Read(root[:])
	return root
}

// Ascend walks committed changes in canonical key order.
func (bs *BlockState) Ascend(walk func(key, val []byte) bool) {
	bs.lock.RLock()
	defer bs.lock.RUnlock()
	bs.changes.Ascend(func(item StateItem) bool {
		return walk(item.key, item.val)
	})
}
