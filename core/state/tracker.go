package state

import (
	"bytes"
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/parexlabs/parex/common"
)

// Tracker wraps every ledger read and write of one transaction attempt.
// Reads return the attempt's own buffered write if the location was already
// touched, otherwise the committed value, which is snapshotted on first touch
// so the validation pass can later compare it. Writes buffer privately; no
// shared state is mutated before commit.
//
// Tracker is owned by a single worker goroutine and is not safe for
// concurrent use. It never fails on its own: the only error it can surface is
// a base ledger access failure.
type Tracker struct {
	block   *BlockState
	version Version

	overlay    map[VersionKey][]byte
	reads      map[VersionKey][]byte
	readOrder  []VersionKey
	writeOrder []VersionKey
	journal    []journalEntry
}

type journalEntry struct {
	key     VersionKey
	prev    []byte
	existed bool
}

func NewTracker(block *BlockState, version Version) *Tracker {
	return &Tracker{
		block:   block,
		version: version,
		overlay: map[VersionKey][]byte{},
		reads:   map[VersionKey][]byte{},
	}
}

func (t *Tracker) Version() Version { return t.version }

// Read returns the attempt's view of key. Undefined locations read as nil,
// the canonical zero of every location kind.
func (t *Tracker) Read(key VersionKey) ([]byte, error) {
	if val, ok := t.overlay[key]; ok {
		return val, nil
	}
	if val, ok := t.reads[key]; ok {
		return val, nil
	}
	val, err := t.block.ReadCommitted(key)
	if err != nil {
		return nil, err
	}
	t.reads[key] = val
	t.readOrder = append(t.readOrder, key)
	return val, nil
}

// Write buffers a private write. The value observed by later reads of this
// attempt; invisible to every other attempt until commit.
func (t *Tracker) Write(key VersionKey, val []byte) {
	prev, existed := t.overlay[key]
	t.journal = append(t.journal, journalEntry{key: key, prev: prev, existed: existed})
	if !existed {
		t.writeOrder = append(t.writeOrder, key)
	}
	t.overlay[key] = val
}

// Snapshot marks a revert point in the attempt's write buffer. Reverting
// discards program effects while keeping earlier writes, which is how a
// faulting transaction keeps its all-or-nothing fee charge.
func (t *Tracker) Snapshot() int {
	return len(t.journal)
}

// RevertToSnapshot rolls the write buffer back to a mark returned by
// Snapshot. The read set is kept: reverted reads still constrain validation.
func (t *Tracker) RevertToSnapshot(mark int) {
	for i := len(t.journal) - 1; i >= mark; i-- {
		e := t.journal[i]
		if e.existed {
			t.overlay[e.key] = e.prev
		} else {
			delete(t.overlay, e.key)
			for j := len(t.writeOrder) - 1; j >= 0; j-- {
				if t.writeOrder[j] == e.key {
					t.writeOrder = append(t.writeOrder[:j], t.writeOrder[j+1:]...)
					break
				}
			}
		}
	}
	t.journal = t.journal[:mark]
}

// ReadSet returns the attempt's immutable read set: every committed value
// observed, in first-touch order.
func (t *Tracker) ReadSet() VersionedReads {
	reads := make(VersionedReads, 0, len(t.readOrder))
	for _, key := range t.readOrder {
		reads = append(reads, VersionedRead{Key: key, V: t.version, Val: t.reads[key]})
	}
	return reads
}

// WriteSet returns the attempt's immutable write set in first-write order.
// Writes that restore the observed committed value are elided: they cannot
// invalidate any reader.
func (t *Tracker) WriteSet() VersionedWrites {
	writes := make(VersionedWrites, 0, len(t.writeOrder))
	for _, key := range t.writeOrder {
		val := t.overlay[key]
		if prev, ok := t.reads[key]; ok && bytes.Equal(prev, val) {
			continue
		}
		writes = append(writes, VersionedWrite{Key: key, V: t.version, Val: val})
	}
	return writes
}

// Typed accessors over the canonical location encodings.

func (t *Tracker) Balance(addr common.Address) (*uint256.Int, error) {
	val, err := t.Read(BalanceKey(addr))
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(val), nil
}

func (t *Tracker) SetBalance(addr common.Address, balance *uint256.Int) {
	t.Write(BalanceKey(addr), balance.Bytes())
}

func (t *Tracker) Nonce(addr common.Address) (uint64, error) {
	val, err := t.Read(NonceKey(addr))
	if err != nil {
		return 0, err
	}
	if len(val) == 0 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(val), nil
}

func (t *Tracker) SetNonce(addr common.Address, nonce uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], nonce)
	t.Write(NonceKey(addr), b[:])
}

func (t *Tracker) Code(addr common.Address) ([]byte, error) {
	return t.Read(CodeKey(addr))
}

func (t *Tracker) SetCode(addr common.Address, code []byte) {
	t.Write(CodeKey(addr), common.Copy(code))
}

func (t *Tracker) Storage(addr common.Address, slot common.Hash) (*uint256.Int, error) {
	val, err := t.Read(StorageKey(addr, slot))
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(val), nil
}

func (t *Tracker) SetStorage(addr common.Address, slot common.Hash, val *uint256.Int) {
	t.Write(StorageKey(addr, slot), val.Bytes())
}
