package state

import (
	"bytes"
	"fmt"

	"github.com/parexlabs/parex/common"
)

// AccountPath selects which part of an account a VersionKey refers to.
// Conflict detection is field-level for account metadata and slot-level for
// storage, to minimize false conflicts.
type AccountPath uint8

const (
	BalancePath AccountPath = iota
	NoncePath
	CodePath
	StoragePath
)

func (p AccountPath) String() string {
	switch p {
	case BalancePath:
		return "balance"
	case NoncePath:
		return "nonce"
	case CodePath:
		return "code"
	case StoragePath:
		return "storage"
	default:
		return fmt.Sprintf("path(%d)", uint8(p))
	}
}

// VersionKey identifies one ledger location: an account metadata field or a
// single storage slot. Keys are comparable and usable as map keys.
type VersionKey struct {
	addr common.Address
	path AccountPath
	slot common.Hash
}

func BalanceKey(addr common.Address) VersionKey {
	return VersionKey{addr: addr, path: BalancePath}
}

func NonceKey(addr common.Address) VersionKey {
	return VersionKey{addr: addr, path: NoncePath}
}

func CodeKey(addr common.Address) VersionKey {
	return VersionKey{addr: addr, path: CodePath}
}

func StorageKey(addr common.Address, slot common.Hash) VersionKey {
	return VersionKey{addr: addr, path: StoragePath, slot: slot}
}

func (k VersionKey) Address() common.Address { return k.addr }
func (k VersionKey) Path() AccountPath       { return k.path }
func (k VersionKey) Slot() common.Hash       { return k.slot }

// IsStorage reports whether the key refers to a storage slot rather than an
// account metadata field.
func (k VersionKey) IsStorage() bool { return k.path == StoragePath }

// Bytes returns the canonical ordered encoding of the key: address, path tag,
// then the slot for storage keys. The encoding defines the iteration order of
// committed changes and feeds the state root.
func (k VersionKey) Bytes() []byte {
	if k.path == StoragePath {
		b := make([]byte, common.AddressLength+1+common.HashLength)
		copy(b, k.addr[:])
		b[common.AddressLength] = byte(k.path)
		copy(b[common.AddressLength+1:], k.slot[:])
		return b
	}
	b := make([]byte, common.AddressLength+1)
	copy(b, k.addr[:])
	b[common.AddressLength] = byte(k.path)
	return b
}

func (k VersionKey) String() string {
	if k.path == StoragePath {
		return fmt.Sprintf("%s/%s/%s", k.addr, k.path, k.slot)
	}
	return fmt.Sprintf("%s/%s", k.addr, k.path)
}

// Compare orders keys by their canonical encoding.
func (k VersionKey) Compare(other VersionKey) int {
	return bytes.Compare(k.Bytes(), other.Bytes())
}

// Version identifies one attempt of one transaction.
type Version struct {
	TxIndex     int
	Incarnation int
}
