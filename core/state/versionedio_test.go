package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func recordedIO() *VersionedIO {
	io := NewVersionedIO(2)
	io.RecordRead(0, VersionedReads{{Key: BalanceKey(addrA), Val: []byte{1}}})
	io.RecordWrite(0, VersionedWrites{{Key: BalanceKey(addrB), Val: []byte{2}}})
	io.RecordRead(1, VersionedReads{{Key: BalanceKey(addrB), Val: []byte{2}}})
	io.RecordWrite(1, VersionedWrites{{Key: NonceKey(addrB), Val: []byte{1}}})
	return io
}

func TestVersionedIOEqual(t *testing.T) {
	a := recordedIO()
	require.True(t, a.Equal(recordedIO()))

	// Identical writes, different observed read value.
	b := recordedIO()
	b.RecordRead(0, VersionedReads{{Key: BalanceKey(addrA), Val: []byte{9}}})
	require.False(t, a.Equal(b))

	// Identical writes, different read location.
	c := recordedIO()
	c.RecordRead(0, VersionedReads{{Key: NonceKey(addrA), Val: []byte{1}}})
	require.False(t, a.Equal(c))

	// Different written value.
	d := recordedIO()
	d.RecordWrite(1, VersionedWrites{{Key: NonceKey(addrB), Val: []byte{3}}})
	require.False(t, a.Equal(d))

	require.False(t, a.Equal(NewVersionedIO(3)))
}

func TestVersionedIOAccessors(t *testing.T) {
	io := recordedIO()
	require.Len(t, io.ReadSet(0), 1)
	require.Len(t, io.WriteSet(1), 1)
	require.True(t, io.HasWritten(0, BalanceKey(addrB)))
	require.False(t, io.HasWritten(0, BalanceKey(addrA)))
	require.False(t, io.HasWritten(1, BalanceKey(addrB)))
}
