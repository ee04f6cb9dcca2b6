package state

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func candidate(index int, reads VersionedReads, writes VersionedWrites) WaveCandidate {
	return WaveCandidate{Index: index, Reads: reads, Writes: writes}
}

func TestValidateWaveAllIndependent(t *testing.T) {
	bs := newTestBlock(nil)
	decision := ValidateWave(bs, 0, []WaveCandidate{
		candidate(0, nil, VersionedWrites{{Key: BalanceKey(addrA), Val: []byte{1}}}),
		candidate(1, nil, VersionedWrites{{Key: BalanceKey(addrB), Val: []byte{2}}}),
		candidate(2, nil, VersionedWrites{{Key: StorageKey(addrA, slot1), Val: []byte{3}}}),
	})
	require.Equal(t, []int{0, 1, 2}, decision.Accepted)
	require.Empty(t, decision.Conflicting)
	require.Empty(t, decision.Superseded)
}

func TestValidateWaveStaleReadAborts(t *testing.T) {
	bs := newTestBlock(nil)
	key := BalanceKey(addrA)

	// tx1 read the pre-tx0 value of a location tx0 writes in this pass.
	decision := ValidateWave(bs, 0, []WaveCandidate{
		candidate(0, nil, VersionedWrites{{Key: key, Val: uint256.NewInt(10).Bytes()}}),
		candidate(1, VersionedReads{{Key: key, Val: nil}}, nil),
	})
	require.Equal(t, []int{0}, decision.Accepted)
	require.Equal(t, []int{1}, decision.Conflicting)
}

func TestValidateWaveReadOfAcceptedWriteIsValid(t *testing.T) {
	bs := newTestBlock(nil)
	key := BalanceKey(addrA)
	val := uint256.NewInt(10).Bytes()

	// tx1 happened to observe exactly what tx0 commits; no conflict.
	decision := ValidateWave(bs, 0, []WaveCandidate{
		candidate(0, nil, VersionedWrites{{Key: key, Val: val}}),
		candidate(1, VersionedReads{{Key: key, Val: val}}, nil),
	})
	require.Equal(t, []int{0, 1}, decision.Accepted)
	require.Empty(t, decision.Conflicting)
}

func TestValidateWaveSupersedesAfterAbort(t *testing.T) {
	bs := newTestBlock(nil)
	key := BalanceKey(addrA)

	// tx1 conflicts; tx2 is clean on its own but its predecessor will
	// re-execute, so it must re-validate too.
	decision := ValidateWave(bs, 0, []WaveCandidate{
		candidate(0, nil, VersionedWrites{{Key: key, Val: []byte{1}}}),
		candidate(1, VersionedReads{{Key: key, Val: nil}}, nil),
		candidate(2, nil, VersionedWrites{{Key: BalanceKey(addrB), Val: []byte{2}}}),
	})
	require.Equal(t, []int{0}, decision.Accepted)
	require.Equal(t, []int{1}, decision.Conflicting)
	require.Equal(t, []int{2}, decision.Superseded)
}

func TestValidateWaveHoleStopsAcceptance(t *testing.T) {
	bs := newTestBlock(nil)

	// The lowest uncommitted index is absent from the wave; nothing may
	// commit ahead of it.
	decision := ValidateWave(bs, 0, []WaveCandidate{
		candidate(1, nil, nil),
		candidate(2, nil, nil),
	})
	require.Empty(t, decision.Accepted)
	require.Equal(t, []int{1, 2}, decision.Superseded)
}

func TestValidateWaveAgainstCommittedState(t *testing.T) {
	bs := newTestBlock(nil)
	key := BalanceKey(addrA)
	bs.ApplyWrites(VersionedWrites{{Key: key, Val: uint256.NewInt(5).Bytes()}})

	// An attempt that observed the committed value validates; one that
	// observed anything else does not.
	decision := ValidateWave(bs, 1, []WaveCandidate{
		candidate(1, VersionedReads{{Key: key, Val: uint256.NewInt(5).Bytes()}}, nil),
	})
	require.Equal(t, []int{1}, decision.Accepted)

	decision = ValidateWave(bs, 2, []WaveCandidate{
		candidate(2, VersionedReads{{Key: key, Val: uint256.NewInt(4).Bytes()}}, nil),
	})
	require.Equal(t, []int{2}, decision.Conflicting)
}

func TestValidateWaveUnsortedInput(t *testing.T) {
	bs := newTestBlock(nil)
	decision := ValidateWave(bs, 0, []WaveCandidate{
		candidate(2, nil, nil),
		candidate(0, nil, nil),
		candidate(1, nil, nil),
	})
	require.Equal(t, []int{0, 1, 2}, decision.Accepted)
}

func TestHasReadDep(t *testing.T) {
	key := BalanceKey(addrA)
	writes := VersionedWrites{{Key: key}}

	require.True(t, HasReadDep(writes, VersionedReads{{Key: key}}))
	require.False(t, HasReadDep(writes, VersionedReads{{Key: BalanceKey(addrB)}}))
}
