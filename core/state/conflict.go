package state

import (
	"bytes"
	"sort"
)

// WaveCandidate is one completed attempt handed to the conflict detector:
// the transaction's fixed index and the access sets its tracker recorded.
type WaveCandidate struct {
	Index  int
	Reads  VersionedReads
	Writes VersionedWrites
}

// WaveDecision is the outcome of one validation pass over a wave.
type WaveDecision struct {
	// Accepted holds the indices that commit, in commit order. They form a
	// contiguous extension of the committed prefix.
	Accepted []int
	// Conflicting holds the indices aborted because a read no longer held
	// the observed value.
	Conflicting []int
	// Superseded holds the indices that validated no conflict of their own
	// but follow an aborted lower-index candidate; their overlays are
	// discarded and they re-execute, because the aborted predecessor may
	// produce different writes on retry.
	Superseded []int
}

// ValidateWave decides which candidates of one wave commit. Decisions are
// made strictly in ascending index order: each acceptance extends the set of
// writes later candidates are validated against. nextToCommit is the lowest
// uncommitted index of the block; acceptance stops at the first hole so that
// commits always extend the committed prefix contiguously.
//
// A candidate is accepted iff every location of its read set still holds the
// value it observed, given the block's committed state plus all writes of
// candidates already accepted in this pass. Lower index always wins: the
// higher-index transaction is the one that retries.
//
// The detector is a pure decision function: it inspects committed state but
// never mutates it. Applying accepted write sets is the scheduler's job.
func ValidateWave(bs *BlockState, nextToCommit int, cands []WaveCandidate) WaveDecision {
	sorted := make([]WaveCandidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var decision WaveDecision
	pending := map[VersionKey][]byte{}
	expect := nextToCommit
	aborted := false

	for _, cand := range sorted {
		if aborted || cand.Index != expect {
			decision.Superseded = append(decision.Superseded, cand.Index)
			continue
		}
		if readsValid(bs, pending, cand.Reads) {
			decision.Accepted = append(decision.Accepted, cand.Index)
			for _, w := range cand.Writes {
				pending[w.Key] = w.Val
			}
			expect++
			continue
		}
		decision.Conflicting = append(decision.Conflicting, cand.Index)
		aborted = true
	}
	return decision
}

// readsValid checks one read set against the committed state overlaid with
// the writes accepted so far in this pass. A location absent from both the
// pass overlay and the block's committed changes cannot have moved since the
// attempt observed it: the base view is immutable for the block's duration.
func readsValid(bs *BlockState, pending map[VersionKey][]byte, reads VersionedReads) bool {
	for _, r := range reads {
		if val, ok := pending[r.Key]; ok {
			if !bytes.Equal(val, r.Val) {
				return false
			}
			continue
		}
		if val, ok := bs.Get(r.Key); ok {
			if !bytes.Equal(val, r.Val) {
				return false
			}
		}
	}
	return true
}
