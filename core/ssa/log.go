package ssa

import (
	"github.com/parexlabs/parex/common"
)

// OpRecord is one operation of a recorded execution path. Pops and Pushes
// carry the operation's stack arity so a dependency graph can be built from
// the record alone, without instruction-set knowledge.
type OpRecord struct {
	Op     byte
	Arg    common.Hash
	Pops   uint8
	Pushes uint8
}

// Log is the compact trace of one execution path: the operation sequence and
// the taken-branch bitstring that also derives the path digest. It is the
// initial payload form of a cache entry; repeated use promotes it to a Graph.
type Log struct {
	Ops      []OpRecord
	Branches []byte
}

// Replay walks the recorded operations in execution order.
func (l *Log) Replay(apply func(rec OpRecord) error) error {
	for _, rec := range l.Ops {
		if err := apply(rec); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of recorded operations.
func (l *Log) Len() int { return len(l.Ops) }

func (l *Log) sizeEstimate() uint64 {
	return uint64(len(l.Ops))*40 + uint64(len(l.Branches))
}
