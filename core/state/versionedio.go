package state

import (
	"bytes"
	"strconv"

	"github.com/heimdalr/dag"
	"github.com/ledgerwatch/log/v3"
)

// VersionedRead records the value one attempt observed at a location. Val is
// the committed value snapshotted at first touch; validation later compares
// it against the value visible once all lower-index transactions committed.
type VersionedRead struct {
	Key VersionKey
	V   Version
	Val []byte
}

// VersionedWrite is one buffered private write of an attempt. It reaches the
// shared ledger only if the attempt commits.
type VersionedWrite struct {
	Key VersionKey
	V   Version
	Val []byte
}

type VersionedReads []VersionedRead
type VersionedWrites []VersionedWrite

// VersionedIO stores the read and write sets of the last incarnation of every
// transaction in a block.
type VersionedIO struct {
	inputs     []VersionedReads
	outputs    []VersionedWrites
	outputsSet []map[VersionKey]struct{}
}

func NewVersionedIO(numTx int) *VersionedIO {
	return &VersionedIO{
		inputs:     make([]VersionedReads, numTx),
		outputs:    make([]VersionedWrites, numTx),
		outputsSet: make([]map[VersionKey]struct{}, numTx),
	}
}

func (io *VersionedIO) ReadSet(txIdx int) VersionedReads   { return io.inputs[txIdx] }
func (io *VersionedIO) WriteSet(txIdx int) VersionedWrites { return io.outputs[txIdx] }

func (io *VersionedIO) HasWritten(txIdx int, k VersionKey) bool {
	_, ok := io.outputsSet[txIdx][k]
	return ok
}

func (io *VersionedIO) RecordRead(txIdx int, input VersionedReads) {
	io.inputs[txIdx] = input
}

func (io *VersionedIO) RecordWrite(txIdx int, output VersionedWrites) {
	io.outputs[txIdx] = output
	io.outputsSet[txIdx] = make(map[VersionKey]struct{}, len(output))
	for _, v := range output {
		io.outputsSet[txIdx][v.Key] = struct{}{}
	}
}

// Equal reports whether two recorded IO sets are identical, location by
// location and value by value. Used to assert schedule-independence.
func (io *VersionedIO) Equal(other *VersionedIO) bool {
	if len(io.inputs) != len(other.inputs) {
		return false
	}
	for i := range io.inputs {
		if len(io.inputs[i]) != len(other.inputs[i]) {
			return false
		}
		for j := range io.inputs[i] {
			if io.inputs[i][j].Key != other.inputs[i][j].Key {
				return false
			}
			if !bytes.Equal(io.inputs[i][j].Val, other.inputs[i][j].Val) {
				return false
			}
		}
		if len(io.outputs[i]) != len(other.outputs[i]) {
			return false
		}
		for j := range io.outputs[i] {
			if io.outputs[i][j].Key != other.outputs[i][j].Key {
				return false
			}
			if !bytes.Equal(io.outputs[i][j].Val, other.outputs[i][j].Val) {
				return false
			}
		}
	}
	return true
}

// HasReadDep returns true if txTo reads any location txFrom writes.
func HasReadDep(txFrom VersionedWrites, txTo VersionedReads) bool {
	reads := make(map[VersionKey]bool, len(txTo))
	for _, v := range txTo {
		reads[v.Key] = true
	}
	for _, w := range txFrom {
		if reads[w.Key] {
			return true
		}
	}
	return false
}

// DAG is the transaction dependency graph of one executed block: an edge
// i -> j means tx j read a location tx i wrote.
type DAG struct {
	*dag.DAG
}

// BuildDAG derives the dependency graph from recorded block IO. Diagnostics
// only; decided dependencies never feed back into scheduling.
func BuildDAG(deps *VersionedIO, logger log.Logger) (d DAG) {
	d = DAG{dag.NewDAG()}
	ids := make(map[int]string)

	vertex := func(i int) string {
		id, ok := ids[i]
		if !ok {
			id, _ = d.AddVertex(strconv.Itoa(i))
			ids[i] = id
		}
		return id
	}

	for i := len(deps.inputs) - 1; i > 0; i-- {
		txTo := deps.inputs[i]
		for j := i - 1; j >= 0; j-- {
			if !HasReadDep(deps.outputs[j], txTo) {
				continue
			}
			if err := d.AddEdge(vertex(j), vertex(i)); err != nil {
				logger.Warn("failed to add dependency edge", "from", j, "to", i, "err", err)
			}
		}
	}
	return d
}
