package ssa

import (
	"fmt"

	"github.com/heimdalr/dag"
)

// Graph is the materialized SSA form of a Log: one vertex per recorded
// operation result, with edges for the data dependencies flowing between
// them. Building it costs more than keeping the Log, which is why entries
// start as Logs and are promoted only once repeated use justifies it.
// Replaying a Graph visits the operations in their original execution order
// and is therefore observationally identical to replaying its source Log.
type Graph struct {
	d        *dag.DAG
	order    []graphNode
	branches []byte
	// phantoms counts dependency sources that were live on the stack before
	// the recorded path began; they appear as extra vertices but not as
	// replayable operations.
	phantoms int
}

type graphNode struct {
	id  string
	rec OpRecord
}

// BuildGraph materializes the dependency graph of a Log. The build is pure:
// racing builders for the same key produce interchangeable graphs and the
// cache discards all but one.
func BuildGraph(l *Log) (*Graph, error) {
	g := &Graph{d: dag.NewDAG(), branches: append([]byte(nil), l.Branches...)}

	// Symbolic stack of vertex ids: each operation consumes its inputs'
	// producers and becomes the producer of its outputs.
	var stack []string
	phantom := 0

	for i, rec := range l.Ops {
		id, err := g.d.AddVertex(fmt.Sprintf("op%d", i))
		if err != nil {
			return nil, fmt.Errorf("ssa graph vertex: %w", err)
		}
		g.order = append(g.order, graphNode{id: id, rec: rec})

		for p := 0; p < int(rec.Pops); p++ {
			var src string
			if len(stack) > 0 {
				src = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			} else {
				src, err = g.d.AddVertex(fmt.Sprintf("in%d", phantom))
				if err != nil {
					return nil, fmt.Errorf("ssa graph vertex: %w", err)
				}
				phantom++
			}
			if err := g.d.AddEdge(src, id); err != nil {
				return nil, fmt.Errorf("ssa graph edge: %w", err)
			}
		}
		for p := 0; p < int(rec.Pushes); p++ {
			stack = append(stack, id)
		}
	}
	g.phantoms = phantom
	return g, nil
}

// Replay walks the operations in original execution order, matching
// Log.Replay on the source Log.
func (g *Graph) Replay(apply func(rec OpRecord) error) error {
	for _, n := range g.order {
		if err := apply(n.rec); err != nil {
			return err
		}
	}
	return nil
}

// NodeCount returns the number of operation vertices, excluding phantom
// inputs. Exported through the stats surface for offline distribution
// analysis.
func (g *Graph) NodeCount() int { return len(g.order) }

// EdgeCount returns the number of data dependency edges.
func (g *Graph) EdgeCount() int {
	size := 0
	for _, n := range g.order {
		size += int(n.rec.Pops)
	}
	return size
}

// Log reconstructs the compact trace the graph was built from.
func (g *Graph) Log() *Log {
	l := &Log{Branches: append([]byte(nil), g.branches...)}
	for _, n := range g.order {
		l.Ops = append(l.Ops, n.rec)
	}
	return l
}

func (g *Graph) sizeEstimate() uint64 {
	return uint64(len(g.order))*96 + uint64(len(g.branches))
}
