package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/parexlabs/parex/core/ssa"
)

func printStats(cliCtx *cli.Context) error {
	cache, err := loadSnapshot(cliCtx)
	if err != nil {
		return err
	}

	stats := cache.StatsSnapshot()
	dist := ssa.Analyze(stats)

	var promoted int
	for _, kc := range stats {
		if entry, ok := cache.Peek(kc.Key); ok && entry.Promoted() {
			promoted++
		}
	}

	fmt.Printf("entries: %d (graphs: %d, logs: %d)\n", len(stats), promoted, len(stats)-promoted)
	fmt.Printf("total accesses: %d\n", dist.Total)
	fmt.Printf("estimated size: %d bytes\n\n", cache.SizeEstimate())

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Access Share", "Keys Needed", "Of All Keys"})
	for _, threshold := range ssa.Thresholds {
		keys := dist.CoverCounts[threshold]
		t.AppendRow(table.Row{
			fmt.Sprintf("%d%%", threshold),
			keys,
			fmt.Sprintf("%.1f%%", 100*float64(keys)/float64(len(stats))),
		})
	}
	t.Render()
	return nil
}

func printTopK(cliCtx *cli.Context) error {
	cache, err := loadSnapshot(cliCtx)
	if err != nil {
		return err
	}
	k := cliCtx.Int(topKFlag.Name)

	dist := ssa.Analyze(cache.StatsSnapshot())
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Path Key", "Accesses", "Form", "Nodes"})
	for i, kc := range dist.Sorted {
		if i >= k {
			break
		}
		form, nodes := "log", ""
		if entry, ok := cache.Peek(kc.Key); ok {
			if g := entry.Graph(); g != nil {
				form = "graph"
				nodes = fmt.Sprintf("%d", g.NodeCount())
			} else if l := entry.Log(); l != nil {
				nodes = fmt.Sprintf("%d", l.Len())
			}
		}
		t.AppendRow(table.Row{i + 1, kc.Key.String(), kc.Count, form, nodes})
	}
	t.Render()
	return nil
}
