// ssatool inspects execution-path cache snapshots offline: access count
// distribution, Pareto concentration and the hottest keys. It never touches a
// running engine; it reads the snapshot file the engine writes at checkpoint.
package main

import (
	"fmt"
	"os"

	"github.com/ledgerwatch/log/v3"
	"github.com/urfave/cli/v2"

	"github.com/parexlabs/parex/core/ssa"
)

var snapshotFlag = cli.StringFlag{
	Name:     "snapshot",
	Usage:    "Path to an execution-path cache snapshot file",
	Required: true,
}

var topKFlag = cli.IntFlag{
	Name:  "k",
	Usage: "Number of hottest keys to list",
	Value: 20,
}

var statsCommand = cli.Command{
	Action: printStats,
	Name:   "stats",
	Usage:  "Print access count distribution and Pareto concentration",
	Flags: []cli.Flag{
		&snapshotFlag,
	},
}

var topkCommand = cli.Command{
	Action: printTopK,
	Name:   "topk",
	Usage:  "List the hottest path keys by access count",
	Flags: []cli.Flag{
		&snapshotFlag,
		&topKFlag,
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "ssatool"
	app.Usage = "Offline analysis of execution-path cache snapshots"

	app.Commands = []*cli.Command{
		&statsCommand,
		&topkCommand,
	}

	app.UsageText = app.Name + ` [command] [flags]`

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSnapshot(cliCtx *cli.Context) (*ssa.Cache, error) {
	path := cliCtx.String(snapshotFlag.Name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	cache := ssa.NewCache(log.New())
	cache.LoadFile(path)
	if cache.Len() == 0 {
		return nil, fmt.Errorf("snapshot %s holds no entries", path)
	}
	return cache, nil
}
