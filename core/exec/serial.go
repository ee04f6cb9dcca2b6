package exec

import (
	"context"

	"github.com/ledgerwatch/log/v3"

	"github.com/parexlabs/parex/core/ssa"
	"github.com/parexlabs/parex/core/state"
	"github.com/parexlabs/parex/core/types"
	"github.com/parexlabs/parex/core/vm"
)

// serialExecutor runs the block one transaction at a time in index order.
// No speculation happens, so validation is unnecessary: every attempt's view
// is the committed state by construction.
type serialExecutor struct {
	logger   log.Logger
	cfg      Config
	block    *state.BlockState
	cache    *ssa.Cache
	receipts types.Receipts
}

func newSerialExecutor(block *state.BlockState, cache *ssa.Cache, cfg Config, logger log.Logger) *serialExecutor {
	return &serialExecutor{logger: logger, cfg: cfg, block: block, cache: cache}
}

func (se *serialExecutor) execute(ctx context.Context, txs []*types.Transaction) error {
	se.receipts = make(types.Receipts, 0, len(txs))
	var cumulative uint64
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		task := &TxTask{Index: i, Tx: tx}
		tracker := state.NewTracker(se.block, task.Version())
		res, err := vm.ApplyTransaction(tracker, tx, se.cfg.EnableSSA)
		if err != nil {
			return err
		}
		txsExecuted.Inc()
		se.block.ApplyWrites(tracker.WriteSet())
		task.status = StatusCommitted
		txsCommitted.Inc()

		cumulative += res.StepsUsed
		receipt := &types.Receipt{
			TransactionIndex: uint(i),
			Status:           res.Status,
			StepsUsed:        res.StepsUsed,
			CumulativeSteps:  cumulative,
			Output:           res.Output,
		}
		if res.Fault != nil {
			receipt.FaultReason = res.Fault.Error()
		}
		se.receipts = append(se.receipts, receipt)

		if se.cfg.EnableSSA && res.Traced {
			se.recordPath(res)
		}
	}
	return nil
}

func (se *serialExecutor) recordPath(exec *vm.ExecutionResult) {
	entry, err := se.cache.LookupOrBuild(exec.PathKey, func() (*ssa.Log, error) {
		return exec.TraceLog, nil
	})
	if err != nil {
		se.logger.Warn("path record failed", "key", exec.PathKey, "err", err)
		return
	}
	if !entry.Promoted() && entry.AccessCount() >= promoteAfter {
		if err := se.cache.Promote(entry.Key()); err != nil {
			se.logger.Warn("path promotion failed", "key", entry.Key(), "err", err)
		}
	}
}
