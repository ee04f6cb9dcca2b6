package exec

import (
	"context"
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
	"golang.org/x/sync/errgroup"

	"github.com/parexlabs/parex/core/ssa"
	"github.com/parexlabs/parex/core/state"
	"github.com/parexlabs/parex/core/types"
	"github.com/parexlabs/parex/core/vm"
)

type phase int

const (
	phaseIdle phase = iota
	phaseDispatching
	phaseDraining
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseDispatching:
		return "dispatching"
	case phaseDraining:
		return "draining"
	case phaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// How many lookups a path needs before its log is materialized into a graph
// on the hot path. Startup prewarming promotes independently of this.
const promoteAfter = 4

// parallelExecutor runs one block's transactions in optimistic waves. Workers
// execute speculatively against the latest committed overlay; a sequential
// validation pass decides commits in index order, so the committed sequence
// is identical to serial execution no matter how the waves interleave.
type parallelExecutor struct {
	logger log.Logger
	cfg    Config

	block    *state.BlockState
	queue    *QueueWithRetry
	cache    *ssa.Cache
	tasks    []*TxTask
	receipts types.Receipts
	io       *state.VersionedIO

	phase        phase
	nextToCommit int
	waveWidth    int
	waves        uint64
}

func newParallelExecutor(block *state.BlockState, txs []*types.Transaction, cache *ssa.Cache, cfg Config, logger log.Logger) *parallelExecutor {
	pe := &parallelExecutor{
		logger:    logger,
		cfg:       cfg,
		block:     block,
		queue:     NewQueueWithRetry(len(txs)),
		cache:     cache,
		tasks:     make([]*TxTask, len(txs)),
		receipts:  make(types.Receipts, len(txs)),
		io:        state.NewVersionedIO(len(txs)),
		phase:     phaseIdle,
		waveWidth: cfg.WorkerCount,
	}
	for i, tx := range txs {
		task := &TxTask{Index: i, Tx: tx}
		pe.tasks[i] = task
		pe.queue.Add(task)
	}
	return pe
}

func (pe *parallelExecutor) execute(ctx context.Context) error {
	pe.phase = phaseDispatching
	for pe.nextToCommit < len(pe.tasks) {
		if err := ctx.Err(); err != nil {
			return err
		}
		wave := pe.queue.PopWave(pe.waveWidth)
		if len(wave) == 0 {
			return fmt.Errorf("scheduler stalled: %d of %d committed, empty queue", pe.nextToCommit, len(pe.tasks))
		}
		if pe.queue.Len() == 0 {
			pe.phase = phaseDraining
		} else {
			pe.phase = phaseDispatching
		}
		pe.waves++
		wavesExecuted.Inc()

		results, err := pe.runWave(ctx, wave)
		if err != nil {
			return err
		}
		pe.settleWave(results)
	}
	pe.phase = phaseDone
	pe.logger.Debug("block executed", "txs", len(pe.tasks), "waves", pe.waves)
	if pe.cfg.Profile {
		pe.profile()
	}
	return nil
}

// profile logs post-block diagnostics from the recorded IO and the committed
// overlay. Decided dependencies never feed back into scheduling.
func (pe *parallelExecutor) profile() {
	d := state.BuildDAG(pe.io, pe.logger)

	var reads, writes, dependent int
	for i := range pe.tasks {
		writes += len(pe.io.WriteSet(i))
		for _, r := range pe.io.ReadSet(i) {
			reads++
			for j := i - 1; j >= 0; j-- {
				if pe.io.HasWritten(j, r.Key) {
					dependent++
					break
				}
			}
		}
	}
	pe.logger.Info("block dependency graph",
		"order", d.GetOrder(), "edges", d.GetSize(),
		"reads", reads, "writes", writes, "dependentReads", dependent)

	var locations int
	pe.block.Ascend(func(key, val []byte) bool {
		locations++
		return true
	})
	pe.logger.Info("committed overlay",
		"txs", pe.block.DoneCount(), "locations", locations,
		"size", datasize.ByteSize(pe.block.SizeEstimate()).HR())
}

// runWave executes every task of the wave concurrently. Each attempt gets a
// private tracker over the shared committed overlay; nothing it does is
// visible outside its own result.
func (pe *parallelExecutor) runWave(ctx context.Context, wave []*TxTask) ([]*TxResult, error) {
	results := make([]*TxResult, len(wave))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pe.cfg.WorkerCount)

	for i, task := range wave {
		i, task := i, task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = pe.runTask(task)
			return results[i].Err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (pe *parallelExecutor) runTask(task *TxTask) *TxResult {
	tracker := state.NewTracker(pe.block, task.Version())
	res, err := vm.ApplyTransaction(tracker, task.Tx, pe.cfg.EnableSSA)
	txsExecuted.Inc()
	if err != nil {
		return &TxResult{Task: task, Err: err}
	}
	return &TxResult{
		Task:   task,
		Reads:  tracker.ReadSet(),
		Writes: tracker.WriteSet(),
		Exec:   res,
	}
}

// settleWave validates one finished wave and applies its accepted writes in
// index order. Conflicting and superseded attempts are requeued under their
// next incarnation; their overlays are simply dropped.
func (pe *parallelExecutor) settleWave(results []*TxResult) {
	byIndex := make(map[int]*TxResult, len(results))
	cands := make([]state.WaveCandidate, 0, len(results))
	for _, res := range results {
		byIndex[res.Task.Index] = res
		cands = append(cands, state.WaveCandidate{
			Index:  res.Task.Index,
			Reads:  res.Reads,
			Writes: res.Writes,
		})
	}

	decision := state.ValidateWave(pe.block, pe.nextToCommit, cands)
	txsValidated.Add(float64(len(cands)))

	for _, idx := range decision.Accepted {
		pe.commit(byIndex[idx])
	}
	for _, idx := range decision.Conflicting {
		pe.requeue(byIndex[idx].Task)
		pe.logger.Trace("attempt conflicted", "tx", idx, "incarnation", byIndex[idx].Task.Incarnation)
	}
	for _, idx := range decision.Superseded {
		pe.requeue(byIndex[idx].Task)
	}
	pe.adjustWidth(len(decision.Accepted), len(results))
}

func (pe *parallelExecutor) commit(res *TxResult) {
	task := res.Task
	pe.block.ApplyWrites(res.Writes)
	task.status = StatusCommitted
	pe.io.RecordRead(task.Index, res.Reads)
	pe.io.RecordWrite(task.Index, res.Writes)

	receipt := &types.Receipt{
		TransactionIndex: uint(task.Index),
		Status:           res.Exec.Status,
		StepsUsed:        res.Exec.StepsUsed,
		Output:           res.Exec.Output,
	}
	if res.Exec.Fault != nil {
		receipt.FaultReason = res.Exec.Fault.Error()
	}
	if task.Index > 0 {
		receipt.CumulativeSteps = pe.receipts[task.Index-1].CumulativeSteps
	}
	receipt.CumulativeSteps += receipt.StepsUsed
	pe.receipts[task.Index] = receipt
	pe.nextToCommit = task.Index + 1
	txsCommitted.Inc()

	if pe.cfg.EnableSSA && res.Exec.Traced {
		pe.recordPath(res.Exec)
	}
}

// recordPath feeds a committed attempt's execution path to the shared cache.
// Only committed attempts count: aborted speculation must not skew hotness.
func (pe *parallelExecutor) recordPath(exec *vm.ExecutionResult) {
	entry, err := pe.cache.LookupOrBuild(exec.PathKey, func() (*ssa.Log, error) {
		return exec.TraceLog, nil
	})
	if err != nil {
		pe.logger.Warn("path record failed", "key", exec.PathKey, "err", err)
		return
	}
	if !entry.Promoted() && entry.AccessCount() >= promoteAfter {
		if err := pe.cache.Promote(entry.Key()); err != nil {
			pe.logger.Warn("path promotion failed", "key", entry.Key(), "err", err)
		}
	}
}

func (pe *parallelExecutor) requeue(task *TxTask) {
	task.status = StatusAborted
	txsAborted.Inc()
	pe.queue.ReTry(task)
}

// adjustWidth narrows the next wave toward sequential execution when aborts
// dominate, and widens back toward the worker pool on clean waves. Width 1
// cannot conflict, so forward progress is guaranteed for any tail.
func (pe *parallelExecutor) adjustWidth(accepted, attempted int) {
	if attempted == 0 {
		return
	}
	if accepted*2 < attempted {
		pe.waveWidth = max(1, pe.waveWidth/2)
	} else if accepted == attempted {
		pe.waveWidth = min(pe.cfg.WorkerCount, pe.waveWidth*2)
	}
}
