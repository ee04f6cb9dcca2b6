package exec

import (
	"context"
	"runtime"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"

	"github.com/parexlabs/parex/common"
	"github.com/parexlabs/parex/core/ssa"
	"github.com/parexlabs/parex/core/state"
	"github.com/parexlabs/parex/core/types"
)

// Config carries the block-build time knobs of the engine. Zero value means
// serial execution with the cache disabled.
type Config struct {
	// Parallel enables wave-based optimistic execution. Off means pure
	// sequential index order with conflict detection bypassed.
	Parallel    bool
	WorkerCount int

	// EnableSSA turns on execution-path recording and the shared path cache.
	EnableSSA bool
	// SSASnapshotPath, when set, is read before the block and rewritten
	// after it. Missing or corrupt files start the cache empty.
	SSASnapshotPath string
	// CacheBudget bounds cache memory between blocks; zero means unbounded.
	CacheBudget datasize.ByteSize
	// PrewarmTopK eagerly materializes graphs for the hottest loaded paths.
	PrewarmTopK int

	// Profile logs the block's transaction dependency graph after commit.
	Profile bool

	Logger log.Logger
}

func (c Config) workers() int {
	if c.WorkerCount > 0 {
		return c.WorkerCount
	}
	return runtime.NumCPU()
}

func (c Config) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.New()
}

// BlockResult is the deterministic outcome of one executed block.
type BlockResult struct {
	Receipts  types.Receipts
	StateRoot common.Hash
}

// Engine executes blocks against a base state reader. The path cache is
// shared across the engine's lifetime and all of its workers.
type Engine struct {
	cfg    Config
	logger log.Logger
	cache  *ssa.Cache
}

func NewEngine(cfg Config) *Engine {
	logger := cfg.logger()
	e := &Engine{cfg: cfg, logger: logger, cache: ssa.NewCache(logger)}
	if cfg.EnableSSA && cfg.SSASnapshotPath != "" {
		e.cache.LoadFile(cfg.SSASnapshotPath)
		if cfg.PrewarmTopK > 0 || cfg.CacheBudget > 0 {
			gov := ssa.NewGovernor(e.cache, ssa.GovernorConfig{
				PrewarmTopK:  cfg.PrewarmTopK,
				ProtectTopK:  cfg.PrewarmTopK,
				MemoryBudget: cfg.CacheBudget,
			}, logger)
			gov.Prewarm(context.Background())
			gov.MaybeEvict()
		}
	}
	return e
}

// Cache exposes the engine's path cache for statistics export and offline
// governance.
func (e *Engine) Cache() *ssa.Cache { return e.cache }

// ExecuteBlock runs the ordered transaction list against base and returns the
// per-transaction receipts and the commitment over the block's state changes.
// The result is identical to strict sequential execution in submission order.
// The only returned error cause is a failing base reader or a cancelled
// context; everything else is absorbed into receipts or retries.
func (e *Engine) ExecuteBlock(ctx context.Context, txs []*types.Transaction, base state.Reader) (*BlockResult, error) {
	block := state.NewBlockState(base)

	var receipts types.Receipts
	if e.cfg.Parallel {
		cfg := e.cfg
		cfg.WorkerCount = cfg.workers()
		pe := newParallelExecutor(block, txs, e.cache, cfg, e.logger)
		if err := pe.execute(ctx); err != nil {
			return nil, err
		}
		receipts = pe.receipts
	} else {
		se := newSerialExecutor(block, e.cache, e.cfg, e.logger)
		if err := se.execute(ctx, txs); err != nil {
			return nil, err
		}
		receipts = se.receipts
	}

	if e.cfg.EnableSSA && e.cfg.SSASnapshotPath != "" {
		if err := e.cache.SaveFile(e.cfg.SSASnapshotPath); err != nil {
			e.logger.Warn("path cache snapshot write failed", "path", e.cfg.SSASnapshotPath, "err", err)
		}
	}
	return &BlockResult{Receipts: receipts, StateRoot: block.StateRoot()}, nil
}

// ExecuteBlock is the package-level convenience entry point with a throwaway
// engine and cache.
func ExecuteBlock(ctx context.Context, txs []*types.Transaction, base state.Reader, cfg Config) (*BlockResult, error) {
	return NewEngine(cfg).ExecuteBlock(ctx, txs, base)
}
