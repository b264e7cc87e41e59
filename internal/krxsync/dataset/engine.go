package dataset

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/krx-sync/internal/krxsync"
	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/resilience"
)

// Engine orchestrates dataset sync runs.
type Engine struct {
	reg *Registry
	env Env
}

// RunOpts configures which datasets to sync.
type RunOpts struct {
	Phase    *Phase   // restrict to a specific phase
	Datasets []string // restrict to specific dataset names
}

// NewEngine creates a new sync engine.
func NewEngine(reg *Registry, env Env) *Engine {
	return &Engine{reg: reg, env: env}
}

// Run syncs the selected datasets in registration order and records each in
// the run log. A run-scoped failure stops the engine and is returned; any
// other dataset failure is logged and the next dataset runs.
func (e *Engine) Run(ctx context.Context, opts RunOpts) error {
	log := zap.L().With(
		zap.String("component", "krxsync.engine"),
		zap.String("run_id", e.env.RunID),
		zap.String("ref_dt", krxsync.FormatBusinessDay(e.env.Day)),
	)

	datasets, err := e.reg.Select(opts.Phase, opts.Datasets)
	if err != nil {
		return err
	}

	if len(datasets) == 0 {
		log.Info("no datasets selected")
		return nil
	}

	log.Info("selected datasets", zap.Int("count", len(datasets)))

	var synced, failed int

	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "engine: run cancelled")
		}

		dsLog := log.With(zap.String("dataset", ds.Name()), zap.String("phase", ds.Phase().String()))

		dsLog.Info("starting sync")
		syncID, err := e.env.Store.StartRun(ctx, ds.Name())
		if err != nil {
			return eris.Wrapf(err, "engine: start sync log for %s", ds.Name())
		}

		start := time.Now()
		result, err := ds.Sync(ctx, e.env)
		elapsed := time.Since(start)

		if err != nil {
			dsLog.Error("sync failed",
				zap.Error(err),
				zap.String("category", resilience.Category(err)),
				zap.Duration("elapsed", elapsed),
			)
			// The run log must be written even when ctx is what failed.
			if logErr := e.env.Store.FailRun(context.WithoutCancel(ctx), syncID, err.Error()); logErr != nil {
				dsLog.Error("failed to record sync failure", zap.Error(logErr))
			}
			if resilience.IsRunScoped(err) {
				return eris.Wrapf(err, "engine: %s aborted the run", ds.Name())
			}
			failed++
			continue
		}

		if result == nil {
			result = &model.SyncResult{}
		}
		if result.Metadata == nil {
			result.Metadata = map[string]any{}
		}
		result.Metadata["run_id"] = e.env.RunID
		result.Metadata["ref_dt"] = krxsync.FormatBusinessDay(e.env.Day)

		if err := e.env.Store.CompleteRun(ctx, syncID, result); err != nil {
			dsLog.Error("failed to record sync completion", zap.Error(err))
		}

		dsLog.Info("sync complete",
			zap.Int64("rows", result.RowsSynced),
			zap.Duration("elapsed", elapsed),
		)
		synced++
	}

	log.Info("engine run complete",
		zap.Int("synced", synced),
		zap.Int("failed", failed),
	)
	return nil
}
