package dataset

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/krx-sync/internal/krx"
	"github.com/sells-group/krx-sync/internal/krxsync"
	"github.com/sells-group/krx-sync/internal/krxsync/transform"
	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/resilience"
	"github.com/sells-group/krx-sync/internal/store"
)

// EntityState tracks one entity through a loader run.
type EntityState int

const (
	StatePending EntityState = iota
	StateFetched
	StateTransformed
	StateWritten
	StateFailed
)

// String returns the state name.
func (s EntityState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetched:
		return "fetched"
	case StateTransformed:
		return "transformed"
	case StateWritten:
		return "written"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ledgerDateLayout is the trd_dt format of ledger records.
const ledgerDateLayout = "2006-01-02"

// maxViolationFields caps the out-of-range values attached to one log line.
const maxViolationFields = 10

// EntityResult is the outcome of one entity.
type EntityResult struct {
	Entity model.Entity
	State  EntityState
	Rows   int64
	Latest time.Time // most recent trd_dt seen, zero when nothing was transformed
	Err    error
}

// LoadReport summarizes a loader run. Results are in input order; entities
// never started because the run aborted stay pending.
type LoadReport struct {
	Results []EntityResult
	Written int
	Failed  int
	Rows    int64
}

// Loader fetches, transforms and writes one dataset entity by entity. Each
// entity is written as one batch, so a failure rolls back only that entity.
type Loader struct {
	Name    string // dataset name, also the ledger prefix
	Schema  transform.Schema
	Table   string
	Keys    []string
	Mode    store.Mode
	Request func(e model.Entity) krx.Request
	Env     Env
}

// Run loads every entity. Entity-scoped failures are logged, recorded in the
// ledger and skipped. A run-scoped failure stops new entities from starting
// and is returned once in-flight ones finish. The ledger is flushed on every
// exit path.
func (l *Loader) Run(ctx context.Context, entities []model.Entity) (report *LoadReport, err error) {
	log := zap.L().With(
		zap.String("component", "krxsync.loader"),
		zap.String("dataset", l.Name),
	)

	report = &LoadReport{Results: make([]EntityResult, len(entities))}
	for i, e := range entities {
		report.Results[i] = EntityResult{Entity: e, State: StatePending}
	}

	defer func() {
		if flushErr := l.flush(report); flushErr != nil {
			log.Error("failed to flush error ledger", zap.Error(flushErr))
			if err == nil {
				err = flushErr
			}
		}
	}()

	limit := l.Env.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	total := len(entities)
	var done atomic.Int64

	for i, e := range entities {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			res := l.load(gctx, e, log)
			report.Results[i] = res
			n := done.Add(1)

			entLog := log.With(
				zap.String("cmp_cd", e.Code),
				zap.String("cmp_nm", e.Name),
				zap.String("progress", fmt.Sprintf("%d/%d", n, total)),
			)

			if res.Err != nil {
				if resilience.IsRunScoped(res.Err) {
					entLog.Error("run-scoped failure, aborting", zap.Error(res.Err))
					return res.Err
				}
				entLog.Error("entity failed",
					zap.Error(res.Err),
					zap.String("category", resilience.Category(res.Err)),
				)
				return nil
			}

			entLog.Info("entity loaded", zap.Int64("rows", res.Rows))
			return nil
		})
	}

	waitErr := g.Wait()

	for _, r := range report.Results {
		switch r.State {
		case StateWritten:
			report.Written++
			report.Rows += r.Rows
		case StateFailed:
			report.Failed++
		}
	}

	if waitErr != nil {
		return report, eris.Wrapf(waitErr, "loader %s: run aborted", l.Name)
	}
	if err := ctx.Err(); err != nil {
		return report, eris.Wrapf(err, "loader %s: run cancelled", l.Name)
	}

	log.Info("loader complete",
		zap.Int("entities", total),
		zap.Int("written", report.Written),
		zap.Int("failed", report.Failed),
		zap.Int64("rows", report.Rows),
	)
	return report, nil
}

// load moves one entity from pending to written or failed.
func (l *Loader) load(ctx context.Context, e model.Entity, log *zap.Logger) EntityResult {
	res := EntityResult{Entity: e, State: StatePending}
	fail := func(err error) EntityResult {
		res.State = StateFailed
		res.Err = err
		return res
	}

	table, err := l.Env.Source.Fetch(ctx, l.Request(e))
	if err != nil {
		return fail(eris.Wrapf(err, "fetch %s", e.Code))
	}
	res.State = StateFetched

	frame, err := transform.Apply(l.Schema, table, e.Code)
	if err != nil {
		return fail(eris.Wrapf(err, "transform %s", e.Code))
	}
	res.State = StateTransformed
	if l.Schema.DateColumn != "" && frame.Len() > 0 {
		if t, ok := frame.Value(0, l.Schema.DateColumn).(time.Time); ok {
			res.Latest = t
		}
	}

	if frame.Len() == 0 {
		res.State = StateWritten
		return res
	}

	violations := transform.Violations(l.Schema, frame)

	n, err := l.Env.Store.Write(ctx, store.Batch{
		Table:   l.Table,
		Columns: frame.Columns,
		Keys:    l.Keys,
		Rows:    frame.Rows,
		Mode:    l.Mode,
	})
	if err != nil {
		if len(violations) > 0 {
			log.Warn("values outside declared bounds",
				zap.String("cmp_cd", e.Code),
				zap.Strings("out_of_range", describeViolations(l.Schema, frame, violations)),
			)
		}
		return fail(eris.Wrapf(err, "write %s", e.Code))
	}

	res.Rows = n
	res.State = StateWritten
	return res
}

// flush appends every entity-scoped failure to <dataset>_<category>.
func (l *Loader) flush(report *LoadReport) error {
	if l.Env.Ledger == nil {
		return nil
	}

	byCategory := make(map[string][]krxsync.Failure)
	for _, r := range report.Results {
		if r.State != StateFailed || resilience.IsRunScoped(r.Err) {
			continue
		}
		date := r.Latest
		if date.IsZero() {
			date = l.Env.Day
		}
		cat := resilience.Category(r.Err)
		byCategory[cat] = append(byCategory[cat], krxsync.Failure{
			Code: r.Entity.Code,
			Name: r.Entity.Name,
			Date: date.Format(ledgerDateLayout),
		})
	}

	cats := make([]string, 0, len(byCategory))
	for c := range byCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	for _, c := range cats {
		if err := l.Env.Ledger.Append(byCategory[c], l.Name+"_"+c, krxsync.LedgerColumns); err != nil {
			return eris.Wrapf(err, "loader %s: ledger %s", l.Name, c)
		}
	}
	return nil
}

func describeViolations(s transform.Schema, f *transform.Frame, vs []transform.Violation) []string {
	out := make([]string, 0, min(len(vs), maxViolationFields))
	for i, v := range vs {
		if i == maxViolationFields {
			out = append(out, fmt.Sprintf("... %d more", len(vs)-i))
			break
		}
		at := ""
		if s.DateColumn != "" {
			if t, ok := f.Value(v.Row, s.DateColumn).(time.Time); ok {
				at = " on " + t.Format(ledgerDateLayout)
			}
		}
		out = append(out, fmt.Sprintf("%s=%d%s (allowed %d..%d)", v.Column, v.Value, at, v.Min, v.Max))
	}
	return out
}
