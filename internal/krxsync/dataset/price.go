package dataset

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/krx-sync/internal/krx"
	"github.com/sells-group/krx-sync/internal/krxsync/transform"
	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/store"
)

// priceKeys is the primary key of krx.stock_price.
var priceKeys = []string{transform.CodeColumn, "trd_dt"}

// Price upserts adjusted daily prices for every catalog entity.
type Price struct{}

func (d *Price) Name() string  { return "price" }
func (d *Price) Table() string { return "krx.stock_price" }
func (d *Price) Phase() Phase  { return PhasePrice }

func (d *Price) Sync(ctx context.Context, env Env) (*model.SyncResult, error) {
	return runPerEntity(ctx, env, d.loader(env))
}

func (d *Price) loader(env Env) *Loader {
	return &Loader{
		Name:   d.Name(),
		Schema: transform.AdjustedPrice,
		Table:  d.Table(),
		Keys:   priceKeys,
		Mode:   store.ModeUpsert,
		Request: func(e model.Entity) krx.Request {
			return krx.AdjustedPriceRequest(e, env.From, env.Day)
		},
		Env: env,
	}
}

// Foreign writes foreign-ownership columns onto existing price rows. Days
// without a price row are not inserted.
type Foreign struct{}

func (d *Foreign) Name() string  { return "foreign" }
func (d *Foreign) Table() string { return "krx.stock_price" }
func (d *Foreign) Phase() Phase  { return PhasePrice }

func (d *Foreign) Sync(ctx context.Context, env Env) (*model.SyncResult, error) {
	return runPerEntity(ctx, env, d.loader(env))
}

func (d *Foreign) loader(env Env) *Loader {
	return &Loader{
		Name:   d.Name(),
		Schema: transform.ForeignOwnership,
		Table:  d.Table(),
		Keys:   priceKeys,
		Mode:   store.ModeUpdate,
		Request: func(e model.Entity) krx.Request {
			return krx.ForeignOwnershipRequest(e, env.From, env.Day)
		},
		Env: env,
	}
}

// runPerEntity reads the entity catalog and runs l over it.
func runPerEntity(ctx context.Context, env Env, l *Loader) (*model.SyncResult, error) {
	entities, err := env.Store.ListEntities(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list entities", l.Name)
	}
	if len(entities) == 0 {
		zap.L().Warn("entity catalog is empty, run the catalog phase first", zap.String("dataset", l.Name))
		return &model.SyncResult{Metadata: map[string]any{"entities": 0}}, nil
	}

	report, err := l.Run(ctx, entities)
	if err != nil {
		return nil, err
	}

	return &model.SyncResult{
		RowsSynced: report.Rows,
		Metadata: map[string]any{
			"entities": len(entities),
			"written":  report.Written,
			"failed":   report.Failed,
		},
	}, nil
}
