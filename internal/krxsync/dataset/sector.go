package dataset

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/krx-sync/internal/krxsync/transform"
	"github.com/sells-group/krx-sync/internal/model"
)

// Sector syncs the per-market sector snapshot into krx.stock_sector.
type Sector struct{}

func (d *Sector) Name() string  { return "sector" }
func (d *Sector) Table() string { return "krx.stock_sector" }
func (d *Sector) Phase() Phase  { return PhaseCatalog }

func (d *Sector) Sync(ctx context.Context, env Env) (*model.SyncResult, error) {
	t, err := fetchSnapshot(ctx, env)
	if err != nil {
		return nil, err
	}

	f, err := transform.Apply(transform.Sector, t, "", catalogDerivers(env)...)
	if err != nil {
		return nil, eris.Wrap(err, "sector")
	}

	n, err := writeCatalog(ctx, env, d.Table(), f)
	if err != nil {
		return nil, eris.Wrap(err, "sector: write")
	}

	return &model.SyncResult{
		RowsSynced: n,
		Metadata:   map[string]any{"entities": f.Len()},
	}, nil
}
