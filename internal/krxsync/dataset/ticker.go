package dataset

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/krx-sync/internal/krx"
	"github.com/sells-group/krx-sync/internal/krxsync/transform"
	"github.com/sells-group/krx-sync/internal/model"
)

// Ticker builds the entity catalog in krx.stock_ticker: the sector snapshot
// joined with the ISIN list on the short code.
type Ticker struct{}

func (d *Ticker) Name() string  { return "ticker" }
func (d *Ticker) Table() string { return "krx.stock_ticker" }
func (d *Ticker) Phase() Phase  { return PhaseCatalog }

func (d *Ticker) Sync(ctx context.Context, env Env) (*model.SyncResult, error) {
	isins, err := d.isinTable(ctx, env)
	if err != nil {
		return nil, err
	}

	t, err := fetchSnapshot(ctx, env)
	if err != nil {
		return nil, err
	}

	derive := append(catalogDerivers(env), transform.Lookup(transform.CodeColumn, "isin_cd", isins))
	f, err := transform.Apply(transform.Ticker, t, "", derive...)
	if err != nil {
		return nil, eris.Wrap(err, "ticker")
	}

	n, err := writeCatalog(ctx, env, d.Table(), f)
	if err != nil {
		return nil, eris.Wrap(err, "ticker: write")
	}

	return &model.SyncResult{
		RowsSynced: n,
		Metadata: map[string]any{
			"entities": f.Len(),
			"isins":    len(isins),
		},
	}, nil
}

// isinTable maps short code to standard code.
func (d *Ticker) isinTable(ctx context.Context, env Env) (map[string]any, error) {
	t, err := env.Source.Fetch(ctx, krx.ISINRequest())
	if err != nil {
		return nil, eris.Wrap(err, "ticker: isin list")
	}
	f, err := transform.Apply(transform.ISIN, t, "")
	if err != nil {
		return nil, eris.Wrap(err, "ticker: isin list")
	}
	out := make(map[string]any, f.Len())
	for i := range f.Len() {
		code, _ := f.Value(i, transform.CodeColumn).(string)
		isin, _ := f.Value(i, "isin_cd").(string)
		if code != "" && isin != "" {
			out[code] = isin
		}
	}
	return out, nil
}
