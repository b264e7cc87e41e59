package dataset

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/krx-sync/internal/fetcher"
	"github.com/sells-group/krx-sync/internal/krx"
	"github.com/sells-group/krx-sync/internal/krxsync/transform"
	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/store"
)

// fetchSnapshot downloads the sector snapshot of every market for env.Day
// and concatenates them into one table.
func fetchSnapshot(ctx context.Context, env Env) (*fetcher.Table, error) {
	all := &fetcher.Table{}
	for _, m := range model.Markets {
		t, err := env.Source.Fetch(ctx, krx.SectorRequest(m, env.Day))
		if err != nil {
			return nil, eris.Wrapf(err, "sector snapshot %s", m)
		}
		zap.L().Debug("fetched sector snapshot",
			zap.String("market", string(m)),
			zap.Int("rows", t.Len()),
		)
		if err := all.Concat(t); err != nil {
			return nil, eris.Wrapf(err, "sector snapshot %s", m)
		}
	}
	return all, nil
}

// marketColumn rewrites name to the canonical market of each row. Labels
// ParseMarket does not know are kept as published.
func marketColumn(name string) transform.Deriver {
	return func(f *transform.Frame) error {
		labels, err := f.Column(name)
		if err != nil {
			return err
		}
		vals := make([]any, len(labels))
		for i, l := range labels {
			s, _ := l.(string)
			m, err := model.ParseMarket(s)
			if err != nil {
				zap.L().Debug("unrecognised market label", zap.String("label", s))
				vals[i] = l
				continue
			}
			vals[i] = string(m)
		}
		return f.Set(name, vals)
	}
}

// catalogDerivers normalises the market label, classifies each row, computes its share of the group's
// market cap across both markets and stamps the reference date.
func catalogDerivers(env Env) []transform.Deriver {
	return []transform.Deriver{
		marketColumn("mkt_type"),
		transform.ClassifyColumn("sec_nm", "gics_cd"),
		transform.GroupShareColumn("gics_cd", "mkt_cap", "mkt_cap_rt"),
		transform.ConstDate("ref_dt", env.Day),
	}
}

// writeCatalog upserts f into table keyed by cmp_cd as one batch.
func writeCatalog(ctx context.Context, env Env, table string, f *transform.Frame) (int64, error) {
	if f.Len() == 0 {
		return 0, nil
	}
	return env.Store.Write(ctx, store.Batch{
		Table:   table,
		Columns: f.Columns,
		Keys:    []string{transform.CodeColumn},
		Rows:    f.Rows,
		Mode:    store.ModeUpsert,
	})
}
