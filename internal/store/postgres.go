package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/krx-sync/internal/db"
	"github.com/sells-group/krx-sync/internal/krxsync"
	"github.com/sells-group/krx-sync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	syncLog *krxsync.SyncLog
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, syncLog: krxsync.NewSyncLog(pool), closeFn: closeFn}
}

// Migrate applies the embedded krx schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return krxsync.Migrate(ctx, s.pool)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Write applies b in a single transaction via a COPY-staged temp table.
func (s *PostgresStore) Write(ctx context.Context, b Batch) (int64, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	cfg := db.UpsertConfig{
		Table:        b.Table,
		Columns:      b.Columns,
		ConflictKeys: b.Keys,
	}
	switch b.Mode {
	case ModeUpsert:
		return db.BulkUpsert(ctx, s.pool, cfg, b.Rows)
	case ModeUpdate:
		return db.BulkUpdate(ctx, s.pool, cfg, b.Rows)
	default:
		return 0, eris.Errorf("postgres: unknown write mode %d", b.Mode)
	}
}

// ListEntities returns the entity catalog ordered by code.
func (s *PostgresStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cmp_cd, isin_cd, cmp_nm, mkt_type, gics_cd, mkt_cap_rt::float8, ref_dt
		 FROM krx.stock_ticker ORDER BY cmp_cd`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var (
			e      model.Entity
			isin   *string
			name   *string
			market *string
			refDt  *time.Time
		)
		if err := rows.Scan(&e.Code, &isin, &name, &market, &e.GICSCode, &e.GroupShare, &refDt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		if isin != nil {
			e.ISIN = *isin
		}
		if name != nil {
			e.Name = *name
		}
		if market != nil {
			e.Market = model.Market(*market)
		}
		if refDt != nil {
			e.ReferenceDate = *refDt
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate entities")
}

// StartRun records the start of a dataset sync.
func (s *PostgresStore) StartRun(ctx context.Context, dataset string) (int64, error) {
	return s.syncLog.Start(ctx, dataset)
}

// CompleteRun marks a dataset sync complete.
func (s *PostgresStore) CompleteRun(ctx context.Context, id int64, result *model.SyncResult) error {
	return s.syncLog.Complete(ctx, id, result)
}

// FailRun marks a dataset sync failed.
func (s *PostgresStore) FailRun(ctx context.Context, id int64, msg string) error {
	return s.syncLog.Fail(ctx, id, msg)
}

// LastSuccess returns when dataset last completed, or nil if it never has.
func (s *PostgresStore) LastSuccess(ctx context.Context, dataset string) (*time.Time, error) {
	return s.syncLog.LastSuccess(ctx, dataset)
}

// ListRuns returns the most recent run log entries.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.SyncEntry, error) {
	return s.syncLog.List(ctx, limit)
}
