package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. Schema-qualified
// table names map to flat ones: "krx.stock_price" is stored as krx_stock_price.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them in force and
	// serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS krx_stock_sector (
	cmp_cd     TEXT PRIMARY KEY,
	cmp_nm     TEXT,
	mkt_cap    INTEGER,
	mkt_type   TEXT,
	gics_cd    TEXT,
	mkt_cap_rt REAL,
	ref_dt     TEXT
);

CREATE TABLE IF NOT EXISTS krx_stock_ticker (
	cmp_cd     TEXT PRIMARY KEY,
	isin_cd    TEXT,
	cmp_nm     TEXT,
	mkt_type   TEXT,
	gics_cd    TEXT,
	mkt_cap_rt REAL,
	ref_dt     TEXT
);

CREATE TABLE IF NOT EXISTS krx_stock_price (
	cmp_cd      TEXT NOT NULL,
	trd_dt      TEXT NOT NULL,
	cls_prc     INTEGER CHECK (cls_prc BETWEEN -2147483648 AND 2147483647),
	prc_chg     INTEGER CHECK (prc_chg BETWEEN -2147483648 AND 2147483647),
	fluc_rt     REAL,
	opn_prc     INTEGER CHECK (opn_prc BETWEEN -2147483648 AND 2147483647),
	high_prc    INTEGER CHECK (high_prc BETWEEN -2147483648 AND 2147483647),
	low_prc     INTEGER CHECK (low_prc BETWEEN -2147483648 AND 2147483647),
	trd_vol     INTEGER,
	trd_amt     INTEGER,
	mkt_cap     INTEGER,
	list_shr    INTEGER,
	frg_hld_shr INTEGER,
	frg_own_rt  REAL,
	frg_lmt_shr INTEGER,
	frg_lmt_rt  REAL,
	PRIMARY KEY (cmp_cd, trd_dt)
);

CREATE TABLE IF NOT EXISTS krx_sync_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset      TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	rows_synced  INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_stock_ticker_mkt_type ON krx_stock_ticker(mkt_type);
CREATE INDEX IF NOT EXISTS idx_stock_price_trd_dt ON krx_stock_price(trd_dt);
CREATE INDEX IF NOT EXISTS idx_sync_log_dataset ON krx_sync_log(dataset, started_at);
`

// Migrate creates the tables if absent. Nothing is ever dropped.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// TableName maps a schema-qualified table to its SQLite name.
func TableName(table string) string {
	return strings.ReplaceAll(table, ".", "_")
}

const (
	sqliteDateLayout = "2006-01-02"
	sqliteTimeLayout = time.RFC3339Nano
)

// sqliteValue converts dates to ISO text so keys compare byte-for-byte.
func sqliteValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(sqliteDateLayout)
	}
	return v
}

// Write applies b in a single transaction. Any failing row rolls back the batch.
func (s *SQLiteStore) Write(ctx context.Context, b Batch) (int64, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	if len(b.Rows) == 0 {
		return 0, nil
	}

	query, order, err := sqliteStatement(b)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare %s", b.Mode)
	}
	defer stmt.Close() //nolint:errcheck

	var affected int64
	args := make([]any, len(order))
	for _, row := range b.Rows {
		for i, idx := range order {
			args[i] = sqliteValue(row[idx])
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, eris.Wrapf(classifySQLite(err, b.Table), "sqlite: %s %s", b.Mode, b.Table)
		}
		n, _ := res.RowsAffected()
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return affected, nil
}

// sqliteStatement builds the statement for b and the column index order of
// its placeholders.
func sqliteStatement(b Batch) (string, []int, error) {
	pos := make(map[string]int, len(b.Columns))
	for i, c := range b.Columns {
		pos[c] = i
	}
	for _, k := range b.Keys {
		if _, ok := pos[k]; !ok {
			return "", nil, eris.Errorf("sqlite: key %q not among columns of %s", k, b.Table)
		}
	}
	nonKey := b.nonKeyColumns()
	table := TableName(b.Table)

	switch b.Mode {
	case ModeUpsert:
		order := make([]int, len(b.Columns))
		marks := make([]string, len(b.Columns))
		for i := range b.Columns {
			order[i] = i
			marks[i] = "?"
		}
		action := "DO NOTHING"
		if len(nonKey) > 0 {
			sets := make([]string, len(nonKey))
			for i, c := range nonKey {
				sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
			}
			action = "DO UPDATE SET " + strings.Join(sets, ", ")
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
			table, strings.Join(b.Columns, ", "), strings.Join(marks, ", "), strings.Join(b.Keys, ", "), action,
		), order, nil

	case ModeUpdate:
		if len(nonKey) == 0 {
			return "", nil, eris.Errorf("sqlite: update of %s has no columns to update", b.Table)
		}
		var order []int
		sets := make([]string, len(nonKey))
		for i, c := range nonKey {
			sets[i] = c + " = ?"
			order = append(order, pos[c])
		}
		conds := make([]string, len(b.Keys))
		for i, k := range b.Keys {
			conds[i] = k + " = ?"
			order = append(order, pos[k])
		}
		return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			table, strings.Join(sets, ", "), strings.Join(conds, " AND "),
		), order, nil

	default:
		return "", nil, eris.Errorf("sqlite: unknown write mode %d", b.Mode)
	}
}

// classifySQLite maps CHECK bound violations to NumericRangeError.
func classifySQLite(err error, table string) error {
	if err != nil && strings.Contains(err.Error(), "CHECK constraint failed") {
		return &resilience.NumericRangeError{Table: table, Err: err}
	}
	return err
}

// ListEntities returns the entity catalog ordered by code.
func (s *SQLiteStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cmp_cd, isin_cd, cmp_nm, mkt_type, gics_cd, mkt_cap_rt, ref_dt
		 FROM krx_stock_ticker ORDER BY cmp_cd`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Entity
	for rows.Next() {
		var (
			e                  model.Entity
			isin, name, market sql.NullString
			gics, refDt        sql.NullString
			share              sql.NullFloat64
		)
		if err := rows.Scan(&e.Code, &isin, &name, &market, &gics, &share, &refDt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		e.ISIN = isin.String
		e.Name = name.String
		e.Market = model.Market(market.String)
		if gics.Valid {
			g := gics.String
			e.GICSCode = &g
		}
		if share.Valid {
			v := share.Float64
			e.GroupShare = &v
		}
		if refDt.Valid {
			if t, err := time.Parse(sqliteDateLayout, refDt.String); err == nil {
				e.ReferenceDate = t
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate entities")
}

// StartRun records the start of a dataset sync.
func (s *SQLiteStore) StartRun(ctx context.Context, dataset string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO krx_sync_log (dataset, status, started_at) VALUES (?, ?, ?)`,
		dataset, string(model.RunStatusRunning), time.Now().UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start run for %s", dataset)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: run id")
}

// CompleteRun marks a dataset sync complete.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id int64, result *model.SyncResult) error {
	var (
		rowsSynced int64
		meta       *string
	)
	if result != nil {
		rowsSynced = result.RowsSynced
		if result.Metadata != nil {
			data, err := json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal metadata")
			}
			m := string(data)
			meta = &m
		}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE krx_sync_log SET status = ?, completed_at = ?, rows_synced = ?, metadata = ? WHERE id = ?`,
		string(model.RunStatusComplete), time.Now().UTC().Format(sqliteTimeLayout), rowsSynced, meta, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %d", id)
	}
	return checkRowsAffected(res, id)
}

// FailRun marks a dataset sync failed.
func (s *SQLiteStore) FailRun(ctx context.Context, id int64, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE krx_sync_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.RunStatusFailed), time.Now().UTC().Format(sqliteTimeLayout), msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %d", id)
	}
	return checkRowsAffected(res, id)
}

// ListRuns returns up to limit run log entries, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.SyncEntry, error) {
	query := `SELECT id, dataset, status, started_at, completed_at, rows_synced, error, metadata
		FROM krx_sync_log ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SyncEntry
	for rows.Next() {
		var (
			e                       model.SyncEntry
			status, started         string
			completed, errMsg, meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Dataset, &status, &started, &completed, &e.RowsSynced, &errMsg, &meta); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		e.Status = model.RunStatus(status)
		e.StartedAt, _ = time.Parse(sqliteTimeLayout, started)
		if completed.Valid {
			if t, err := time.Parse(sqliteTimeLayout, completed.String); err == nil {
				e.CompletedAt = &t
			}
		}
		e.Error = errMsg.String
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// LastSuccess returns the start of the most recent completed run of dataset.
func (s *SQLiteStore) LastSuccess(ctx context.Context, dataset string) (*time.Time, error) {
	var started string
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at FROM krx_sync_log
		 WHERE dataset = ? AND status = ?
		 ORDER BY id DESC LIMIT 1`,
		dataset, string(model.RunStatusComplete),
	).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last success for %s", dataset)
	}
	t, err := time.Parse(sqliteTimeLayout, started)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse started_at %q", started)
	}
	return &t, nil
}

func checkRowsAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %d not found", id)
	}
	return nil
}
