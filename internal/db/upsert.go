package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a bulk upsert or update operation.
type UpsertConfig struct {
	Table        string   // target table (e.g., "krx.stock_price")
	Columns      []string // all columns being written
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

func (cfg UpsertConfig) validate() error {
	if len(cfg.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (cfg UpsertConfig) updateColumns() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflictSet[k] = true
	}
	var cols []string
	for _, c := range cfg.Columns {
		if !conflictSet[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// BulkUpsert performs a bulk upsert via a temp table and INSERT ... ON CONFLICT.
// 1. Creates a temp table with the target's column types
// 2. COPY rows into the temp table
// 3. Deletes duplicate keys from the temp table, keeping the last copy
// 4. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE SET ...
// All steps share one transaction, so a failure leaves no rows behind.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	var setClauses []string
	for _, col := range cfg.updateColumns() {
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", pgx.Identifier{col}.Sanitize(), pgx.Identifier{col}.Sanitize()))
	}

	return inTempTable(ctx, pool, "upsert", cfg, rows, func(tempTable string) string {
		colList := quoteAndJoin(cfg.Columns)
		action := "DO NOTHING"
		if len(setClauses) > 0 {
			action = "DO UPDATE SET " + strings.Join(setClauses, ", ")
		}
		return fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
			sanitizeTable(cfg.Table),
			colList,
			colList,
			tempTable,
			quoteAndJoin(cfg.ConflictKeys),
			action,
		)
	})
}

// BulkUpdate updates the UpdateCols of existing target rows matched on
// ConflictKeys. Rows with no matching key are ignored; nothing is inserted.
func BulkUpdate(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	updateCols := cfg.updateColumns()
	if len(updateCols) == 0 {
		return 0, eris.New("db: update: no columns to update")
	}

	return inTempTable(ctx, pool, "update", cfg, rows, func(tempTable string) string {
		sets := make([]string, len(updateCols))
		for i, col := range updateCols {
			c := pgx.Identifier{col}.Sanitize()
			sets[i] = fmt.Sprintf("%s = s.%s", c, c)
		}
		conds := make([]string, len(cfg.ConflictKeys))
		for i, key := range cfg.ConflictKeys {
			k := pgx.Identifier{key}.Sanitize()
			conds[i] = fmt.Sprintf("t.%s = s.%s", k, k)
		}
		return fmt.Sprintf(
			"UPDATE %s AS t SET %s FROM %s AS s WHERE %s",
			sanitizeTable(cfg.Table),
			strings.Join(sets, ", "),
			tempTable,
			strings.Join(conds, " AND "),
		)
	})
}

// inTempTable stages rows in a transaction-scoped temp table and runs the
// statement built by apply against it.
func inTempTable(ctx context.Context, pool Pool, op string, cfg UpsertConfig, rows [][]any, apply func(tempTable string) string) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: %s: begin tx", op)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempName := fmt.Sprintf("_tmp_%s_%s", op, strings.ReplaceAll(cfg.Table, ".", "_"))
	tempTable := pgx.Identifier{tempName}.Sanitize()

	// Column types only; constraints stay on the target.
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WITH NO DATA",
		tempTable,
		quoteAndJoin(cfg.Columns),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: %s: create temp table for %s", op, cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempName}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(classify(err, cfg.Table), "db: %s: COPY into temp table for %s", op, cfg.Table)
	}

	conds := make([]string, len(cfg.ConflictKeys))
	for i, key := range cfg.ConflictKeys {
		k := pgx.Identifier{key}.Sanitize()
		conds[i] = fmt.Sprintf("a.%s = b.%s", k, k)
	}
	dedupSQL := fmt.Sprintf(
		"DELETE FROM %s a USING %s b WHERE a.ctid < b.ctid AND %s",
		tempTable, tempTable, strings.Join(conds, " AND "),
	)
	if _, err := tx.Exec(ctx, dedupSQL); err != nil {
		return 0, eris.Wrapf(err, "db: %s: dedup temp table for %s", op, cfg.Table)
	}

	tag, err := tx.Exec(ctx, apply(tempTable))
	if err != nil {
		return 0, eris.Wrapf(classify(err, cfg.Table), "db: %s: apply to %s", op, cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: %s: commit tx", op)
	}

	return tag.RowsAffected(), nil
}

// sanitizeTable handles schema-qualified table names like "krx.stock_price".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
