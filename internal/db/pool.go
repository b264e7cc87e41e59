// Package db provides shared Postgres helpers for bulk upsert and update operations.
package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sells-group/krx-sync/internal/resilience"
)

// Pool is the subset of *pgxpool.Pool used by the store. pgxmock pools satisfy it too.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// sqlStateNumericOutOfRange is numeric_value_out_of_range.
const sqlStateNumericOutOfRange = "22003"

// classify converts Postgres errors the pipeline isolates per entity into
// their typed form. Other errors are returned unchanged. COPY encodes values
// client-side, so pgx reports int overflow before the server sees it.
func classify(err error, table string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateNumericOutOfRange {
		return &resilience.NumericRangeError{Table: table, Err: err}
	}
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "greater than maximum value for") || strings.Contains(msg, "less than minimum value for") {
			return &resilience.NumericRangeError{Table: table, Err: err}
		}
	}
	return err
}
