// Package store persists canonical KRX rows and the run log.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/krx-sync/internal/model"
)

// Mode selects how a Batch is applied to its table.
type Mode int

const (
	// ModeUpsert inserts new keys and overwrites non-key columns on conflict.
	ModeUpsert Mode = iota
	// ModeUpdate overwrites non-key columns of existing keys and never inserts.
	ModeUpdate
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeUpsert:
		return "upsert"
	case ModeUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Batch is one atomic write: either every row lands or none do.
type Batch struct {
	Table   string // schema-qualified, e.g. "krx.stock_price"
	Columns []string
	Keys    []string
	Rows    [][]any
	Mode    Mode
}

// Validate checks that the batch is well formed.
func (b Batch) Validate() error {
	if b.Table == "" {
		return eris.New("store: batch has no table")
	}
	if len(b.Columns) == 0 {
		return eris.Errorf("store: batch for %s has no columns", b.Table)
	}
	if len(b.Keys) == 0 {
		return eris.Errorf("store: batch for %s has no keys", b.Table)
	}
	for i, r := range b.Rows {
		if len(r) != len(b.Columns) {
			return eris.Errorf("store: batch for %s row %d has %d values for %d columns", b.Table, i, len(r), len(b.Columns))
		}
	}
	return nil
}

// nonKeyColumns returns Columns minus Keys, in order.
func (b Batch) nonKeyColumns() []string {
	keys := make(map[string]bool, len(b.Keys))
	for _, k := range b.Keys {
		keys[k] = true
	}
	var out []string
	for _, c := range b.Columns {
		if !keys[c] {
			out = append(out, c)
		}
	}
	return out
}

// Store defines the persistence interface for the sync pipeline.
type Store interface {
	// Schema
	Migrate(ctx context.Context) error

	// Data
	Write(ctx context.Context, b Batch) (int64, error)
	ListEntities(ctx context.Context) ([]model.Entity, error)

	// Run log
	StartRun(ctx context.Context, dataset string) (int64, error)
	CompleteRun(ctx context.Context, id int64, result *model.SyncResult) error
	FailRun(ctx context.Context, id int64, msg string) error
	ListRuns(ctx context.Context, limit int) ([]model.SyncEntry, error)
	// LastSuccess returns when dataset last completed, or nil if it never has.
	LastSuccess(ctx context.Context, dataset string) (*time.Time, error)

	// Lifecycle
	Close() error
}
