package dataset

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/krx-sync/internal/krx"
	"github.com/sells-group/krx-sync/internal/krxsync"
	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/store"
)

// Phase groups datasets that are run together.
type Phase int

const (
	PhaseCatalog Phase = iota + 1 // entity catalog: sector snapshot and ticker list
	PhasePrice                    // per-entity time series
)

// String returns the human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCatalog:
		return "catalog"
	case PhasePrice:
		return "price"
	default:
		return "unknown"
	}
}

// ParsePhase converts "catalog" or "price" into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "catalog":
		return PhaseCatalog, nil
	case "price":
		return PhasePrice, nil
	default:
		return 0, eris.Errorf("unknown phase: %q (valid: catalog, price)", s)
	}
}

// Env carries the run-scoped collaborators every dataset needs.
type Env struct {
	Store       store.Store
	Source      krx.Source
	Ledger      *krxsync.Ledger
	Day         time.Time // reference business day
	From        time.Time // start of the price history window
	Concurrency int       // per-entity workers; <= 1 is sequential
	RunID       string
}

// Dataset defines the interface each KRX dataset must implement.
type Dataset interface {
	// Name returns the unique identifier for this dataset (e.g., "sector", "price").
	Name() string

	// Table returns the target table (e.g., "krx.stock_price").
	Table() string

	// Phase returns which phase this dataset belongs to.
	Phase() Phase

	// Sync fetches, transforms and writes the dataset.
	Sync(ctx context.Context, env Env) (*model.SyncResult, error)
}
