package krxsync

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
)

// Ledger columns for failed-entity records.
var LedgerColumns = []string{"cmp_cd", "cmp_nm", "trd_dt"}

// Failure is one failed-entity record.
type Failure struct {
	Code string
	Name string
	Date string
}

func (f Failure) value(column string) string {
	switch column {
	case "cmp_cd":
		return f.Code
	case "cmp_nm":
		return f.Name
	case "trd_dt":
		return f.Date
	default:
		return ""
	}
}

// Ledger appends failure records to per-category CSV files under Dir.
// Existing content is never truncated or rewritten.
type Ledger struct {
	Dir string
	mu  sync.Mutex
}

// NewLedger creates a Ledger writing into dir.
func NewLedger(dir string) *Ledger {
	return &Ledger{Dir: dir}
}

// Path returns the file backing the named ledger.
func (l *Ledger) Path(name string) string {
	return filepath.Join(l.Dir, name+".csv")
}

// Append writes failures to <Dir>/<name>.csv. The header row is written only
// when the file is created. Empty input is a no-op.
func (l *Ledger) Append(failures []Failure, name string, columns []string) error {
	if len(failures) == 0 {
		return nil
	}
	if name == "" {
		return eris.New("ledger: empty name")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return eris.Wrapf(err, "ledger: create dir %s", l.Dir)
	}

	path := l.Path(name)
	fresh := false
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		fresh = true
	case err != nil:
		return eris.Wrapf(err, "ledger: stat %s", path)
	case info.Size() == 0:
		fresh = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s", path)
	}

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(columns); err != nil {
			_ = f.Close()
			return eris.Wrapf(err, "ledger: write header %s", path)
		}
	}
	row := make([]string, len(columns))
	for _, failure := range failures {
		for i, c := range columns {
			row[i] = failure.value(c)
		}
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return eris.Wrapf(err, "ledger: write %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "ledger: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "ledger: close %s", path)
}
