package transform

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

// Frame is a column-named table of parsed values. A nil cell is NULL.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Index returns the position of the named column, or -1.
func (f *Frame) Index(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's values.
func (f *Frame) Column(name string) ([]any, error) {
	idx := f.Index(name)
	if idx < 0 {
		return nil, eris.Errorf("frame: unknown column %q", name)
	}
	out := make([]any, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Value returns the cell at row i of the named column.
func (f *Frame) Value(i int, name string) any {
	idx := f.Index(name)
	if idx < 0 || i < 0 || i >= len(f.Rows) {
		return nil
	}
	return f.Rows[i][idx]
}

// Set replaces the named column, appending it when absent. len(values) must
// equal the row count.
func (f *Frame) Set(name string, values []any) error {
	if len(values) != len(f.Rows) {
		return eris.Errorf("frame: column %q has %d values for %d rows", name, len(values), len(f.Rows))
	}
	idx := f.Index(name)
	if idx < 0 {
		f.Columns = append(f.Columns, name)
		for i := range f.Rows {
			f.Rows[i] = append(f.Rows[i], values[i])
		}
		return nil
	}
	for i := range f.Rows {
		f.Rows[i][idx] = values[i]
	}
	return nil
}

// Prepend inserts a constant column in front of every row.
func (f *Frame) Prepend(name string, v any) {
	f.Columns = append([]string{name}, f.Columns...)
	for i, row := range f.Rows {
		f.Rows[i] = append([]any{v}, row...)
	}
}

// SortDesc orders rows by the named date column, most recent first. Rows
// with a NULL date sort last. The sort is stable.
func (f *Frame) SortDesc(name string) error {
	idx := f.Index(name)
	if idx < 0 {
		return eris.Errorf("frame: unknown sort column %q", name)
	}
	sort.SliceStable(f.Rows, func(i, j int) bool {
		a, aok := f.Rows[i][idx].(time.Time)
		b, bok := f.Rows[j][idx].(time.Time)
		switch {
		case aok && bok:
			return a.After(b)
		default:
			return aok && !bok
		}
	})
	return nil
}

// Select returns a new frame holding only the named columns, in order.
func (f *Frame) Select(names []string) (*Frame, error) {
	idxs := make([]int, len(names))
	for i, n := range names {
		idx := f.Index(n)
		if idx < 0 {
			return nil, eris.Errorf("frame: select unknown column %q", n)
		}
		idxs[i] = idx
	}
	out := &Frame{Columns: append([]string(nil), names...), Rows: make([][]any, len(f.Rows))}
	for r, row := range f.Rows {
		sel := make([]any, len(idxs))
		for i, idx := range idxs {
			sel[i] = row[idx]
		}
		out.Rows[r] = sel
	}
	return out, nil
}
