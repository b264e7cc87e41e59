// Package transform turns decoded source tables into canonical frames:
// rename, parse, inject the entity code, derive, sort and select.
package transform

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/krx-sync/internal/fetcher"
	"github.com/sells-group/krx-sync/internal/resilience"
)

// Deriver adds or rewrites columns of a frame after renaming.
type Deriver func(f *Frame) error

// Apply converts t into the canonical shape described by s:
//  1. rename declared source columns and parse their values (others are dropped)
//  2. prepend code as cmp_cd when s.InjectCode is set
//  3. run derive in order
//  4. sort by s.DateColumn, most recent first
//  5. select s.Output in order
//
// A missing required source column fails with *resilience.SchemaMismatchError.
func Apply(s Schema, t *fetcher.Table, code string, derive ...Deriver) (*Frame, error) {
	if t == nil {
		return nil, eris.Errorf("transform %s: nil table", s.Name)
	}
	if s.InjectCode && code == "" {
		return nil, eris.Errorf("transform %s: entity code required", s.Name)
	}

	idx := make([]int, len(s.Fields))
	f := &Frame{Columns: make([]string, len(s.Fields))}
	for i, c := range s.Fields {
		f.Columns[i] = c.Name
		pos, ok := t.Index(c.Source)
		if !ok {
			if c.Required {
				return nil, &resilience.SchemaMismatchError{Schema: s.Name, Column: c.Source}
			}
			pos = -1
		}
		idx[i] = pos
	}

	f.Rows = make([][]any, 0, len(t.Records))
	for _, rec := range t.Records {
		if blank(rec) {
			continue
		}
		row := make([]any, len(s.Fields))
		for i, c := range s.Fields {
			if p := idx[i]; p >= 0 && p < len(rec) {
				row[i] = ParseValue(c.Kind, rec[p])
			}
		}
		f.Rows = append(f.Rows, row)
	}

	if s.InjectCode {
		f.Prepend(CodeColumn, code)
	}

	for _, d := range derive {
		if err := d(f); err != nil {
			return nil, eris.Wrapf(err, "transform %s: derive", s.Name)
		}
	}

	if s.DateColumn != "" {
		if err := f.SortDesc(s.DateColumn); err != nil {
			return nil, eris.Wrapf(err, "transform %s", s.Name)
		}
	}

	out, err := f.Select(s.Output)
	if err != nil {
		return nil, eris.Wrapf(err, "transform %s", s.Name)
	}
	return out, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}

// Const sets name to v on every row.
func Const(name string, v any) Deriver {
	return func(f *Frame) error {
		vals := make([]any, f.Len())
		for i := range vals {
			vals[i] = v
		}
		return f.Set(name, vals)
	}
}

// ConstDate sets name to the calendar date of t on every row.
func ConstDate(name string, t time.Time) Deriver {
	return Const(name, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

// ClassifyColumn sets dst to the GICS code of the label in src.
func ClassifyColumn(src, dst string) Deriver {
	return func(f *Frame) error {
		labels, err := f.Column(src)
		if err != nil {
			return err
		}
		codes := make([]any, len(labels))
		for i, l := range labels {
			s, _ := l.(string)
			codes[i] = Classify(s)
		}
		return f.Set(dst, codes)
	}
}

// GroupShareColumn sets dst to each row's percentage of measure within its
// group. Undefined shares are NULL.
func GroupShareColumn(group, measure, dst string) Deriver {
	return func(f *Frame) error {
		gs, err := f.Column(group)
		if err != nil {
			return err
		}
		ms, err := f.Column(measure)
		if err != nil {
			return err
		}
		groups := make([]string, len(gs))
		measures := make([]*float64, len(ms))
		for i := range gs {
			groups[i], _ = gs[i].(string)
			if v, ok := AsFloat(ms[i]); ok {
				measures[i] = &v
			}
		}
		shares := GroupShares(groups, measures)
		vals := make([]any, len(shares))
		for i, s := range shares {
			if s != nil {
				vals[i] = *s
			}
		}
		return f.Set(dst, vals)
	}
}

// Lookup sets dst from table keyed by the value of key. Keys without an
// entry are NULL.
func Lookup(key, dst string, table map[string]any) Deriver {
	return func(f *Frame) error {
		keys, err := f.Column(key)
		if err != nil {
			return err
		}
		vals := make([]any, len(keys))
		for i, k := range keys {
			s, _ := k.(string)
			vals[i] = table[s]
		}
		return f.Set(dst, vals)
	}
}
