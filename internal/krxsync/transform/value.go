package transform

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the value type of a canonical column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindDate
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

var dateLayouts = []string{"2006/01/02", "2006-01-02", "20060102", "2006.01.02"}

// ParseValue converts a raw source cell into the Go value for k: string,
// int64, float64 or time.Time. Empty cells, the "-" placeholder and cells
// that do not parse all yield nil.
func ParseValue(k Kind, raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return nil
	}
	switch k {
	case KindText:
		return s
	case KindInt:
		return parseInt(s)
	case KindFloat:
		return parseFloat(s)
	case KindDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		return nil
	default:
		return nil
	}
}

func cleanNumber(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	return strings.TrimPrefix(s, "+")
}

func parseInt(s string) any {
	s = cleanNumber(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// Some screens render integer columns as "1234.0".
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	if f >= 1<<63 || f < -(1<<63) {
		return nil
	}
	return int64(f)
}

func parseFloat(s string) any {
	f, err := strconv.ParseFloat(cleanNumber(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// AsFloat returns v as a float64 when it holds a number.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
