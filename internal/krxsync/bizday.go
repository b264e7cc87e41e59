package krxsync

import (
	"time"

	"github.com/rotisserie/eris"
)

// DayLayout is the YYYYMMDD form used in source requests and CLI flags.
const DayLayout = "20060102"

// ResolveBusinessDay returns the most recent weekday on or before t.
// Saturday maps to Friday and Sunday to the Friday before it. Exchange
// holidays are not considered.
func ResolveBusinessDay(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, -2)
	default:
		return t
	}
}

// FormatBusinessDay renders t as YYYYMMDD.
func FormatBusinessDay(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseBusinessDay parses a YYYYMMDD string in UTC.
func ParseBusinessDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "krxsync: parse day %q (want YYYYMMDD)", s)
	}
	return t, nil
}
