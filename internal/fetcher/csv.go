// Package fetcher downloads tabular payloads and parses them into rows.
package fetcher

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune              // default ','
	HasHeader  bool              // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string   // optional: receives the header row
	Comment    rune              // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
	Encoding   encoding.Encoding // source charset; nil = UTF-8
}

// StreamCSV reads a CSV file and sends rows to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		if opts.Encoding != nil {
			r = opts.Encoding.NewDecoder().Reader(r)
		}
		reader := csv.NewReader(r)

		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if first {
				record[0] = strings.TrimPrefix(record[0], "\ufeff")
			}
			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// Table is a fully materialized CSV payload: one header row plus records.
type Table struct {
	Header  []string
	Records [][]string
}

// Index returns the position of the named header column.
func (t *Table) Index(name string) (int, bool) {
	for i, h := range t.Header {
		if h == name {
			return i, true
		}
	}
	return -1, false
}

// Len returns the number of data records.
func (t *Table) Len() int {
	return len(t.Records)
}

// Concat appends the records of other, which must share the same header.
func (t *Table) Concat(other *Table) error {
	if len(t.Header) == 0 {
		t.Header = other.Header
	}
	if strings.Join(t.Header, "\x00") != strings.Join(other.Header, "\x00") {
		return eris.Errorf("csv: cannot concat tables with different headers (%d vs %d columns)", len(t.Header), len(other.Header))
	}
	t.Records = append(t.Records, other.Records...)
	return nil
}

// ReadTable parses data into a Table. The first row is the header; header
// cells are trimmed. An empty payload is an error.
func ReadTable(ctx context.Context, data []byte, opts CSVOptions) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, eris.New("csv: empty payload")
	}

	opts.HasHeader = false
	rowCh, errCh := StreamCSV(ctx, bytes.NewReader(data), opts)

	t := &Table{}
	for row := range rowCh {
		if t.Header == nil {
			for i := range row {
				row[i] = strings.TrimSpace(row[i])
			}
			t.Header = row
			continue
		}
		t.Records = append(t.Records, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	if len(t.Header) == 0 {
		return nil, eris.New("csv: missing header row")
	}
	return t, nil
}
