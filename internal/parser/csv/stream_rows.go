// Package csv streams delimited files as typed rows for drivers whose bulk
// transport takes values rather than raw file bytes.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"csvload/internal/schema"
)

// Options controls how a file is read.
type Options struct {
	// Comma is the field separator. Zero means ','.
	Comma rune
	// SkipHeader drops the first record.
	SkipHeader bool
	// LazyQuotes tolerates stray quotes inside unquoted fields.
	LazyQuotes bool
}

// OptionsFor returns the options for a headered file with the given
// delimiter string (as recorded by the schema stage).
func OptionsFor(delimiter string) Options {
	o := Options{Comma: ',', SkipHeader: true, LazyQuotes: true}
	if r := []rune(delimiter); len(r) == 1 {
		o.Comma = r[0]
	}
	return o
}

// StreamRows reads src and sends one pooled *Row per record to out, with
// values converted to the Go type of the matching column (see Convert).
// Fields are matched to columns by position. The receiver owns each Row and
// must Free or Drop it.
//
// Records with a different field count than len(columns) are reported to
// onErr and skipped; so are records that fail to parse. A value that cannot be
// converted to its column type stops the stream with an error naming the line
// and column. src is closed before StreamRows returns. Cancellation of ctx
// stops the stream with ctx.Err().
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []schema.Column,
	opt Options,
	out chan<- *Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var line int
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	if opt.SkipHeader {
		if _, err := readRec(); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read header: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}
		if len(rec) != len(columns) {
			if onErr != nil {
				onErr(line, fmt.Errorf("expected %d fields, got %d", len(columns), len(rec)))
			}
			continue
		}

		row := GetRow(len(columns))
		row.Line = line
		for i, c := range columns {
			v, err := Convert(rec[i], c.Type)
			if err != nil {
				row.Free()
				return fmt.Errorf("line %d column %q: %w", line, c.Name, err)
			}
			row.V[i] = v
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func trimValue(s string) string {
	if HasEdgeSpace(s) {
		return strings.TrimSpace(s)
	}
	return s
}
