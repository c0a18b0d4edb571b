// Package csvfile is a pure-Go tabular engine. It needs no cgo, which makes it
// the engine of choice for static builds and tests.
//
// The whole file is read into memory. Type labels follow DuckDB's names so
// the schema mapper treats both engines alike:
//
//	INTEGER, BIGINT, DOUBLE, BOOLEAN, DATE, TIMESTAMP, VARCHAR
//
// Integer columns get the narrowest label that holds every value.
package csvfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"csvload/internal/tabular"
)

// EngineName is the key this engine registers under.
const EngineName = "csv"

// candidateDelimiters are tried in order; ties go to the earlier one.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

func init() {
	tabular.Register(EngineName, tabular.OpenerFunc(Open))
}

// Relation is an in-memory parsed file.
type Relation struct {
	headers   []string
	rawTypes  []string
	rows      [][]string
	delimiter rune
}

// Open reads and parses path.
func Open(ctx context.Context, path string) (tabular.Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("csvfile: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Relation from raw file bytes.
func Parse(data []byte) (*Relation, error) {
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))
	delim := SniffDelimiter(data)

	headers, rows, err := readAll(data, delim)
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, errors.New("csvfile: file has no header line")
	}

	return &Relation{
		headers:   headers,
		rawTypes:  inferTypes(headers, rows),
		rows:      rows,
		delimiter: delim,
	}, nil
}

// SniffDelimiter picks the candidate separator that occurs most often
// (outside quotes) on the first line. It falls back to ','.
func SniffDelimiter(data []byte) rune {
	line, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()

	best, bestN := ',', 0
	for _, d := range candidateDelimiters {
		n := 0
		inQuotes := false
		for _, c := range string(line) {
			switch {
			case c == '"':
				inQuotes = !inQuotes
			case c == d && !inQuotes:
				n++
			}
		}
		if n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// readAll parses the header and every data row.
//
// Short records are padded with blanks so a missing trailing field counts as
// an absent value. A record with more fields than the header is an error.
// Headers are trimmed; values are kept verbatim.
func readAll(data []byte, delimiter rune) ([]string, [][]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headers, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("csvfile: read header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	rows := make([][]string, 0, 1024)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return headers, rows, fmt.Errorf("csvfile: read row: %w", err)
		}
		switch {
		case len(rec) > len(headers):
			line, _ := r.FieldPos(0)
			return headers, rows, fmt.Errorf("csvfile: line %d has %d fields, header has %d", line, len(rec), len(headers))
		case len(rec) < len(headers):
			rec = append(rec, make([]string, len(headers)-len(rec))...)
		}
		rows = append(rows, rec)
	}
	return headers, rows, nil
}

// inferTypes labels each column by the narrowest type every non-blank value
// parses as. Columns with no non-blank values are VARCHAR.
func inferTypes(headers []string, rows [][]string) []string {
	out := make([]string, len(headers))
	for col := range headers {
		var seen bool
		allInt32, allInt, allFloat, allBool, allDate, allTS := true, true, true, true, true, true

		for _, r := range rows {
			v := strings.TrimSpace(r[col])
			if v == "" {
				continue
			}
			seen = true

			if allInt {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					allInt = false
				}
			}
			if allInt32 {
				if _, err := strconv.ParseInt(v, 10, 32); err != nil {
					allInt32 = false
				}
			}
			if allFloat {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					allFloat = false
				}
			}
			if allBool {
				if _, ok := parseBoolLoose(v); !ok {
					allBool = false
				}
			}
			if allDate {
				if !parsesWithAny(v, dateLayouts) {
					allDate = false
				}
			}
			if allTS {
				if !parsesWithAny(v, tsLayouts) {
					allTS = false
				}
			}
		}

		switch {
		case !seen:
			out[col] = "VARCHAR"
		case allInt32:
			out[col] = "INTEGER"
		case allInt:
			out[col] = "BIGINT"
		case allBool:
			out[col] = "BOOLEAN"
		case allDate:
			out[col] = "DATE"
		case allTS:
			out[col] = "TIMESTAMP"
		case allFloat:
			out[col] = "DOUBLE"
		default:
			out[col] = "VARCHAR"
		}
	}
	return out
}

func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y":
		return true, true
	case "false", "f", "no", "n":
		return false, true
	default:
		return false, false
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"01/02/2006",
}

var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05.000",
	"02.01.2006 15:04:05",
}

func parsesWithAny(s string, layouts []string) bool {
	for _, lay := range layouts {
		if _, err := time.Parse(lay, s); err == nil {
			return true
		}
	}
	return false
}

// Headers implements tabular.Relation.
func (r *Relation) Headers() []string { return r.headers }

// RawTypes implements tabular.Relation.
func (r *Relation) RawTypes() []string { return r.rawTypes }

// RowCount implements tabular.Relation.
func (r *Relation) RowCount() int64 { return int64(len(r.rows)) }

// Delimiter implements tabular.Relation.
func (r *Relation) Delimiter() string { return string(r.delimiter) }

// DistinctNonBlank implements tabular.Relation. Values come back in first-seen order.
func (r *Relation) DistinctNonBlank(ctx context.Context, col int, limit int) ([]string, error) {
	if err := r.checkColumn(col); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, limit)
	out := make([]string, 0, limit)
	for i, row := range r.rows {
		if len(out) >= limit {
			break
		}
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v := strings.ToLower(strings.TrimSpace(row[col]))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// CountBlank implements tabular.Relation.
func (r *Relation) CountBlank(ctx context.Context, col int) (int64, error) {
	if err := r.checkColumn(col); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for _, row := range r.rows {
		if strings.TrimSpace(row[col]) == "" {
			n++
		}
	}
	return n, nil
}

// Close implements tabular.Relation.
func (r *Relation) Close() error {
	r.rows = nil
	return nil
}

func (r *Relation) checkColumn(col int) error {
	if col < 0 || col >= len(r.headers) {
		return fmt.Errorf("csvfile: column index %d out of range (have %d)", col, len(r.headers))
	}
	return nil
}

var _ tabular.Relation = (*Relation)(nil)
