package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
)

// TrimFields copies src to dst with every field trimmed, so whitespace-only
// values come out as empty unquoted fields. Records shorter than width are
// padded with empty fields. The header, if any, is copied the same way.
//
// Longer records are written unchanged for the consumer to reject.
func TrimFields(ctx context.Context, dst io.Writer, src io.Reader, opt Options, width int) error {
	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	cw := csv.NewWriter(dst)
	cw.Comma = comma

	for n := 1; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("csv read: %w", err)
		}
		for i := range rec {
			rec[i] = trimValue(rec[i])
		}
		for len(rec) < width {
			rec = append(rec, "")
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
