package csv

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"csvload/internal/schema"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"01/02/2006",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"02.01.2006 15:04:05",
	"2006-01-02",
}

// Convert parses a raw field into the Go value a driver expects for t:
//
//	Int, BigInt       int64
//	Float, Double     float64
//	Boolean           bool
//	Date, Timestamp   time.Time (UTC when the value carries no zone)
//	Text              string
//
// Blank or whitespace-only fields become nil. Values are trimmed.
func Convert(raw string, t schema.SQLType) (any, error) {
	v := trimValue(raw)
	if v == "" {
		return nil, nil
	}

	switch t.Resolve() {
	case schema.Int, schema.BigInt:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse integer %q: %w", v, err)
		}
		return n, nil
	case schema.Float, schema.Double:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", v, err)
		}
		return f, nil
	case schema.Boolean:
		b, ok := ParseBool(v)
		if !ok {
			return nil, fmt.Errorf("parse boolean %q", v)
		}
		return b, nil
	case schema.Date:
		return parseTime(v, dateLayouts)
	case schema.Timestamp:
		return parseTime(v, timestampLayouts)
	default:
		return v, nil
	}
}

// ParseBool accepts the tokens the schema profiler classifies as boolean,
// plus their one-letter forms.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true, true
	case "0", "f", "false", "n", "no":
		return false, true
	default:
		return false, false
	}
}

func parseTime(v string, layouts []string) (any, error) {
	for _, lay := range layouts {
		if ts, err := time.Parse(lay, v); err == nil {
			return ts, nil
		}
	}
	return nil, fmt.Errorf("parse time %q: no matching layout", v)
}
