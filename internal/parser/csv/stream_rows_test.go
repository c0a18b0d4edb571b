package csv

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"csvload/internal/schema"
)

func collect(t *testing.T, input string, cols []schema.Column, opt Options) ([][]any, []int, error) {
	t.Helper()

	out := make(chan *Row, 16)
	var badLines []int
	err := StreamRows(context.Background(), io.NopCloser(strings.NewReader(input)), cols, opt, out, func(line int, _ error) {
		badLines = append(badLines, line)
	})
	close(out)

	var rows [][]any
	for r := range out {
		rows = append(rows, append([]any(nil), r.V...))
		r.Free()
	}
	return rows, badLines, err
}

func TestStreamRows_ConvertsByPosition(t *testing.T) {
	t.Parallel()

	cols := []schema.Column{
		{Name: "id", Type: schema.Int},
		{Name: "name", Type: schema.Text},
		{Name: "active", Type: schema.Boolean},
		{Name: "born", Type: schema.Date},
		{Name: "score", Type: schema.Double},
	}
	input := "id;name;active;born;score\n" +
		"1; Rex ;yes;2020-01-02;1.5\n" +
		"2;;0;;\n" +
		"3;short\n"

	rows, bad, err := collect(t, input, cols, OptionsFor(";"))
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if len(bad) != 1 || bad[0] != 4 {
		t.Fatalf("bad lines=%v, want [4]", bad)
	}

	r := rows[0]
	if r[0] != int64(1) || r[1] != "Rex" || r[2] != true || r[4] != 1.5 {
		t.Fatalf("row 1 = %#v", r)
	}
	if d, ok := r[3].(time.Time); !ok || !d.Equal(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("born = %#v", r[3])
	}

	r = rows[1]
	if r[1] != nil || r[2] != false || r[3] != nil || r[4] != nil {
		t.Fatalf("row 2 = %#v", r)
	}
}

func TestStreamRows_ConversionErrorStops(t *testing.T) {
	t.Parallel()

	cols := []schema.Column{{Name: "id", Type: schema.BigInt}}
	_, _, err := collect(t, "id\n1\nabc\n2\n", cols, OptionsFor(","))
	if err == nil || !strings.Contains(err.Error(), `line 3 column "id"`) {
		t.Fatalf("expected conversion error on line 3, got %v", err)
	}
}

func TestStreamRows_HeaderOnlyAndEmpty(t *testing.T) {
	t.Parallel()

	cols := []schema.Column{{Name: "a", Type: schema.Text}}
	for _, in := range []string{"a\n", ""} {
		rows, _, err := collect(t, in, cols, OptionsFor(","))
		if err != nil || len(rows) != 0 {
			t.Fatalf("input %q: rows=%v err=%v", in, rows, err)
		}
	}
}

func TestStreamRows_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan *Row)
	err := StreamRows(ctx, io.NopCloser(strings.NewReader("a\n1\n")), []schema.Column{{Name: "a"}}, OptionsFor(","), out, nil)
	if err != context.Canceled {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		typ     schema.SQLType
		want    any
		wantErr bool
	}{
		{raw: "  ", typ: schema.Int, want: nil},
		{raw: "42", typ: schema.BigInt, want: int64(42)},
		{raw: "4.2", typ: schema.Int, wantErr: true},
		{raw: "2.5", typ: schema.Float, want: 2.5},
		{raw: "No", typ: schema.Boolean, want: false},
		{raw: "maybe", typ: schema.Boolean, wantErr: true},
		{raw: " text ", typ: schema.Text, want: "text"},
		{raw: "anything", typ: schema.Unknown, want: "anything"},
		{raw: "2021-13-45", typ: schema.Date, wantErr: true},
	}

	for _, tc := range tests {
		got, err := Convert(tc.raw, tc.typ)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Convert(%q, %s): expected error, got %#v", tc.raw, tc.typ, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Convert(%q, %s): %v", tc.raw, tc.typ, err)
		}
		if got != tc.want {
			t.Fatalf("Convert(%q, %s)=%#v, want %#v", tc.raw, tc.typ, got, tc.want)
		}
	}

	ts, err := Convert("2024-05-06 07:08:09", schema.Timestamp)
	if err != nil {
		t.Fatalf("Convert timestamp: %v", err)
	}
	if !ts.(time.Time).Equal(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)) {
		t.Fatalf("timestamp=%v", ts)
	}
}

func TestGetRow_ClearsReusedRows(t *testing.T) {
	r := GetRow(3)
	r.V[0], r.V[2], r.Line = "x", int64(9), 12
	r.Free()

	r = GetRow(2)
	if len(r.V) != 2 || r.V[0] != nil || r.V[1] != nil || r.Line != 0 {
		t.Fatalf("reused row not cleared: %#v line=%d", r.V, r.Line)
	}
	r.Drop()
	if r.V != nil {
		t.Fatalf("Drop kept values")
	}
}

func TestStreamRows_RowsCarryLineNumbers(t *testing.T) {
	t.Parallel()

	out := make(chan *Row, 4)
	err := StreamRows(context.Background(), io.NopCloser(strings.NewReader("a\n1\n\n2\n")),
		[]schema.Column{{Name: "a", Type: schema.Int}}, OptionsFor(","), out, nil)
	close(out)
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	var lines []int
	for r := range out {
		lines = append(lines, r.Line)
		r.Free()
	}
	if len(lines) != 2 || lines[0] != 2 {
		t.Fatalf("lines=%v", lines)
	}
}
