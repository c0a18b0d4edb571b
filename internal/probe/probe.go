// Package probe infers the schema of a single file from a bounded prefix of
// it, without a state document or a database.
//
// The source may be a local path, a file:// URL or an http(s) URL. Only the
// first MaxBytes are read; when the source is longer, the sample is cut at the
// last complete line so the inference never sees a half row.
package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"csvload/internal/pipeline"
	"csvload/internal/schema"
	"csvload/internal/tabular"
)

// DefaultMaxBytes is the sample size when Options.MaxBytes is zero.
const DefaultMaxBytes = 20000

// distinctCapPerColumn bounds memory for uniqueness counting.
const distinctCapPerColumn = 10000

// Options controls sampling and inference.
type Options struct {
	// Source is a path, file:// URL or http(s):// URL.
	Source   string
	MaxBytes int
	// Insecure skips TLS verification for https sources.
	Insecure bool

	Opener     tabular.Opener
	SampleSize int
	Logger     *zap.Logger
}

// Result is the inferred shape of the sample.
type Result struct {
	Source       string        `json:"source"`
	SampledBytes int           `json:"sampledBytes"`
	Truncated    bool          `json:"truncated"`
	TableName    string        `json:"tableName"`
	Schema       schema.Result `json:"schema"`
	Uniqueness   []ColumnStats `json:"uniqueness"`
	// KeyCandidates lists columns whose sampled values are all present and
	// distinct.
	KeyCandidates []string `json:"keyCandidates"`
}

// ColumnStats is the bounded distinct count of one column over the sample.
type ColumnStats struct {
	Column   string `json:"column"`
	Distinct int    `json:"distinct"`
	Present  int    `json:"present"`
	Capped   bool   `json:"capped"`
}

// Ratio is Distinct/Present, or 0 when the column had no values.
func (c ColumnStats) Ratio() float64 {
	if c.Present == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.Present)
}

// PeekFn fetches at most n bytes from src and reports whether more remained.
type PeekFn func(ctx context.Context, src string, n int, insecure bool) ([]byte, bool, error)

// peekFn is replaced in tests to avoid network I/O.
var peekFn PeekFn = peek

// Run samples opt.Source and infers its schema.
//
// Errors:
//   - pipeline.ErrNotFound if a local source does not exist.
//   - Whatever the fetch or the tabular engine returns otherwise.
func Run(ctx context.Context, opt Options) (Result, error) {
	if strings.TrimSpace(opt.Source) == "" {
		return Result{}, fmt.Errorf("probe: empty source")
	}
	if opt.Opener == nil {
		return Result{}, fmt.Errorf("probe: no tabular engine")
	}
	n := opt.MaxBytes
	if n <= 0 {
		n = DefaultMaxBytes
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}

	sample, more, err := peekFn(ctx, opt.Source, n, opt.Insecure)
	if err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}
	if more {
		sample = cutToLastNewline(sample)
	}

	name := sourceName(opt.Source)
	tmp, err := writeSample(name, sample)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(tmp)

	var engOpts []schema.Option
	if opt.SampleSize > 0 {
		engOpts = append(engOpts, schema.WithSampleSize(opt.SampleSize))
	}
	engOpts = append(engOpts, schema.WithLogger(log))
	res, err := schema.NewEngine(opt.Opener, engOpts...).Infer(ctx, tmp)
	if err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}

	stats, total := uniqueness(sample, res.Delimiter, res.Headers)
	log.Debug("probe sampled",
		zap.String("source", opt.Source),
		zap.Int("bytes", len(sample)),
		zap.Bool("truncated", more),
		zap.Int("rows", total),
	)

	return Result{
		Source:        opt.Source,
		SampledBytes:  len(sample),
		Truncated:     more,
		TableName:     pipeline.TableName(name),
		Schema:        res,
		Uniqueness:    stats,
		KeyCandidates: keyCandidates(stats, total),
	}, nil
}

func peek(ctx context.Context, src string, n int, insecure bool) ([]byte, bool, error) {
	var rc io.ReadCloser
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", n))
		client := &http.Client{Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}, //nolint:gosec // opt-in flag
		}}
		resp, err := client.Do(req)
		if err != nil {
			return nil, false, err
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			resp.Body.Close()
			return nil, false, fmt.Errorf("GET %s: %s", src, resp.Status)
		}
		rc = resp.Body
	default:
		f, err := os.Open(strings.TrimPrefix(src, "file://"))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, false, fmt.Errorf("%w: %s", pipeline.ErrNotFound, src)
			}
			return nil, false, err
		}
		rc = f
	}
	defer rc.Close()

	// One byte past n tells us whether the source was cut.
	buf, err := io.ReadAll(io.LimitReader(rc, int64(n)+1))
	if err != nil {
		return nil, false, err
	}
	if len(buf) > n {
		return buf[:n], true, nil
	}
	return buf, false, nil
}

func cutToLastNewline(b []byte) []byte {
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		return b[:i+1]
	}
	return b
}

// sourceName is the file name part of a path or URL, or "sample.csv" when
// there is none.
func sourceName(src string) string {
	p := filepath.ToSlash(src)
	if strings.Contains(src, "://") {
		u, err := url.Parse(src)
		if err != nil {
			return "sample.csv"
		}
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "sample.csv"
	}
	return name
}

// writeSample keeps the source extension so extension-sensitive engines read
// it the same way.
func writeSample(name string, sample []byte) (string, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".csv"
	}
	f, err := os.CreateTemp("", "csvload-probe-*"+ext)
	if err != nil {
		return "", fmt.Errorf("probe: %w", err)
	}
	if _, err := f.Write(sample); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("probe: write sample: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("probe: write sample: %w", err)
	}
	return f.Name(), nil
}

// uniqueness counts distinct non-blank values per column. A column only
// counts a row toward Present when it has a value there. Rows with the wrong
// field count are ignored. It returns the stats and the number of rows used.
func uniqueness(sample []byte, delimiter string, headers []string) ([]ColumnStats, int) {
	stats := make([]ColumnStats, len(headers))
	for i, h := range headers {
		stats[i].Column = h
	}
	if len(headers) == 0 {
		return stats, 0
	}

	r := csv.NewReader(bytes.NewReader(sample))
	if d := []rune(delimiter); len(d) == 1 {
		r.Comma = d[0]
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	sets := make([]map[string]struct{}, len(headers))
	for i := range sets {
		sets[i] = map[string]struct{}{}
	}

	total := 0
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if first {
			first = false
			continue
		}
		if len(rec) != len(headers) {
			continue
		}
		total++
		for i, v := range rec {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			stats[i].Present++
			if stats[i].Capped {
				continue
			}
			sets[i][v] = struct{}{}
			if len(sets[i]) >= distinctCapPerColumn {
				stats[i].Capped = true
				sets[i] = nil
			}
		}
	}

	for i := range stats {
		if stats[i].Capped {
			stats[i].Distinct = distinctCapPerColumn
			continue
		}
		stats[i].Distinct = len(sets[i])
	}
	return stats, total
}

func keyCandidates(stats []ColumnStats, total int) []string {
	if total == 0 {
		return nil
	}
	var out []string
	for _, s := range stats {
		if !s.Capped && s.Present == total && s.Distinct == total {
			out = append(out, s.Column)
		}
	}
	return out
}

// FormatReport renders r for a terminal: the columns with their inferred types
// followed by the uniqueness table, least unique first.
func FormatReport(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "source:\t%s\n", r.Source)
	fmt.Fprintf(&b, "table:\t%s\n", r.TableName)
	fmt.Fprintf(&b, "sample:\t%d bytes, %d rows", r.SampledBytes, r.Schema.RowCount)
	if r.Truncated {
		b.WriteString(" (truncated)")
	}
	fmt.Fprintf(&b, ", delimiter %q\n\n", r.Schema.Delimiter)

	fmt.Fprintf(&b, "%-24s %-10s %-10s %s\n", "column", "type", "raw", "nullable")
	for _, c := range r.Schema.Columns {
		fmt.Fprintf(&b, "%-24s %-10s %-10s %t\n", c.Name, c.Type, c.SourceType, c.Nullable)
	}

	if len(r.Uniqueness) > 0 {
		rows := append([]ColumnStats(nil), r.Uniqueness...)
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Ratio() == rows[j].Ratio() {
				return rows[i].Column < rows[j].Column
			}
			return rows[i].Ratio() < rows[j].Ratio()
		})
		fmt.Fprintf(&b, "\n%-24s %-8s %-8s %-7s %s\n", "column", "unique", "rows", "ratio", "capped")
		for _, s := range rows {
			if s.Present == 0 {
				continue
			}
			fmt.Fprintf(&b, "%-24s %-8d %-8d %5.1f%%  %t\n", s.Column, s.Distinct, s.Present, s.Ratio()*100, s.Capped)
		}
	}
	if len(r.KeyCandidates) > 0 {
		fmt.Fprintf(&b, "\nkey candidates: %s\n", strings.Join(r.KeyCandidates, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
