package schema

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"csvload/internal/tabular"
)

// Result is the inferred shape of one file.
type Result struct {
	Headers   []string `json:"headers"`
	RowCount  int64    `json:"rowCount"`
	Columns   []Column `json:"columns"`
	Delimiter string   `json:"delimiter"`
}

// Engine infers column descriptors for delimited files.
type Engine struct {
	opener     tabular.Opener
	sampleSize int
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSampleSize sets the boolean-detection sample size.
func WithSampleSize(n int) Option {
	return func(e *Engine) { e.sampleSize = n }
}

// WithLogger attaches a logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an Engine reading files through opener.
func NewEngine(opener tabular.Opener, opts ...Option) *Engine {
	e := &Engine{
		opener:     opener,
		sampleSize: DefaultBooleanSampleSize,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Infer opens path, profiles every column and resolves its canonical type.
//
// A column whose sample is boolean is Boolean regardless of its raw label;
// otherwise the type comes from MapRawType. The relation is closed before
// Infer returns, on success and on failure alike. A close error is reported
// only when inference itself succeeded.
//
// Zero data rows is not an error: every column comes back non-nullable and
// non-boolean. Duplicate header names are kept as the engine reports them.
func (e *Engine) Infer(ctx context.Context, path string) (res Result, err error) {
	rel, err := e.opener.Open(ctx, path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := rel.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	headers := rel.Headers()
	raw := rel.RawTypes()
	if len(raw) != len(headers) {
		return Result{}, errors.New("tabular engine returned mismatched headers and types")
	}

	cols := make([]Column, len(headers))
	for i, name := range headers {
		p, err := ProfileColumn(ctx, rel, i, e.sampleSize)
		if err != nil {
			return Result{}, fmt.Errorf("column %q: %w", name, err)
		}

		typ := MapRawType(raw[i])
		if p.IsBoolean {
			typ = Boolean
		}
		cols[i] = Column{
			Name:       name,
			Type:       typ,
			SourceType: raw[i],
			Nullable:   p.Nullable,
		}
	}

	e.logger.Debug("schema inferred",
		zap.String("file", path),
		zap.Int("columns", len(cols)),
		zap.Int64("rows", rel.RowCount()),
		zap.String("delimiter", rel.Delimiter()),
	)

	return Result{
		Headers:   append([]string(nil), headers...),
		RowCount:  rel.RowCount(),
		Columns:   cols,
		Delimiter: rel.Delimiter(),
	}, nil
}
