// Package tabular is the read-side capability the schema engine profiles: a
// delimited file opened as a queryable relation.
//
// Engines register themselves by name from an init() function in their own
// package (see tabular/duckdb and tabular/csvfile) and are selected with
// NewOpener. Importing tabular/all registers every engine.
package tabular

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Relation is an opened delimited file.
//
// Columns are addressed by position so duplicate header names stay
// unambiguous. Position i refers to Headers()[i] and RawTypes()[i].
//
// Edge cases:
//   - A file with a header line and no data rows has RowCount 0.
//   - Close must be called exactly once; every other method is invalid after it.
type Relation interface {
	// Headers returns column names in file order.
	Headers() []string

	// RawTypes returns the engine's own type label per column (e.g. "BIGINT",
	// "VARCHAR", "TIMESTAMP WITH TIME ZONE").
	RawTypes() []string

	// RowCount returns the number of data rows (header excluded).
	RowCount() int64

	// Delimiter returns the detected field separator.
	Delimiter() string

	// DistinctNonBlank returns up to limit distinct values of column col that
	// are non-empty after trimming. Values are trimmed and lower-cased.
	DistinctNonBlank(ctx context.Context, col int, limit int) ([]string, error)

	// CountBlank returns how many rows hold a missing or whitespace-only value
	// in column col.
	CountBlank(ctx context.Context, col int) (int64, error)

	Close() error
}

// Opener opens a delimited file as a Relation.
type Opener interface {
	Open(ctx context.Context, path string) (Relation, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Relation, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, path string) (Relation, error) {
	return f(ctx, path)
}

var (
	mu      sync.RWMutex
	engines = map[string]Opener{}
)

// Register makes an engine available under name.
//
// Panics if name is empty, o is nil, or name is already registered.
func Register(name string, o Opener) {
	mu.Lock()
	defer mu.Unlock()

	if name == "" {
		panic("tabular: Register called with empty name")
	}
	if o == nil {
		panic("tabular: Register called with nil opener")
	}
	if _, exists := engines[name]; exists {
		panic(fmt.Sprintf("tabular: engine already registered for name=%q", name))
	}
	engines[name] = o
}

// NewOpener returns the engine registered under name.
func NewOpener(name string) (Opener, error) {
	mu.RLock()
	o := engines[name]
	mu.RUnlock()

	if o == nil {
		return nil, fmt.Errorf("tabular: unknown engine %q (registered: %v)", name, Engines())
	}
	return o, nil
}

// Engines lists registered engine names in sorted order.
func Engines() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(engines))
	for k := range engines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
