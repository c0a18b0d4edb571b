// Package storage is the relational-database capability the materialize and
// load stages use. Each driver family lives in its own subpackage and
// registers a factory from init(); import storage/all to get every family.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"csvload/internal/schema"
)

var (
	// ErrTableExists is returned by CreateTable when the table is already present.
	ErrTableExists = errors.New("table already exists")
	// ErrUnsupported is returned by backends that cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by this driver")
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Driver must match a registered family ("postgres", "mysql", "sqlite", "mssql").
//   - DSN is passed to the backend untouched; its syntax is backend-specific.
type Config struct {
	Driver string
	DSN    string
}

// LoadRequest describes one bulk load.
type LoadRequest struct {
	Table     string
	Path      string
	Columns   []schema.Column
	Delimiter string
	// OnSkip, when set, receives lines a backend skipped because they could
	// not be read or had the wrong field count. Backends that hand the file to
	// the server untouched never call it.
	OnSkip func(line int, err error)
}

// ColumnName is the identifier a backend creates and loads column c under.
func ColumnName(c schema.Column) string {
	return strings.TrimSpace(c.Name)
}

// Repository is what the stage runner needs from a target database.
//
// CreateTable never uses IF NOT EXISTS and never alters an existing table:
// callers check TableExists first, and backends that detect a collision
// return ErrTableExists.
type Repository interface {
	Ping(ctx context.Context) error
	TableExists(ctx context.Context, table string) (bool, error)
	CreateTable(ctx context.Context, table string, cols []schema.Column) error
	// LoadRows bulk-transfers the file in req.Path into req.Table and returns
	// the number of rows written. The file has a header line.
	LoadRows(ctx context.Context, req LoadRequest) (int64, error)
	Close() error
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under driver.
//
// Call it from an init() function in the backend package.
//
// Panics:
//   - If driver is empty.
//   - If f is nil.
//   - If driver is already registered.
func Register(driver string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if driver == "" {
		panic("storage: Register called with empty driver")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[driver]; exists {
		panic(fmt.Sprintf("storage: factory already registered for driver=%q", driver))
	}
	factories[driver] = f
}

// New constructs a Repository using the factory registered for cfg.Driver.
//
// Errors:
//   - Returns an error if cfg.Driver is empty or not registered.
//   - Returns whatever error the factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("storage: missing driver")
	}

	mu.RLock()
	f := factories[cfg.Driver]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported driver %q (registered: %v)", cfg.Driver, Drivers())
	}
	return f(ctx, cfg)
}

// Drivers lists registered driver families in sorted order.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
