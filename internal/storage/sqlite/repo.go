package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"csvload/internal/schema"
	"csvload/internal/storage"
)

// Driver is the family name this backend registers under.
const Driver = "sqlite"

// Repo implements storage.Repository for SQLite.
//
// SQLite has no bulk transport the loader can use, so LoadRows always
// returns storage.ErrUnsupported. Tables can still be materialized.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register(Driver, New)
}

// New opens cfg.DSN, a file path or "file:" URI, and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: table exists %s: %w", table, err)
	}
	return n > 0, nil
}

// CreateTable checks for the table first since SQLite reports an existing
// table only through the error text.
func (r *Repo) CreateTable(ctx context.Context, table string, cols []schema.Column) error {
	ddl, err := buildCreateSQL(table, cols)
	if err != nil {
		return err
	}
	exists, err := r.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("sqlite: %s: %w", table, storage.ErrTableExists)
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", table, err)
	}
	return nil
}

func (r *Repo) LoadRows(context.Context, storage.LoadRequest) (int64, error) {
	return 0, fmt.Errorf("sqlite: bulk load: %w", storage.ErrUnsupported)
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// columnType follows SQLite's affinity rules: dates and timestamps are TEXT,
// booleans INTEGER.
func columnType(t schema.SQLType) string {
	switch t.Resolve() {
	case schema.Int, schema.BigInt, schema.Boolean:
		return "INTEGER"
	case schema.Float, schema.Double:
		return "REAL"
	default:
		return "TEXT"
	}
}

func buildCreateSQL(table string, cols []schema.Column) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("sqlite: table name is empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("sqlite: table %s has no columns", table)
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		name := storage.ColumnName(c)
		if name == "" {
			return "", fmt.Errorf("sqlite: column name is empty")
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(name))
		b.WriteByte(' ')
		b.WriteString(columnType(c.Type))
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String(), nil
}

var _ storage.Repository = (*Repo)(nil)
