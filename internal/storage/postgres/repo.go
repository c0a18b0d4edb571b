// Package postgres is the PostgreSQL storage backend. Loads stream the file
// through COPY FROM STDIN as CSV text; rows are never converted to Go values.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	csvparse "csvload/internal/parser/csv"
	"csvload/internal/schema"
	"csvload/internal/storage"
)

// Driver is the family name this backend registers under.
const Driver = "postgres"

func init() {
	storage.Register(Driver, New)
}

// Repo implements storage.Repository on a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

// New opens a pool for cfg.DSN and verifies it with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Ping checks connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the pool.
func (r *Repo) Close() error {
	r.pool.Close()
	return nil
}

// TableExists resolves the name on the connection's search_path.
func (r *Repo) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", tableIdent(table)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: table exists %s: %w", table, err)
	}
	return exists, nil
}

// CreateTable creates table with one column per descriptor.
//
// A duplicate_table error (SQLSTATE 42P07) maps to storage.ErrTableExists.
func (r *Repo) CreateTable(ctx context.Context, table string, cols []schema.Column) error {
	ddl, err := buildCreateSQL(table, cols)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		if isDuplicateTable(err) {
			return fmt.Errorf("postgres: %s: %w", table, storage.ErrTableExists)
		}
		return fmt.Errorf("postgres: create table %s: %w", table, err)
	}
	return nil
}

// LoadRows streams req.Path into COPY ... FROM STDIN in CSV format.
//
// Fields are trimmed on the way so whitespace-only values reach the server as
// unquoted empty fields, which COPY reads as NULL. Short records are padded
// the same way.
func (r *Repo) LoadRows(ctx context.Context, req storage.LoadRequest) (int64, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return 0, fmt.Errorf("postgres: open %s: %w", req.Path, err)
	}
	defer f.Close()

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: acquire: %w", err)
	}
	defer conn.Release()

	pr, pw := io.Pipe()
	defer pr.Close()
	go func() {
		pw.CloseWithError(csvparse.TrimFields(ctx, pw, f, csvparse.OptionsFor(req.Delimiter), len(req.Columns)))
	}()

	tag, err := conn.Conn().PgConn().CopyFrom(ctx, pr, buildCopySQL(req))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", req.Table, err)
	}
	return tag.RowsAffected(), nil
}

// columnType maps a canonical type to its PostgreSQL spelling.
func columnType(t schema.SQLType) string {
	switch t.Resolve() {
	case schema.Int:
		return "INTEGER"
	case schema.BigInt:
		return "BIGINT"
	case schema.Float:
		return "REAL"
	case schema.Double:
		return "DOUBLE PRECISION"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "TIMESTAMP"
	case schema.Boolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// buildColumnDef renders a single column definition; non-nullable columns
// get NOT NULL.
func buildColumnDef(c schema.Column) (string, error) {
	name := storage.ColumnName(c)
	if name == "" {
		return "", fmt.Errorf("postgres: column name is empty")
	}
	def := pgIdent(name) + " " + columnType(c.Type)
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def, nil
}

// buildCreateSQL is pure so DDL can be tested without a database.
func buildCreateSQL(table string, cols []schema.Column) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("postgres: table name is empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("postgres: table %s has no columns", table)
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		d, err := buildColumnDef(c)
		if err != nil {
			return "", err
		}
		defs = append(defs, d)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", tableIdent(table), strings.Join(defs, ",\n  ")), nil
}

func buildCopySQL(req storage.LoadRequest) string {
	names := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		names[i] = pgIdent(storage.ColumnName(c))
	}
	delim := req.Delimiter
	if delim == "" {
		delim = ","
	}
	return fmt.Sprintf(
		"COPY %s (%s) FROM STDIN WITH (FORMAT csv, HEADER true, DELIMITER %s)",
		tableIdent(req.Table), strings.Join(names, ", "), pgLiteral(delim),
	)
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// tableIdent quotes an optionally schema-qualified name ("public.pets").
func tableIdent(name string) string {
	return pgx.Identifier(strings.Split(strings.TrimSpace(name), ".")).Sanitize()
}

func pgLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isDuplicateTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P07"
}

var _ storage.Repository = (*Repo)(nil)
