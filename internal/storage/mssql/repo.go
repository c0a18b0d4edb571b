// Package mssql is the SQL Server storage backend. Loads use the TDS bulk
// copy protocol, fed row by row from the streaming CSV reader.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	csvparse "csvload/internal/parser/csv"
	"csvload/internal/schema"
	"csvload/internal/storage"
)

// Driver is the family name this backend registers under.
const Driver = "mssql"

// errObjectExists is SQL Server's "There is already an object named ..." error.
const errObjectExists = 2714

func init() {
	storage.Register(Driver, New)
}

// Repo implements storage.Repository for Microsoft SQL Server.
type Repo struct {
	db dbConn
}

// New opens cfg.DSN (a sqlserver:// URL) and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return newWithDB(raw), nil
}

func newWithDB(db dbConn) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// TableExists looks the name up with OBJECT_ID, restricted to user tables.
func (r *Repo) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT CASE WHEN OBJECT_ID(@p1, 'U') IS NULL THEN 0 ELSE 1 END", mssqlTableIdent(table),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("mssql: table exists %s: %w", table, err)
	}
	return n == 1, nil
}

func (r *Repo) CreateTable(ctx context.Context, table string, cols []schema.Column) error {
	ddl, err := buildCreateSQL(table, cols)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		var se mssql.Error
		if errors.As(err, &se) && se.Number == errObjectExists {
			return fmt.Errorf("mssql: %s: %w", table, storage.ErrTableExists)
		}
		return fmt.Errorf("mssql: create table %s: %w", table, err)
	}
	return nil
}

// LoadRows bulk-copies the file inside one transaction. Values are converted
// to their column types before they reach the driver; a value that does not
// convert aborts the load and rolls back. Malformed lines go to req.OnSkip.
func (r *Repo) LoadRows(ctx context.Context, req storage.LoadRequest) (n int64, err error) {
	if len(req.Columns) == 0 {
		return 0, fmt.Errorf("mssql: load %s: no columns", req.Table)
	}
	f, err := os.Open(req.Path)
	if err != nil {
		return 0, fmt.Errorf("mssql: open %s: %w", req.Path, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	names := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		names[i] = storage.ColumnName(c)
	}
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(mssqlTableIdent(req.Table), mssql.BulkOptions{Tablock: true}, names...))
	if err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("mssql: prepare bulk copy %s: %w", req.Table, err)
	}
	defer stmt.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rows := make(chan *csvparse.Row, 256)
	errc := make(chan error, 1)
	go func() {
		defer close(rows)
		errc <- csvparse.StreamRows(streamCtx, f, req.Columns, csvparse.OptionsFor(req.Delimiter), rows, req.OnSkip)
	}()

	var execErr error
	for row := range rows {
		if execErr != nil {
			row.Drop()
			continue
		}
		if _, e := stmt.ExecContext(ctx, row.V...); e != nil {
			execErr = fmt.Errorf("mssql: bulk row line %d into %s: %w", row.Line, req.Table, e)
			row.Drop()
			cancel()
			continue
		}
		row.Free()
	}
	streamErr := <-errc
	if execErr != nil {
		return 0, execErr
	}
	if streamErr != nil {
		return 0, fmt.Errorf("mssql: read %s: %w", req.Path, streamErr)
	}

	// An Exec without arguments flushes the batch and reports the row count.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mssql: flush bulk copy %s: %w", req.Table, err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mssql: rows affected: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return n, nil
}

func columnType(t schema.SQLType) string {
	switch t.Resolve() {
	case schema.Int:
		return "INT"
	case schema.BigInt:
		return "BIGINT"
	case schema.Float:
		return "REAL"
	case schema.Double:
		return "FLOAT"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "DATETIME2"
	case schema.Boolean:
		return "BIT"
	default:
		return "NVARCHAR(MAX)"
	}
}

func buildCreateSQL(table string, cols []schema.Column) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("mssql: table %s has no columns", table)
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		name := storage.ColumnName(c)
		if name == "" {
			return "", fmt.Errorf("mssql: column name is empty")
		}
		def := mssqlIdent(name) + " " + columnType(c.Type)
		if c.Nullable {
			def += " NULL"
		} else {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", mssqlTableIdent(table), strings.Join(defs, ",\n  ")), nil
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a schema-qualified name.
//
//	"dbo.pets" -> [dbo].[pets]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// dbConn is the subset of *sql.DB this package uses; tests pass a sqlmock
// handle.
type dbConn interface {
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

var (
	_ dbConn             = (*sql.DB)(nil)
	_ storage.Repository = (*Repo)(nil)
)
