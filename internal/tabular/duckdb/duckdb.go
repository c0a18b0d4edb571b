// Package duckdb opens delimited files through an in-memory DuckDB instance.
//
// Each Open gets its own database; the file is exposed as a view over
// read_csv_auto so DuckDB's sniffer decides dialect and column types.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"csvload/internal/tabular"
)

// EngineName is the key this engine registers under.
const EngineName = "duckdb"

const viewName = "src"

// typeCandidates adds INTEGER to DuckDB's default sniffing set so small
// integer columns are not all reported as BIGINT.
const typeCandidates = "['BOOLEAN', 'INTEGER', 'BIGINT', 'DOUBLE', 'TIME', 'DATE', 'TIMESTAMP', 'VARCHAR']"

func init() {
	tabular.Register(EngineName, tabular.OpenerFunc(Open))
}

// Relation is a DuckDB view over one file.
type Relation struct {
	db        *sql.DB
	headers   []string
	rawTypes  []string
	rowCount  int64
	delimiter string
}

// Open creates the view, reads column metadata and counts rows.
//
// The database is closed again if any step fails.
func Open(ctx context.Context, path string) (tabular.Relation, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("duckdb: resolve path %s: %w", path, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	// One connection keeps the view and the reads on the same session.
	db.SetMaxOpenConns(1)

	r := &Relation{db: db, delimiter: ","}
	if err := r.load(ctx, abs); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Relation) load(ctx context.Context, abs string) error {
	create := fmt.Sprintf(
		"CREATE VIEW %s AS SELECT * FROM read_csv_auto(%s, header=true, auto_type_candidates=%s)",
		quoteIdent(viewName), quoteLiteral(abs), typeCandidates,
	)
	if _, err := r.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("duckdb: read %s: %w", abs, err)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT column_name, column_type FROM (DESCRIBE %s)", quoteIdent(viewName)))
	if err != nil {
		return fmt.Errorf("duckdb: describe: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return fmt.Errorf("duckdb: scan describe: %w", err)
		}
		r.headers = append(r.headers, name)
		r.rawTypes = append(r.rawTypes, typ)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("duckdb: describe rows: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(viewName)).Scan(&r.rowCount); err != nil {
		return fmt.Errorf("duckdb: count rows: %w", err)
	}

	// Older DuckDB builds lack sniff_csv; the comma default stands then.
	var delim sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT Delimiter FROM sniff_csv("+quoteLiteral(abs)+")").Scan(&delim); err == nil && delim.Valid && delim.String != "" {
		r.delimiter = delim.String
	}
	return nil
}

// Headers implements tabular.Relation.
func (r *Relation) Headers() []string { return r.headers }

// RawTypes implements tabular.Relation.
func (r *Relation) RawTypes() []string { return r.rawTypes }

// RowCount implements tabular.Relation.
func (r *Relation) RowCount() int64 { return r.rowCount }

// Delimiter implements tabular.Relation.
func (r *Relation) Delimiter() string { return r.delimiter }

// DistinctNonBlank implements tabular.Relation.
func (r *Relation) DistinctNonBlank(ctx context.Context, col int, limit int) ([]string, error) {
	expr, err := r.valueExpr(col)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	q := fmt.Sprintf(
		"SELECT DISTINCT lower(%[1]s) FROM %[2]s WHERE %[1]s IS NOT NULL AND %[1]s <> '' LIMIT %[3]d",
		expr, quoteIdent(viewName), limit,
	)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("duckdb: distinct %s: %w", r.headers[col], err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]string, 0, limit)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("duckdb: scan distinct %s: %w", r.headers[col], err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountBlank implements tabular.Relation.
func (r *Relation) CountBlank(ctx context.Context, col int) (int64, error) {
	expr, err := r.valueExpr(col)
	if err != nil {
		return 0, err
	}

	q := fmt.Sprintf("SELECT COUNT(*) FROM %[2]s WHERE %[1]s IS NULL OR %[1]s = ''", expr, quoteIdent(viewName))
	var n int64
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count blank %s: %w", r.headers[col], err)
	}
	return n, nil
}

// Close releases the in-memory database.
func (r *Relation) Close() error {
	return r.db.Close()
}

// valueExpr renders column col as a trimmed VARCHAR expression.
func (r *Relation) valueExpr(col int) (string, error) {
	if col < 0 || col >= len(r.headers) {
		return "", fmt.Errorf("duckdb: column index %d out of range (have %d)", col, len(r.headers))
	}
	return fmt.Sprintf("trim(CAST(%s AS VARCHAR))", quoteIdent(r.headers[col])), nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var _ tabular.Relation = (*Relation)(nil)
