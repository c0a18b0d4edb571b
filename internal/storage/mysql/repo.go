// Package mysql is the MySQL/MariaDB storage backend. Loads go through
// LOAD DATA LOCAL INFILE with the file served by a registered reader
// handler, so the server never needs filesystem access to it.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"csvload/internal/schema"
	"csvload/internal/storage"
)

// Driver is the family name this backend registers under.
const Driver = "mysql"

// errTableExists is ER_TABLE_EXISTS_ERROR.
const errTableExists = 1050

func init() {
	storage.Register(Driver, New)
}

// Repo implements storage.Repository for MySQL.
type Repo struct {
	db *sql.DB
}

// New opens cfg.DSN (go-sql-driver syntax) and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repo) Close() error { return r.db.Close() }

// TableExists checks information_schema for the current database.
func (r *Repo) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("mysql: table exists %s: %w", table, err)
	}
	return n > 0, nil
}

func (r *Repo) CreateTable(ctx context.Context, table string, cols []schema.Column) error {
	ddl, err := buildCreateSQL(table, cols)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == errTableExists {
			return fmt.Errorf("mysql: %s: %w", table, storage.ErrTableExists)
		}
		return fmt.Errorf("mysql: create table %s: %w", table, err)
	}
	return nil
}

// LoadRows registers req.Path under a one-off reader name, runs the LOAD
// DATA statement and deregisters the handler again. The DSN must allow
// local infile for reader handlers (allowAllFiles is not needed).
func (r *Repo) LoadRows(ctx context.Context, req storage.LoadRequest) (int64, error) {
	if len(req.Columns) == 0 {
		return 0, fmt.Errorf("mysql: load %s: no columns", req.Table)
	}
	f, err := os.Open(req.Path)
	if err != nil {
		return 0, fmt.Errorf("mysql: open %s: %w", req.Path, err)
	}
	defer f.Close()

	name := "csvload-" + uuid.NewString()
	mysql.RegisterReaderHandler(name, func() io.Reader { return f })
	defer mysql.DeregisterReaderHandler(name)

	res, err := r.db.ExecContext(ctx, buildLoadSQL(name, req))
	if err != nil {
		return 0, fmt.Errorf("mysql: load data into %s: %w", req.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mysql: rows affected: %w", err)
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
		return "FLOAT"
	case schema.Double:
		return "DOUBLE"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "DATETIME"
	case schema.Boolean:
		return "TINYINT(1)"
	default:
		return "TEXT"
	}
}

func buildCreateSQL(table string, cols []schema.Column) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("mysql: table name is empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("mysql: table %s has no columns", table)
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		name := storage.ColumnName(c)
		if name == "" {
			return "", fmt.Errorf("mysql: column name is empty")
		}
		def := ident(name) + " " + columnType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", ident(table), strings.Join(defs, ",\n  ")), nil
}

// buildLoadSQL reads every field into a user variable and assigns columns
// from those, so blank fields become NULL instead of '' or 0.
func buildLoadSQL(reader string, req storage.LoadRequest) string {
	delim := req.Delimiter
	if delim == "" {
		delim = ","
	}

	vars := make([]string, len(req.Columns))
	sets := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		v := fmt.Sprintf("@v%d", i)
		vars[i] = v
		sets[i] = ident(storage.ColumnName(c)) + " = " + assignExpr(v, c.Type)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "LOAD DATA LOCAL INFILE %s INTO TABLE %s", literal("Reader::"+reader), ident(req.Table))
	b.WriteString(" CHARACTER SET utf8mb4")
	fmt.Fprintf(&b, " FIELDS TERMINATED BY %s OPTIONALLY ENCLOSED BY '\"'", literal(delim))
	b.WriteString(" LINES TERMINATED BY '\\n' IGNORE 1 LINES")
	fmt.Fprintf(&b, " (%s) SET %s", strings.Join(vars, ", "), strings.Join(sets, ", "))
	return b.String()
}

func assignExpr(v string, t schema.SQLType) string {
	blankToNull := fmt.Sprintf("NULLIF(TRIM(REPLACE(%s, '\\r', '')), '')", v)
	if t.Resolve() != schema.Boolean {
		return blankToNull
	}
	return fmt.Sprintf(
		"CASE LOWER(%s) WHEN '1' THEN 1 WHEN 'true' THEN 1 WHEN 't' THEN 1 WHEN 'yes' THEN 1 WHEN 'y' THEN 1 "+
			"WHEN '0' THEN 0 WHEN 'false' THEN 0 WHEN 'f' THEN 0 WHEN 'no' THEN 0 WHEN 'n' THEN 0 ELSE NULL END",
		blankToNull,
	)
}

func ident(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\t", `\t`)
	return "'" + r.Replace(s) + "'"
}

var _ storage.Repository = (*Repo)(nil)
