package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"csvload/internal/schema"
	"csvload/internal/storage"
)

func openTemp(t *testing.T) storage.Repository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "csvload.db")
	repo, err := storage.New(context.Background(), storage.Config{Driver: Driver, DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepo_CreateTableThenExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTemp(t)

	cols := []schema.Column{
		{Name: "id", Type: schema.Int},
		{Name: "name", Type: schema.Text, Nullable: true},
		{Name: "active", Type: schema.Boolean, Nullable: true},
	}

	exists, err := repo.TableExists(ctx, "pets")
	if err != nil || exists {
		t.Fatalf("TableExists before create: exists=%v err=%v", exists, err)
	}
	if err := repo.CreateTable(ctx, "pets", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	exists, err = repo.TableExists(ctx, "pets")
	if err != nil || !exists {
		t.Fatalf("TableExists after create: exists=%v err=%v", exists, err)
	}

	err = repo.CreateTable(ctx, "pets", cols)
	if !errors.Is(err, storage.ErrTableExists) {
		t.Fatalf("second CreateTable: got %v, want ErrTableExists", err)
	}
}

func TestRepo_NotNullEnforced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTemp(t)

	if err := repo.CreateTable(ctx, "t", []schema.Column{{Name: "id", Type: schema.Int}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	db := repo.(*Repo).db
	if _, err := db.ExecContext(ctx, `INSERT INTO "t" ("id") VALUES (NULL)`); err == nil {
		t.Fatalf("expected NOT NULL violation")
	}
}

func TestRepo_LoadRowsUnsupported(t *testing.T) {
	t.Parallel()
	repo := openTemp(t)

	_, err := repo.LoadRows(context.Background(), storage.LoadRequest{Table: "t"})
	if !errors.Is(err, storage.ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	ddl, err := buildCreateSQL("mixed", []schema.Column{
		{Name: "n", Type: schema.BigInt},
		{Name: "x", Type: schema.Double, Nullable: true},
		{Name: "d", Type: schema.Date, Nullable: true},
		{Name: "ts", Type: schema.Timestamp, Nullable: true},
		{Name: "b", Type: schema.Boolean, Nullable: true},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := `CREATE TABLE "mixed" ("n" INTEGER NOT NULL, "x" REAL, "d" TEXT, "ts" TEXT, "b" INTEGER)`
	if ddl != want {
		t.Fatalf("got  %s\nwant %s", ddl, want)
	}
	if strings.Contains(ddl, "IF NOT EXISTS") {
		t.Fatalf("unexpected IF NOT EXISTS")
	}

	if _, err := buildCreateSQL("t", nil); err == nil {
		t.Fatalf("expected error for no columns")
	}
}
