package storage

import (
	"context"
	"strings"
	"testing"

	"csvload/internal/schema"
)

type fakeRepo struct{ dsn string }

func (f *fakeRepo) Ping(context.Context) error                        { return nil }
func (f *fakeRepo) TableExists(context.Context, string) (bool, error) { return false, nil }
func (f *fakeRepo) CreateTable(context.Context, string, []schema.Column) error {
	return nil
}
func (f *fakeRepo) LoadRows(context.Context, LoadRequest) (int64, error) { return 0, nil }
func (f *fakeRepo) Close() error                                         { return nil }

func TestColumnName(t *testing.T) {
	for in, want := range map[string]string{"id": "id", " x ": "x", "\tname\r": "name"} {
		if got := ColumnName(schema.Column{Name: in}); got != want {
			t.Fatalf("ColumnName(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestRegisterAndNew(t *testing.T) {
	Register("fake-test", func(_ context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{dsn: cfg.DSN}, nil
	})

	repo, err := New(context.Background(), Config{Driver: "fake-test", DSN: "x://y"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := repo.(*fakeRepo).dsn; got != "x://y" {
		t.Fatalf("factory got DSN %q", got)
	}

	found := false
	for _, d := range Drivers() {
		if d == "fake-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Drivers() missing fake-test: %v", Drivers())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty driver")
	}
	_, err := New(context.Background(), Config{Driver: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestRegister_Panics(t *testing.T) {
	Register("dup-test", func(context.Context, Config) (Repository, error) { return nil, nil })

	tests := []struct {
		name   string
		driver string
		f      Factory
	}{
		{name: "empty_driver", driver: "", f: func(context.Context, Config) (Repository, error) { return nil, nil }},
		{name: "nil_factory", driver: "nil-test", f: nil},
		{name: "duplicate", driver: "dup-test", f: func(context.Context, Config) (Repository, error) { return nil, nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			Register(tc.driver, tc.f)
		})
	}
}
