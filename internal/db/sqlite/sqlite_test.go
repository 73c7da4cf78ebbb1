package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenCreatesDirectoryAndMigratesOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	migrations := []Migration{
		{Version: 1, SQL: `CREATE TABLE things (id INTEGER PRIMARY KEY)`},
	}
	if err := RunMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// повторный запуск не должен падать на CREATE TABLE
	if err := RunMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 migration row, got %d", n)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
