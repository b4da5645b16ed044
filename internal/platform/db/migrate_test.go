package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigration(t *testing.T, dir, name, sql string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
		t.Fatalf("write migration %s: %v", name, err)
	}
}

func TestMigratorLoad_SortsByVersion(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "002_work_items.sql", "CREATE TABLE work_items (id UUID);")
	writeMigration(t, dir, "001_orders.sql", "CREATE TABLE orders (id UUID);")
	writeMigration(t, dir, "010_qc.sql", "CREATE TABLE qc_runs (id UUID);")

	m := NewMigrator(nil, dir)
	migrations, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	wantVersions := []int{1, 2, 10}
	for i, want := range wantVersions {
		if migrations[i].Version != want {
			t.Errorf("migration %d: version = %d, want %d", i, migrations[i].Version, want)
		}
	}
	if migrations[0].Name != "001_orders.sql" {
		t.Errorf("first migration = %s, want 001_orders.sql", migrations[0].Name)
	}
}

func TestMigratorLoad_SkipsNonNumericAndNonSQL(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_orders.sql", "CREATE TABLE orders (id UUID);")
	writeMigration(t, dir, "notes.txt", "not a migration")
	writeMigration(t, dir, "seed.sql", "no numeric prefix")
	writeMigration(t, dir, "abc_bad.sql", "bad prefix")

	m := NewMigrator(nil, dir)
	migrations, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
	if migrations[0].Name != "001_orders.sql" {
		t.Errorf("loaded %s, want 001_orders.sql", migrations[0].Name)
	}
}

func TestMigratorLoad_MissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
