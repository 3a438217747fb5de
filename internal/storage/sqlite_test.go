package storage

import "testing"

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	applied, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("no migrations applied")
	}
	if applied[0] != 1 {
		t.Errorf("first migration = %d, want 1", applied[0])
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)

	before, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	after, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations (after): %v", err)
	}
	if len(before) != len(after) {
		t.Errorf("migration count changed on re-run: %d -> %d", len(before), len(after))
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("001_init.sql")
	if err != nil {
		t.Fatalf("parseMigrationVersion: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
	if _, err := parseMigrationVersion("init.sql"); err == nil {
		t.Error("expected error for filename without version prefix")
	}
}
