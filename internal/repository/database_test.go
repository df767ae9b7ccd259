package repository

import (
	"path/filepath"
	"testing"
)

func TestNewDatabaseSQLiteMigrates(t *testing.T) {
	db, err := NewDatabase(Options{Driver: "sqlite", DBPath: filepath.Join(t.TempDir(), "data", "activity.db")})
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	defer db.Close()

	if db.SafeMode {
		t.Fatalf("unexpected safe mode: %s", db.MigrationError)
	}
	if db.SchemaVersion != latestSchemaVersion {
		t.Fatalf("schema version=%d, want %d", db.SchemaVersion, latestSchemaVersion)
	}
	for _, table := range []string{"activity_log", "activity_log_archive", "referrals"} {
		if !db.DB.Migrator().HasTable(table) {
			t.Fatalf("table %s not created", table)
		}
	}
}

func TestNewDatabaseRejectsUnknownDriver(t *testing.T) {
	if _, err := NewDatabase(Options{Driver: "oracle"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := NewDatabase(Options{Driver: "postgres"}); err == nil {
		t.Fatalf("expected error for postgres without dsn")
	}
}
