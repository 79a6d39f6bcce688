package storage

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:migration-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

// tableMigration creates one table and counts how often it ran.
type tableMigration struct {
	version string
	table   string
	ups     int
}

func (m *tableMigration) Version() string     { return m.version }
func (m *tableMigration) Description() string { return "create " + m.table }

func (m *tableMigration) Up(db *gorm.DB) error {
	m.ups++
	return db.Exec("CREATE TABLE " + m.table + " (id INTEGER PRIMARY KEY)").Error
}

func (m *tableMigration) Down(db *gorm.DB) error {
	return db.Exec("DROP TABLE " + m.table).Error
}

// brokenMigration fails partway through Up.
type brokenMigration struct{}

func (m *brokenMigration) Version() string     { return "999_broken" }
func (m *brokenMigration) Description() string { return "always fails" }

func (m *brokenMigration) Up(db *gorm.DB) error {
	return db.Exec("CREATE TABLE no syntax here").Error
}

func (m *brokenMigration) Down(db *gorm.DB) error { return nil }

func TestRunMigrations_AppliesEachVersionOnce(t *testing.T) {
	db := newTestDB(t)
	mig := &tableMigration{version: "001_commands", table: "commands"}
	manager := NewMigrationManager(db, mig)

	if err := manager.RunMigrations(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := manager.RunMigrations(); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if mig.ups != 1 {
		t.Errorf("migration ran %d times, expected once", mig.ups)
	}

	history, err := manager.GetMigrationHistory()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Version != "001_commands" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestRunMigrations_FailureLeavesNoRecord(t *testing.T) {
	db := newTestDB(t)
	manager := NewMigrationManager(db, &brokenMigration{})

	if err := manager.RunMigrations(); err == nil {
		t.Fatalf("expected the broken migration to fail")
	}

	history, err := manager.GetMigrationHistory()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("failed migration must not be recorded, got %+v", history)
	}
}

func TestRollbackMigration_RemovesRecordAndAllowsRerun(t *testing.T) {
	db := newTestDB(t)
	mig := &tableMigration{version: "001_commands", table: "commands"}
	manager := NewMigrationManager(db, mig)

	if err := manager.RunMigrations(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := manager.RollbackMigration("001_commands"); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	history, err := manager.GetMigrationHistory()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("rollback must clear the record, got %+v", history)
	}

	// The version is pending again after the rollback.
	if err := manager.RunMigrations(); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if mig.ups != 2 {
		t.Errorf("migration ran %d times, expected rerun after rollback", mig.ups)
	}
}

func TestRollbackMigration_UnknownVersion(t *testing.T) {
	db := newTestDB(t)
	manager := NewMigrationManager(db)

	if err := manager.RunMigrations(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := manager.RollbackMigration("042_missing"); err == nil {
		t.Fatalf("expected an error for a version that never ran")
	}
}
