package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"voicerelay-server-go/internal/platform/errors"
)

// Migration is a single versioned schema change.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// MigrationRecord tracks which migrations have been applied.
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// MigrationManager applies migrations in registration order.
type MigrationManager struct {
	db         *gorm.DB
	migrations []Migration
}

// NewMigrationManager builds a manager over the given migrations.
func NewMigrationManager(db *gorm.DB, migrations ...Migration) *MigrationManager {
	return &MigrationManager{db: db, migrations: migrations}
}

// RunMigrations applies every migration that has not been recorded yet.
// A migration and its record commit in one transaction, so a failed
// migration leaves no trace and reruns next start.
func (m *MigrationManager) RunMigrations() error {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return errors.Wrap(errors.KindStorage, "migration.init", "failed to create migration table", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if applied[migration.Version()] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return err
		}
	}
	return nil
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	var versions []string
	if err := m.db.Model(&MigrationRecord{}).Pluck("version", &versions).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.list", "failed to read applied migrations", err)
	}

	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (m *MigrationManager) apply(migration Migration) error {
	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := migration.Up(tx); err != nil {
			return err
		}
		return tx.Create(&MigrationRecord{
			Version:   migration.Version(),
			Name:      migration.Description(),
			AppliedAt: time.Now(),
		}).Error
	})
	if err != nil {
		return errors.Wrap(errors.KindStorage, "migration.apply",
			fmt.Sprintf("migration %s failed", migration.Version()), err)
	}
	return nil
}

// RollbackMigration reverts one applied migration by version.
func (m *MigrationManager) RollbackMigration(version string) error {
	var record MigrationRecord
	if err := m.db.Where("version = ?", version).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.New(errors.KindStorage, "migration.rollback",
				fmt.Sprintf("migration %s was never applied", version))
		}
		return errors.Wrap(errors.KindStorage, "migration.rollback", "failed to load migration record", err)
	}

	target := m.find(version)
	if target == nil {
		return errors.New(errors.KindStorage, "migration.rollback",
			fmt.Sprintf("migration %s is not registered", version))
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := target.Down(tx); err != nil {
			return err
		}
		return tx.Delete(&record).Error
	})
	if err != nil {
		return errors.Wrap(errors.KindStorage, "migration.rollback",
			fmt.Sprintf("rollback of %s failed", version), err)
	}
	return nil
}

func (m *MigrationManager) find(version string) Migration {
	for _, migration := range m.migrations {
		if migration.Version() == version {
			return migration
		}
	}
	return nil
}

// GetMigrationHistory lists applied migrations, newest first.
func (m *MigrationManager) GetMigrationHistory() ([]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.Order("applied_at DESC").Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.history", "failed to read migration history", err)
	}
	return records, nil
}
