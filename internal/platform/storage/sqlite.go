package storage

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/storage/migrations"
)

// DefaultDSN is used when the config leaves the SQLite path empty.
const DefaultDSN = "data/voicerelay.db"

// Open opens the SQLite database and brings the schema up to date.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}

	// file: DSNs (memory databases, shared caches) carry no directory.
	if !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "open", "failed to create data directory", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "open", "failed to open database", err)
	}

	manager := NewMigrationManager(db, &migrations.Migration001Triggers{})
	if err := manager.RunMigrations(); err != nil {
		return nil, err
	}

	return db, nil
}
