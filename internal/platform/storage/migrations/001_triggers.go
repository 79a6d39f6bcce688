package migrations

import (
	"gorm.io/gorm"
)

// Migration001Triggers creates the trigger phrase table.
type Migration001Triggers struct{}

func (m *Migration001Triggers) Version() string {
	return "001_triggers"
}

func (m *Migration001Triggers) Description() string {
	return "Create trigger phrase table"
}

func (m *Migration001Triggers) Up(db *gorm.DB) error {
	// Raw SQL keeps the schema explicit instead of trusting AutoMigrate
	// inside a versioned migration.
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trigger_phrases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trigger_id VARCHAR(255) NOT NULL UNIQUE,
			phrase VARCHAR(255) NOT NULL,
			owner VARCHAR(255) NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			expires_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_trigger_phrases_owner ON trigger_phrases(owner)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_trigger_phrases_expires_at ON trigger_phrases(expires_at)`).Error; err != nil {
		return err
	}

	return nil
}

func (m *Migration001Triggers) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS trigger_phrases`).Error
}
