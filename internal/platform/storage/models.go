package storage

import (
	"time"
)

// TriggerRecord is the persisted form of a trigger phrase.
type TriggerRecord struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	TriggerID string     `gorm:"uniqueIndex;not null" json:"trigger_id"`
	Phrase    string     `gorm:"not null" json:"phrase"`
	Owner     string     `gorm:"index;not null" json:"owner"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TableName names the table explicitly so migrations and gorm agree.
func (TriggerRecord) TableName() string {
	return "trigger_phrases"
}
