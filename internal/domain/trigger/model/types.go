package model

import "time"

// Trigger is one phrase the detector listens for. ExpiresAt is nil for
// permanent triggers; temporary ones lapse and get swept by the store.
type Trigger struct {
	ID        string     `json:"id"`
	Phrase    string     `json:"phrase"`
	Owner     string     `json:"owner"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the trigger is live at the given instant.
func (t Trigger) Active(now time.Time) bool {
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// Logger provides the minimal logging contract required by the trigger domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
