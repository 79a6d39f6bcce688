package store

import (
	"context"
	"time"

	"voicerelay-server-go/internal/domain/trigger/model"
)

// Store defines the behaviour required by the trigger registry.
type Store interface {
	Put(ctx context.Context, trig model.Trigger) error
	Get(ctx context.Context, id string) (model.Trigger, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Trigger, error)
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
	SQLite *SQLiteConfig
	Memory *MemoryConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// SQLiteConfig provides the database dependency.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
