package config

import (
	"time"
)

type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Gateway      GatewayConfig      `yaml:"gateway" mapstructure:"gateway"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Session      SessionConfig      `yaml:"session" mapstructure:"session"`
	Detector     DetectorConfig     `yaml:"detector" mapstructure:"detector"`
	Source       SourceConfig       `yaml:"source" mapstructure:"source"`
	Sink         SinkConfig         `yaml:"sink" mapstructure:"sink"`
	TriggerStore TriggerStoreConfig `yaml:"trigger_store" mapstructure:"trigger_store"`
	Triggers     []SeedTrigger      `yaml:"triggers" mapstructure:"triggers"`
}

// ServerConfig binds the HTTP control API.
type ServerConfig struct {
	IP   string `yaml:"ip" mapstructure:"ip"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// GatewayConfig binds the websocket gateway that streams sink edits to
// automation clients.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	IP      string `yaml:"ip" mapstructure:"ip"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Path    string `yaml:"path" mapstructure:"path"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// SessionConfig tunes the lifecycle controller. Duration fields are
// duration strings ("58s", "300ms").
type SessionConfig struct {
	// MaxDuration is the session budget, kept safely below the engine's
	// hard limit.
	MaxDuration string `yaml:"max_duration" mapstructure:"max_duration"`
	// SettleDelay is the quiescence period between stop and start of a
	// reset cycle.
	SettleDelay  string `yaml:"settle_delay" mapstructure:"settle_delay"`
	RetryBackoff string `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	AckTimeout   string `yaml:"ack_timeout" mapstructure:"ack_timeout"`
	Locale       string `yaml:"locale" mapstructure:"locale"`
	// Autostart begins listening as soon as the service boots. When
	// false the controller stays stopped until POST /api/listening.
	Autostart bool `yaml:"autostart" mapstructure:"autostart"`
}

type DetectorConfig struct {
	Threshold     float64 `yaml:"threshold" mapstructure:"threshold"`
	MinScanLength int     `yaml:"min_scan_length" mapstructure:"min_scan_length"`
	MaxScanLength int     `yaml:"max_scan_length" mapstructure:"max_scan_length"`
	// BufferCeiling is the command length (in runes) that forces an
	// auto-commit.
	BufferCeiling int  `yaml:"buffer_ceiling" mapstructure:"buffer_ceiling"`
	AutoSubmit    bool `yaml:"auto_submit" mapstructure:"auto_submit"`
}

type SourceConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	WSStream WSStreamConfig `yaml:"wsstream,omitempty" mapstructure:"wsstream"`
	Replay   ReplayConfig   `yaml:"replay,omitempty" mapstructure:"replay"`
}

type WSStreamConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	APIKey      string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Lang        string `yaml:"lang,omitempty" mapstructure:"lang"`
	DialTimeout string `yaml:"dial_timeout,omitempty" mapstructure:"dial_timeout"`
}

type ReplayConfig struct {
	Script []ReplayStep `yaml:"script" mapstructure:"script"`
	Loop   bool         `yaml:"loop" mapstructure:"loop"`
	// FailAfter injects an engine fault after that many fragments.
	// Zero plays the script through.
	FailAfter int `yaml:"fail_after,omitempty" mapstructure:"fail_after"`
	// StartDelay stalls session startup, long enough values trip the
	// controller's ack timeout.
	StartDelay string `yaml:"start_delay,omitempty" mapstructure:"start_delay"`
}

type ReplayStep struct {
	Text  string `yaml:"text" mapstructure:"text"`
	Final bool   `yaml:"final" mapstructure:"final"`
	Delay string `yaml:"delay,omitempty" mapstructure:"delay"`
}

type SinkConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
}

type TriggerStoreConfig struct {
	Type    string             `yaml:"type" mapstructure:"type"`
	Expiry  string             `yaml:"expiry,omitempty" mapstructure:"expiry"`
	Cleanup string             `yaml:"cleanup,omitempty" mapstructure:"cleanup"`
	Redis   RedisStoreConfig   `yaml:"redis,omitempty" mapstructure:"redis"`
	SQLite  SQLiteStoreConfig  `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Memory  MemoryStoreConfig  `yaml:"memory,omitempty" mapstructure:"memory"`
	Labels  map[string]string  `yaml:"labels,omitempty" mapstructure:"labels"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type SQLiteStoreConfig struct {
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

type MemoryStoreConfig struct {
	Cleanup string `yaml:"cleanup" mapstructure:"cleanup"`
}

// SeedTrigger is a trigger phrase loaded into the store at startup when
// the store is empty.
type SeedTrigger struct {
	Phrase string `yaml:"phrase" mapstructure:"phrase"`
	Owner  string `yaml:"owner" mapstructure:"owner"`
}

// Duration parses a duration string from the config, falling back to def
// when the field is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
