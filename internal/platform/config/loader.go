package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"voicerelay-server-go/internal/platform/errors"
)

// DefaultPath is consulted when no explicit config path is set and the
// VOICERELAY_CONFIG environment variable is empty.
const DefaultPath = "config.yaml"

// Loader reads the YAML config file over the built-in defaults.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader that reads from the default config path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      "",
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load reads defaults, overlays the config file when present and expands
// ${ENV_VAR} references in it.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using process environment")
		}
	}

	path := l.path
	if path == "" {
		path = os.Getenv("VOICERELAY_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(errors.KindConfig, "load", "failed to read config file", err)
		}
		// Missing file means defaults only.
		path = ""
	} else {
		expanded := os.ExpandEnv(string(raw))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "load", "failed to parse config file", err)
		}
	}

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("server port %d out of range", cfg.Server.Port))
	}
	if cfg.Gateway.Enabled && (cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535) {
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("gateway port %d out of range", cfg.Gateway.Port))
	}
	if cfg.Detector.Threshold <= 0 || cfg.Detector.Threshold > 1 {
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("detector threshold %v outside (0,1]", cfg.Detector.Threshold))
	}
	if cfg.Detector.MinScanLength < 0 ||
		(cfg.Detector.MaxScanLength > 0 && cfg.Detector.MaxScanLength < cfg.Detector.MinScanLength) {
		return errors.New(errors.KindConfig, "validate", "detector scan length bounds inverted")
	}
	if cfg.Source.Driver == "" {
		return errors.New(errors.KindConfig, "validate", "source driver not set")
	}
	return nil
}
