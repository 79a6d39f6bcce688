// Package source defines the contract between the session controller
// and speech-recognition engines, plus the driver registry the
// bootstrap uses to pick one at startup.
package source

import (
	"context"
	"fmt"

	"voicerelay-server-go/internal/platform/config"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
)

// Fragment is one transcript snapshot from a recognition session. Text
// is cumulative: each fragment carries the engine's best hypothesis for
// everything heard so far in the session, not a delta.
type Fragment struct {
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
	SessionID string `json:"session_id"`
}

// SessionOptions carries per-session parameters to the driver.
type SessionOptions struct {
	SessionID string
	Locale    string
}

// Session is one live recognition stream.
type Session interface {
	// Fragments yields transcript snapshots until the session ends. The
	// channel closes after End, a clean engine finish, or a failure.
	Fragments() <-chan Fragment
	// Err reports why Fragments closed. Nil for a clean end.
	Err() error
	// End stops the stream and releases engine resources. Safe to call
	// more than once.
	End(ctx context.Context) error
}

// Provider opens recognition sessions against one engine.
type Provider interface {
	Name() string
	BeginSession(ctx context.Context, opts SessionOptions) (Session, error)
	Close() error
}

// Factory builds a provider from its config section.
type Factory func(cfg *config.SourceConfig, logger *logging.Logger) (Provider, error)

var factories = make(map[string]Factory)

// Register makes a driver available under name. Driver packages call
// this from init.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Create builds the driver registered under name.
func Create(name string, cfg *config.SourceConfig, logger *logging.Logger) (Provider, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, errors.New(errors.KindConfig, "source.create",
			fmt.Sprintf("unknown source driver: %s", name))
	}

	provider, err := factory(cfg, logger)
	if err != nil {
		return nil, errors.Wrap(errors.KindBootstrap, "source.create",
			fmt.Sprintf("source driver %s failed to initialize", name), err)
	}

	return provider, nil
}
