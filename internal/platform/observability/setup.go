// Package observability provides span and metric hooks for the relay's
// transports. Datapoints are written as structured records through the
// application's slog handler; there is no exporter behind them yet, so
// a log pipeline is the consumer.
package observability

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Config toggles instrumentation. An exporter endpoint would live here
// once one exists.
type Config struct {
	Enabled bool
}

// ShutdownFunc flushes and tears down any exporters installed by Setup.
type ShutdownFunc func(context.Context) error

type sink struct {
	logger *slog.Logger
	cfg    Config
}

var active atomic.Pointer[sink]

func currentSink() *sink {
	return active.Load()
}

// Enabled reports whether instrumentation is live.
func Enabled() bool {
	s := currentSink()
	return s != nil && s.cfg.Enabled && s.logger != nil
}

// Setup installs the instrumentation sink. With Enabled false the span
// and metric helpers become no-ops, so transports can call them
// unconditionally.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	active.Store(&sink{logger: logger, cfg: cfg})

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "observability hooks enabled")
		} else {
			logger.InfoContext(ctx, "observability hooks disabled")
		}
	}
	return func(context.Context) error { return nil }, nil
}
