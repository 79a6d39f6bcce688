package sink

import (
	"fmt"
	"strings"

	"voicerelay-server-go/internal/platform/config"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
)

const (
	DriverMemory  = "memory"
	DriverGateway = "gateway"
)

// Dependencies carries runtime handles the drivers need.
type Dependencies struct {
	Broadcaster Broadcaster
}

// New builds a sink from configuration. An empty driver falls back to the
// in-memory sink so the relay always has a target.
func New(cfg *config.SinkConfig, deps Dependencies, logger *logging.Logger) (Sink, error) {
	driver := ""
	if cfg != nil {
		driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	}
	switch driver {
	case DriverMemory, "":
		return NewMemory(logger), nil
	case DriverGateway:
		return NewGateway(deps.Broadcaster, logger)
	default:
		return nil, errors.New(errors.KindConfig, "sink.new", fmt.Sprintf("unsupported sink driver: %s", driver))
	}
}
