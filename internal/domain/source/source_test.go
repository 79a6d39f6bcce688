package source

import (
	"context"
	stderrors "errors"
	"testing"

	"voicerelay-server-go/internal/platform/config"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
)

type nopProvider struct{ name string }

func (p *nopProvider) Name() string { return p.name }
func (p *nopProvider) BeginSession(ctx context.Context, opts SessionOptions) (Session, error) {
	return nil, stderrors.New("not implemented")
}
func (p *nopProvider) Close() error { return nil }

func TestCreate_RegisteredDriver(t *testing.T) {
	Register("fake-ok", func(cfg *config.SourceConfig, logger *logging.Logger) (Provider, error) {
		return &nopProvider{name: "fake-ok"}, nil
	})

	p, err := Create("fake-ok", &config.SourceConfig{}, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Name() != "fake-ok" {
		t.Errorf("created provider %q, expected fake-ok", p.Name())
	}
}

func TestCreate_UnknownDriver(t *testing.T) {
	_, err := Create("no-such-driver", &config.SourceConfig{}, nil)
	if !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("unknown driver should fail with a config error, got %v", err)
	}
}

func TestCreate_FactoryFailure(t *testing.T) {
	Register("fake-broken", func(cfg *config.SourceConfig, logger *logging.Logger) (Provider, error) {
		return nil, stderrors.New("bad credentials file")
	})

	_, err := Create("fake-broken", &config.SourceConfig{}, nil)
	if !errors.IsKind(err, errors.KindBootstrap) {
		t.Fatalf("factory failure should wrap as a bootstrap error, got %v", err)
	}
}
