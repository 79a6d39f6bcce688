// Package bootstrap assembles the relay from configuration: it loads the
// config file, wires the trigger store, detector, relay and session
// controller together and supervises the HTTP and websocket transports
// until a shutdown signal arrives.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	appservices "voicerelay-server-go/internal/app/services"
	"voicerelay-server-go/internal/domain/detect"
	"voicerelay-server-go/internal/domain/eventbus"
	"voicerelay-server-go/internal/domain/session"
	"voicerelay-server-go/internal/domain/sink"
	"voicerelay-server-go/internal/domain/source"
	"voicerelay-server-go/internal/domain/trigger"
	triggerstore "voicerelay-server-go/internal/domain/trigger/store"
	platformconfig "voicerelay-server-go/internal/platform/config"
	platformerrors "voicerelay-server-go/internal/platform/errors"
	platformlogging "voicerelay-server-go/internal/platform/logging"
	platformobservability "voicerelay-server-go/internal/platform/observability"
	platformstorage "voicerelay-server-go/internal/platform/storage"
	httptransport "voicerelay-server-go/internal/transport/http"
	httpwebapi "voicerelay-server-go/internal/transport/http/webapi"
	"voicerelay-server-go/internal/transport/ws"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	// Source drivers register themselves on import.
	_ "voicerelay-server-go/internal/domain/source/replay"
	_ "voicerelay-server-go/internal/domain/source/wsstream"
)

const (
	busWorkers       = 8
	teardownTimeout  = 5 * time.Second
	httpStopTimeout  = 10 * time.Second
	forceStopTimeout = 15 * time.Second
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	bus                   *eventbus.Bus
	db                    *gorm.DB
	registry              *trigger.Registry
	provider              source.Provider
	hub                   *ws.Hub
	gateway               *ws.Server
	sink                  sink.Sink
	relay                 *appservices.RelayService
	controller            *session.Controller
}

// Run drives the whole service lifetime: initialisation, supervision and
// graceful shutdown. configPath overrides the config file location; an
// empty string falls back to VOICERELAY_CONFIG and then the default path.
func Run(ctx context.Context, configPath string) error {
	state := &appState{configPath: configPath}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.relay == nil || state.controller == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"relay pipeline not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("BOOT", "observability did not shut down cleanly: %v", err)
			}
		}()
	}

	defer teardown(state)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if config.Session.Autostart {
		startCtx, cancelStart := context.WithTimeout(groupCtx, teardownTimeout)
		err := state.controller.Start(startCtx)
		cancelStart()
		if err != nil {
			// The control API can retry via POST /api/listening, so a
			// failed first dial does not bring the service down.
			logger.WarnTag("BOOT", "autostart failed, service is idle: %v", err)
		}
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "shutdown complete")
	logger.Close()
	return nil
}

// teardown releases components in reverse dependency order: stop feeding
// the relay before closing it, close it before dropping its stores.
func teardown(state *appState) {
	logger := state.logger

	if state.controller != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		if err := state.controller.Close(closeCtx); err != nil {
			logger.WarnTag("SESSION", "controller did not close cleanly: %v", err)
		}
		cancel()
	}
	if state.relay != nil {
		state.relay.Close()
	}
	if state.provider != nil {
		if err := state.provider.Close(); err != nil {
			logger.WarnTag("SOURCE", "provider did not close cleanly: %v", err)
		}
	}
	if state.registry != nil {
		if err := state.registry.Close(); err != nil {
			logger.WarnTag("BOOT", "trigger registry did not close cleanly: %v", err)
		}
	}
	if state.bus != nil {
		state.bus.WaitAsync()
		state.bus.Close()
	}
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "initialisation steps completed")
	for _, step := range steps {
		logger.InfoTag("BOOT", "  %s", step.Title)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the initialisation steps in execution order. DependsOn
// is validated at runtime so a reordering mistake fails loudly instead of
// producing a half-wired service.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logging",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "bus:init",
			Title:     "Initialise event bus",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initBusStep,
		},
		{
			ID:        "storage:init",
			Title:     "Initialise trigger database",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStorageStep,
		},
		{
			ID:        "triggers:init",
			Title:     "Initialise trigger registry",
			DependsOn: []string{"storage:init", "bus:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   initTriggersStep,
		},
		{
			ID:        "observability:setup",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "source:init",
			Title:     "Initialise recognition source",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initSourceStep,
		},
		{
			ID:        "gateway:init",
			Title:     "Initialise websocket gateway",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindTransport,
			Execute:   initGatewayStep,
		},
		{
			ID:        "sink:init",
			Title:     "Initialise text sink",
			DependsOn: []string{"gateway:init"},
			Kind:      platformerrors.KindSink,
			Execute:   initSinkStep,
		},
		{
			ID:        "relay:init",
			Title:     "Initialise relay pipeline",
			DependsOn: []string{"triggers:init", "sink:init", "bus:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initRelayStep,
		},
		{
			ID:        "controller:init",
			Title:     "Initialise session controller",
			DependsOn: []string{"relay:init", "source:init"},
			Kind:      platformerrors.KindSession,
			Execute:   initControllerStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().WithPath(state.configPath).Load()
	if err != nil {
		return err
	}

	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "built-in defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init", "failed to initialise logging", err)
	}

	state.logger = logger
	state.logger.InfoTag(
		"BOOT",
		"logging ready [%s] config from %s",
		state.config.Log.Level,
		state.configPath,
	)
	return nil
}

func initBusStep(_ context.Context, state *appState) error {
	state.bus = eventbus.New(busWorkers)
	if err := eventbus.NewMonitor(state.logger).Attach(state.bus); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "bus:init", "failed to attach bus monitor", err)
	}
	return nil
}

func initStorageStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindStorage,
			"storage:init",
			"config not loaded",
		)
	}

	// Only the sqlite store needs a database handle.
	driver := strings.ToLower(strings.TrimSpace(state.config.TriggerStore.Type))
	if driver != triggerstore.DriverSQLite {
		return nil
	}

	db, err := platformstorage.Open(state.config.TriggerStore.SQLite.DSN)
	if err != nil {
		return err
	}
	state.db = db
	state.logger.InfoTag("BOOT", "trigger database ready (%s)", state.config.TriggerStore.SQLite.DSN)
	return nil
}

func initTriggersStep(ctx context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindStorage,
			"triggers:init",
			"missing config/logger",
		)
	}

	storeCfg, err := triggerStoreConfig(state.config, state.logger)
	if err != nil {
		return err
	}

	triggers, err := triggerstore.New(storeCfg, triggerstore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "triggers:init", "failed to create trigger store", err)
	}

	registry, err := trigger.NewRegistry(trigger.Options{
		Store:           triggers,
		Logger:          state.logger,
		Bus:             state.bus,
		CleanupInterval: platformconfig.Duration(state.config.TriggerStore.Cleanup, 0),
	})
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		_ = triggers.Close(closeCtx)
		cancel()
		return platformerrors.Wrap(platformerrors.KindStorage, "triggers:init", "failed to create trigger registry", err)
	}

	seeds := make([]trigger.Seed, 0, len(state.config.Triggers))
	for _, seed := range state.config.Triggers {
		seeds = append(seeds, trigger.Seed{Phrase: seed.Phrase, Owner: seed.Owner})
	}
	if err := registry.Seed(ctx, seeds); err != nil {
		state.logger.WarnTag("BOOT", "trigger seeding incomplete: %v", err)
	}

	state.registry = registry
	state.logger.InfoTag("BOOT", "trigger registry ready (%s store, %d phrases)", storeCfg.Driver, len(registry.Snapshot()))
	return nil
}

// triggerStoreConfig maps the YAML store section onto the store package's
// own config, falling back to the memory driver for unknown types.
func triggerStoreConfig(config *platformconfig.Config, logger *platformlogging.Logger) (triggerstore.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(config.TriggerStore.Type))
	storeCfg := triggerstore.Config{Driver: driver}

	cleanupInterval := platformconfig.Duration(config.TriggerStore.Cleanup, 10*time.Minute)

	switch driver {
	case triggerstore.DriverMemory, "":
		storeCfg.Driver = triggerstore.DriverMemory
		if v := platformconfig.Duration(config.TriggerStore.Memory.Cleanup, 0); v > 0 {
			cleanupInterval = v
		}
		storeCfg.Memory = &triggerstore.MemoryConfig{GCInterval: cleanupInterval}
	case triggerstore.DriverSQLite:
		storeCfg.SQLite = &triggerstore.SQLiteConfig{DSN: config.TriggerStore.SQLite.DSN}
	case triggerstore.DriverRedis:
		storeCfg.Redis = &triggerstore.RedisConfig{
			Addr:     config.TriggerStore.Redis.Addr,
			Username: config.TriggerStore.Redis.Username,
			Password: config.TriggerStore.Redis.Password,
			DB:       config.TriggerStore.Redis.DB,
			Prefix:   config.TriggerStore.Redis.Prefix,
		}
		if storeCfg.Redis.Addr == "" {
			return triggerstore.Config{}, platformerrors.New(
				platformerrors.KindConfig,
				"triggers:init",
				"redis store addr is required",
			)
		}
	default:
		logger.WarnTag("BOOT", "unknown trigger store type %q, falling back to memory", driver)
		storeCfg.Driver = triggerstore.DriverMemory
		storeCfg.Memory = &triggerstore.MemoryConfig{GCInterval: cleanupInterval}
	}

	return storeCfg, nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	state.logger.InfoTag("BOOT", "observability enabled=%v", platformobservability.Enabled())
	return nil
}

func initSourceStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"source:init",
			"missing config/logger",
		)
	}

	provider, err := source.Create(state.config.Source.Driver, &state.config.Source, state.logger)
	if err != nil {
		return err
	}
	state.provider = provider
	state.logger.InfoTag("BOOT", "recognition source ready (%s)", provider.Name())
	return nil
}

func initGatewayStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindTransport,
			"gateway:init",
			"missing config/logger",
		)
	}

	if !state.config.Gateway.Enabled {
		state.logger.InfoTag("BOOT", "websocket gateway disabled")
		return nil
	}

	hub := ws.NewHub(state.logger)
	router := ws.NewRouter(hub, state.logger, ws.RouterOptions{})
	server := ws.NewServer(ws.ServerConfig{
		Addr: fmt.Sprintf("%s:%d", state.config.Gateway.IP, state.config.Gateway.Port),
		Path: state.config.Gateway.Path,
	}, router, hub, state.logger)

	state.hub = hub
	state.gateway = server
	return nil
}

func initSinkStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindSink,
			"sink:init",
			"missing config/logger",
		)
	}

	deps := sink.Dependencies{}
	if state.hub != nil {
		deps.Broadcaster = state.hub
	}

	target, err := sink.New(&state.config.Sink, deps, state.logger)
	if err != nil {
		return err
	}
	state.sink = target
	state.logger.InfoTag("BOOT", "text sink ready (%s)", target.Name())
	return nil
}

func initRelayStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"relay:init",
			"missing config/logger",
		)
	}

	detector := detect.New(detect.Config{
		Threshold:     state.config.Detector.Threshold,
		MinScanLength: state.config.Detector.MinScanLength,
		MaxScanLength: state.config.Detector.MaxScanLength,
		BufferCeiling: state.config.Detector.BufferCeiling,
	})

	relay, err := appservices.NewRelayService(&appservices.RelayConfig{
		Detector:   detector,
		Sink:       state.sink,
		Registry:   state.registry,
		Bus:        state.bus,
		Logger:     state.logger,
		AutoSubmit: state.config.Detector.AutoSubmit,
	})
	if err != nil {
		return err
	}
	state.relay = relay
	return nil
}

func initControllerStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindSession,
			"controller:init",
			"missing config/logger",
		)
	}

	sessionCfg := state.config.Session
	controller, err := session.NewController(session.Options{
		Source:       state.provider,
		Sink:         state.relay,
		Bus:          state.bus,
		Logger:       state.logger,
		MaxDuration:  platformconfig.Duration(sessionCfg.MaxDuration, session.DefaultMaxDuration),
		SettleDelay:  platformconfig.Duration(sessionCfg.SettleDelay, session.DefaultSettleDelay),
		RetryBackoff: platformconfig.Duration(sessionCfg.RetryBackoff, session.DefaultRetryBackoff),
		AckTimeout:   platformconfig.Duration(sessionCfg.AckTimeout, session.DefaultAckTimeout),
		Locale:       sessionCfg.Locale,
	})
	if err != nil {
		return err
	}

	state.controller = controller
	state.relay.BindLifecycle(controller)

	if state.gateway != nil {
		state.gateway.SetHandlerBuilder(appservices.GatewayHandlerBuilder(state.relay, state.logger))
	}
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if err := startGatewayServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}

	if _, err := startHTTPServer(state.config, state.logger, state.relay, state.registry, state.gateway, g, groupCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

func startGatewayServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	server := state.gateway
	if server == nil {
		return nil
	}
	logger := state.logger

	g.Go(func() error {
		go func() {
			<-groupCtx.Done()
			// Shutdown alone leaves hijacked websocket connections open;
			// Stop also empties the hub.
			if err := server.Stop(); err != nil {
				logger.ErrorTag("GATEWAY", "gateway shutdown failed: %v", err)
			} else {
				logger.InfoTag("GATEWAY", "gateway stopped")
			}
		}()

		if err := server.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			logger.ErrorTag("GATEWAY", "gateway server failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func startHTTPServer(
	config *platformconfig.Config,
	logger *platformlogging.Logger,
	relay *appservices.RelayService,
	registry *trigger.Registry,
	gateway *ws.Server,
	g *errgroup.Group,
	groupCtx context.Context,
) (*http.Server, error) {
	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine
	apiGroup := httpRouter.API

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httptransport.APIResponse{
			Success: false,
			Data:    gin.H{},
			Message: "not found",
			Code:    http.StatusNotFound,
		})
	})

	webapiService, err := httpwebapi.NewService(config, logger, relay, registry)
	if err != nil {
		logger.ErrorTag("HTTP", "control API init failed: %v", err)
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:new-service", "failed to create control API service", err)
	}

	if err := webapiService.Register(groupCtx, apiGroup); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:register", "failed to register control API routes", err)
	}
	webapiService.RegisterHealth(router)
	if gateway != nil {
		webapiService.BindGateway(gateway)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Server.IP, config.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "control API listening on http://%s/api", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpStopTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutting down: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(forceStopTimeout):
		timeoutErr := errors.New("shutdown timed out")
		logger.ErrorTag("BOOT", "shutdown timed out, exiting")
		return timeoutErr
	}
	return nil
}
