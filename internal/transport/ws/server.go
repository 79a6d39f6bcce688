// Package ws is the websocket gateway: automation clients connect here
// to receive sink frames and to send control signals such as an external
// commit.
package ws

import (
	"context"
	"net/http"
	"time"

	"voicerelay-server-go/internal/platform/logging"
)

// defaultStopTimeout bounds the graceful drain of in-flight upgrades
// when the gateway shuts down.
const defaultStopTimeout = 5 * time.Second

// ServerConfig stores the settings required to expose the websocket transport.
type ServerConfig struct {
	Addr string
	Path string
}

// Server coordinates the websocket router, hub and lifecycle management.
type Server struct {
	cfg     ServerConfig
	hub     *Hub
	router  *Router
	logger  *logging.Logger
	httpSrv *http.Server
}

// NewServer builds a websocket transport server.
func NewServer(cfg ServerConfig, router *Router, hub *Hub, logger *logging.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = "/"
	}

	return &Server{
		cfg:    cfg,
		router: router,
		hub:    hub,
		logger: logger,
	}
}

// SetHandlerBuilder wires the handler construction callback.
func (s *Server) SetHandlerBuilder(builder HandlerBuilder) {
	s.router.SetHandlerBuilder(builder)
}

// Start boots the HTTP server and listens for websocket upgrades. It
// blocks until the server stops; a cancelled ctx triggers a graceful
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	if s.httpSrv != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.router.Handle)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpSrv = srv

	if ctx != nil {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), defaultStopTimeout, context.Cause(ctx))
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	s.logger.InfoTag("GATEWAY", "listening on %s%s", s.cfg.Addr, s.cfg.Path)

	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the websocket server and active sessions.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), defaultStopTimeout, ErrServerShutdown)
	defer cancel()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		return err
	}

	s.hub.CloseAll(ErrServerShutdown)
	s.httpSrv = nil
	return nil
}

// Clients reports the number of connected gateway clients.
func (s *Server) Clients() int {
	return s.hub.Clients()
}
