// Package webapi is the HTTP control surface of the relay: pipeline
// status, the listening toggle, commits, restarts and trigger
// management.
package webapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voicerelay-server-go/internal/app/services"
	"voicerelay-server-go/internal/domain/trigger"
	"voicerelay-server-go/internal/platform/config"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
	httptransport "voicerelay-server-go/internal/transport/http"
)

const requestOrigin = "webapi"

// Pipeline is the slice of the relay service the API drives.
type Pipeline interface {
	Snapshot() services.Snapshot
	SetListening(ctx context.Context, enabled bool) error
	CommitNow(ctx context.Context, origin string) (string, error)
	Restart(clearSink bool, origin string) error
}

// TriggerDirectory manages the trigger inventory.
type TriggerDirectory interface {
	List(ctx context.Context) ([]trigger.Trigger, error)
	Add(ctx context.Context, phrase, owner string, ttl time.Duration) (trigger.Trigger, error)
	Remove(ctx context.Context, id string) error
	Stats(ctx context.Context) (map[string]any, error)
}

// ClientCounter reports how many gateway clients are connected.
type ClientCounter interface {
	Clients() int
}

// Service exposes the control API over HTTP.
type Service struct {
	logger   *logging.Logger
	config   *config.Config
	pipeline Pipeline
	triggers TriggerDirectory
	gateway  ClientCounter
	started  time.Time
}

// NewService creates the control API service.
func NewService(cfg *config.Config, logger *logging.Logger, pipeline Pipeline, triggers TriggerDirectory) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "config is required")
	}
	if pipeline == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "pipeline is required")
	}
	if triggers == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "trigger directory is required")
	}

	return &Service{
		logger:   logger,
		config:   cfg,
		pipeline: pipeline,
		triggers: triggers,
		started:  time.Now(),
	}, nil
}

// BindGateway lets status responses include the gateway client count.
// Deployments without a gateway skip the bind and report zero.
func (s *Service) BindGateway(counter ClientCounter) {
	s.gateway = counter
}

// Register wires the control API routes into the API group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/status", s.handleStatus)
	router.POST("/listening", s.handleListening)
	router.POST("/commit", s.handleCommit)
	router.POST("/reset", s.handleReset)

	router.GET("/triggers", s.handleTriggersList)
	router.POST("/triggers", s.handleTriggersAdd)
	router.DELETE("/triggers/:id", s.handleTriggersRemove)
	router.GET("/triggers/stats", s.handleTriggersStats)

	s.logger.InfoTag("HTTP", "control API routes registered")
	return nil
}

// RegisterHealth adds the liveness probe at the engine root, outside
// the API group.
func (s *Service) RegisterHealth(engine *gin.Engine) {
	engine.GET("/healthz", s.handleHealth)
}

func (s *Service) handleHealth(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}, "")
}

func (s *Service) handleStatus(c *gin.Context) {
	snap := s.pipeline.Snapshot()
	if s.gateway != nil {
		snap.GatewayClients = s.gateway.Clients()
	}
	httptransport.RespondSuccess(c, http.StatusOK, snap, "")
}

func (s *Service) handleListening(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		httptransport.RespondError(c, http.StatusBadRequest, "body must carry an enabled flag", nil)
		return
	}

	if err := s.pipeline.SetListening(c.Request.Context(), *req.Enabled); err != nil {
		s.logger.ErrorTag("HTTP", "listening toggle failed: %v", err)
		httptransport.RespondError(c, http.StatusBadGateway, "listening toggle failed", gin.H{"error": err.Error()})
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"listening": *req.Enabled}, "")
}

func (s *Service) handleCommit(c *gin.Context) {
	command, err := s.pipeline.CommitNow(c.Request.Context(), requestOrigin)
	if err != nil {
		s.logger.ErrorTag("HTTP", "commit failed: %v", err)
		httptransport.RespondError(c, http.StatusBadGateway, "commit failed", gin.H{"error": err.Error()})
		return
	}
	message := ""
	if command == "" {
		message = "nothing to commit"
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"command": command}, message)
}

func (s *Service) handleReset(c *gin.Context) {
	var req struct {
		ClearSink bool `json:"clear_sink"`
	}
	// An empty body means a plain restart without a sink wipe.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httptransport.RespondError(c, http.StatusBadRequest, "malformed reset request", nil)
			return
		}
	}

	if err := s.pipeline.Restart(req.ClearSink, requestOrigin); err != nil {
		s.logger.ErrorTag("HTTP", "reset request failed: %v", err)
		httptransport.RespondError(c, http.StatusBadGateway, "reset request failed", gin.H{"error": err.Error()})
		return
	}
	httptransport.RespondSuccess(c, http.StatusAccepted, gin.H{"clear_sink": req.ClearSink}, "reset requested")
}

func (s *Service) handleTriggersList(c *gin.Context) {
	list, err := s.triggers.List(c.Request.Context())
	if err != nil {
		s.logger.ErrorTag("HTTP", "trigger list failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "trigger list failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"triggers": list,
		"count":    len(list),
	}, "")
}

func (s *Service) handleTriggersAdd(c *gin.Context) {
	var req struct {
		Phrase string `json:"phrase"`
		Owner  string `json:"owner"`
		TTL    string `json:"ttl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "malformed trigger request", nil)
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed < 0 {
			httptransport.RespondError(c, http.StatusBadRequest, "ttl must be a duration like 24h", nil)
			return
		}
		ttl = parsed
	}

	trig, err := s.triggers.Add(c.Request.Context(), req.Phrase, req.Owner, ttl)
	if err != nil {
		if errors.IsKind(err, errors.KindConfig) {
			httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		s.logger.ErrorTag("HTTP", "trigger add failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "trigger add failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusCreated, trig, "trigger added")
}

func (s *Service) handleTriggersRemove(c *gin.Context) {
	if err := s.triggers.Remove(c.Request.Context(), c.Param("id")); err != nil {
		s.logger.ErrorTag("HTTP", "trigger remove failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "trigger remove failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "trigger removed")
}

func (s *Service) handleTriggersStats(c *gin.Context) {
	stats, err := s.triggers.Stats(c.Request.Context())
	if err != nil {
		s.logger.ErrorTag("HTTP", "trigger stats failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "trigger stats failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, stats, "")
}
