// Package httptransport hosts the HTTP control surface: a gin engine
// with logging, recovery, CORS and observability middleware, plus the
// response envelope the API handlers share.
package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"voicerelay-server-go/internal/platform/config"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
	"voicerelay-server-go/internal/platform/observability"
)

// Options configures the HTTP router builder.
type Options struct {
	Config *config.Config
	Logger *logging.Logger
}

// Router bundles together the gin engine and the API route group.
type Router struct {
	Engine *gin.Engine
	API    *gin.RouterGroup
}

// Build constructs a gin engine pre-configured with logging, recovery,
// CORS and observability middlewares.
func Build(opts Options) (*Router, error) {
	if opts.Config == nil {
		return nil, errors.New(errors.KindConfig, "http.build", "http router requires config")
	}

	if opts.Config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		loggingMiddleware(opts.Logger),
		observabilityMiddleware(),
		cors.New(corsConfig()),
	)
	engine.SetTrustedProxies([]string{"0.0.0.0"})

	return &Router{
		Engine: engine,
		API:    engine.Group("/api"),
	}, nil
}

// corsConfig admits browser consoles from any origin. The control
// surface carries no cookies, so the wide policy exposes nothing.
func corsConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Client-Id"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			logger.WarnTag("HTTP", "%s %s -> %d (%s)",
				c.Request.Method, c.Request.URL.Path, status, time.Since(start))
			return
		}
		logger.InfoTag("HTTP", "%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, status, time.Since(start))
	}
}

func observabilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		reqCtx, spanEnd := observability.StartSpan(c.Request.Context(), "http.server", path)
		c.Request = c.Request.WithContext(reqCtx)

		start := time.Now()
		c.Next()

		spanEnd(requestError(c))

		observability.RecordMetric(reqCtx, "http.requests", 1, map[string]string{
			"component": "http.server",
			"method":    c.Request.Method,
			"path":      path,
			"status":    strconv.Itoa(c.Writer.Status()),
		})
		observability.RecordMetric(reqCtx, "http.request.duration_ms",
			float64(time.Since(start).Milliseconds()), map[string]string{
				"component": "http.server",
				"method":    c.Request.Method,
				"path":      path,
			})
	}
}

// requestError picks the error a finished request's span ends with:
// the last handler error if any, otherwise a synthetic one for 5xx
// statuses written without an error.
func requestError(c *gin.Context) error {
	if len(c.Errors) > 0 {
		return c.Errors.Last().Err
	}
	if status := c.Writer.Status(); status >= http.StatusInternalServerError {
		return errors.New(errors.KindTransport, "http.server", "status "+strconv.Itoa(status))
	}
	return nil
}
