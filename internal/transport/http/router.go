package httptransport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"guardian-shell/internal/platform/logging"
	"guardian-shell/internal/platform/observability"
)

// RequestIDHeader carries the console request id in both directions.
const RequestIDHeader = "X-Request-Id"

// Options configures the HTTP router builder.
type Options struct {
	LogLevel string
	Logger   *logging.Logger
	// CORSOrigins lists origins allowed to call the console. Empty allows any.
	CORSOrigins []string
	// StaticDir is served at / when set.
	StaticDir string
	Metrics   *observability.Recorder
}

// Router bundles together the gin engine and common route groups.
type Router struct {
	Engine *gin.Engine
	API    *gin.RouterGroup
}

// Build constructs a gin engine pre-configured with logging, recovery, request ids, CORS and observability middlewares.
func Build(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscard()
	}

	if strings.EqualFold(opts.LogLevel, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(logger))
	engine.Use(observabilityMiddleware(opts.Metrics))

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Page-Id",
			RequestIDHeader,
		},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	engine.Use(cors.New(corsCfg))

	if opts.StaticDir != "" {
		engine.Use(static.Serve("/", static.LocalFile(opts.StaticDir, true)))
	}

	return &Router{
		Engine: engine,
		API:    engine.Group("/api"),
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		logger.InfoTag("HTTP", "%s %s -> %d (%s) rid=%s",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			duration,
			c.GetString("request_id"),
		)
	}
}

func observabilityMiddleware(rec *observability.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rec == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		reqCtx, spanEnd := rec.StartSpan(c.Request.Context(), "http.server", c.Request.Method+" "+path)
		var spanErr error
		c.Request = c.Request.WithContext(reqCtx)

		c.Next()

		if len(c.Errors) > 0 {
			spanErr = c.Errors.Last().Err
		} else if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			spanErr = fmt.Errorf("status %d", status)
		}
		spanEnd(spanErr)

		rec.RecordMetric(reqCtx, "http.requests", 1, map[string]string{
			"method": c.Request.Method,
			"path":   path,
			"status": strconv.Itoa(c.Writer.Status()),
		})
	}
}
