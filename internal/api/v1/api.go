// Package api implements the HTTP API for LansoScan under /api/v1.
package api

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lansoscan/lansoscan-go/internal/analysis"
	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/datastore"
	"github.com/lansoscan/lansoscan-go/internal/errors"
	"github.com/lansoscan/lansoscan-go/internal/imagestore"
	"github.com/lansoscan/lansoscan-go/internal/logging"
	"github.com/lansoscan/lansoscan-go/internal/observability"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings
	Analyzer *analysis.Analyzer
	Images   *imagestore.Store

	metrics        *observability.Metrics
	startTime      time.Time
	apiLogger      *slog.Logger
	apiLoggerClose func() error
}

// New creates a new API controller and registers its routes on a fresh echo
// instance.
func New(settings *conf.Settings, ds datastore.Interface, analyzer *analysis.Analyzer, images *imagestore.Store, metrics *observability.Metrics) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	c := &Controller{
		Echo:      e,
		DS:        ds,
		Settings:  settings,
		Analyzer:  analyzer,
		Images:    images,
		metrics:   metrics,
		startTime: time.Now(),
	}

	// Structured file logger for API request logging
	logger, closeFn, err := logging.NewFileLogger(filepath.Join("logs", "api.log"), "api", slog.LevelInfo)
	if err == nil {
		c.apiLogger = logger
		c.apiLoggerClose = closeFn
	} else {
		logging.Error("Failed to initialize API file logger, request logging disabled", "error", err)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(c.loggingMiddleware())
	if metrics != nil {
		e.Use(c.metricsMiddleware())
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	c.Group = e.Group("/api/v1")
	c.initRoutes()

	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/healthz", c.HealthCheck)

	c.Group.POST("/analyze", c.AnalyzeScan)

	c.Group.GET("/scans", c.GetScans)
	c.Group.DELETE("/scans", c.DeleteAllScans)
	c.Group.GET("/scans/search", c.SearchScans)
	c.Group.GET("/scans/:id", c.GetScan)
	c.Group.DELETE("/scans/:id", c.DeleteScan)

	c.Group.GET("/stats", c.GetStats)

	c.Group.GET("/media/images/:id", c.ServeImage)
	c.Group.GET("/media/thumbnails/:id", c.ServeThumbnail)
}

// Start runs the HTTP server on the configured port. It blocks until the
// server stops.
func (c *Controller) Start() error {
	addr := fmt.Sprintf(":%s", c.Settings.WebServer.Port)
	return c.Echo.Start(addr)
}

// Shutdown releases the controller's resources.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			logging.Error("Error closing API log file", "error", err)
		}
	}
}

// HealthCheck reports service and database health.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":    "healthy",
		"version":   c.Settings.Version,
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(c.startTime).String(),
	}

	dbStatus := "connected"
	if _, err := c.DS.CountScans(); err != nil {
		dbStatus = "disconnected"
		response["status"] = "degraded"
		response["database_error"] = err.Error()
	}
	response["database_status"] = dbStatus

	return ctx.JSON(http.StatusOK, response)
}

// loggingMiddleware writes one structured log line per request.
func (c *Controller) loggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			if c.apiLogger != nil {
				c.apiLogger.Info("API request",
					"method", ctx.Request().Method,
					"path", ctx.Request().URL.Path,
					"status", ctx.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"ip", ctx.RealIP())
			}
			return err
		}
	}
}

// metricsMiddleware records request counters and latency histograms keyed by
// the route template to keep label cardinality bounded.
func (c *Controller) metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			c.metrics.HTTP.RecordRequest(
				ctx.Request().Method,
				path,
				ctx.Response().Status,
				time.Since(start).Seconds(),
				ctx.Response().Size,
			)
			return err
		}
	}
}

// ErrorResponse is the JSON error envelope returned by all handlers.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a short identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError maps an error to its HTTP status and returns the JSON envelope.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	code := statusForError(err)
	errorResp := NewErrorResponse(err, message, code)

	if c.apiLogger != nil {
		c.apiLogger.Error("API error",
			"correlation_id", errorResp.CorrelationID,
			"message", message,
			"error", err,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ctx.RealIP())
	}

	return ctx.JSON(code, errorResp)
}

// statusForError maps error categories to HTTP status codes.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryImageProcessing):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryLimit),
		errors.IsCategory(err, errors.CategoryQuota):
		return http.StatusTooManyRequests
	case errors.IsCategory(err, errors.CategoryNetwork),
		errors.IsCategory(err, errors.CategoryModelResponse):
		return http.StatusBadGateway
	case errors.IsCategory(err, errors.CategoryTimeout),
		errors.IsCategory(err, errors.CategoryCancellation):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
