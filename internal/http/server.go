// Package http provides the HTTP API for logheal.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/triage"
)

// Pipeline runs one triage cycle over a batch of error records.
type Pipeline interface {
	Process(ctx context.Context, batch []map[string]any, preloaded map[string]string, extraContext string, observer triage.FileObserver) (*triage.VersionControlResult, error)
}

// Server exposes the triage pipeline over HTTP.
type Server struct {
	echo     *echo.Echo
	pipeline Pipeline
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server around the pipeline.
func NewServer(pipeline Pipeline, logger *zap.Logger, cfg *Config) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: pipeline,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/triage", s.handleTriage)
}

// TriageRequest is the request body for POST /api/v1/triage.
type TriageRequest struct {
	// Logs is the batch of error records to triage.
	Logs []map[string]any `json:"logs"`
	// Files optionally preloads file contents, keyed by filename.
	Files map[string]string `json:"files,omitempty"`
	// Context is free-form extra context for the fix.
	Context string `json:"context,omitempty"`
}

// TriageResponse is the response body for POST /api/v1/triage.
type TriageResponse struct {
	BranchName    string   `json:"branch_name"`
	CommitMessage string   `json:"commit_message,omitempty"`
	FilesChanged  []string `json:"files_changed"`
	Success       bool     `json:"success"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleTriage runs the full pipeline over the posted log batch.
func (s *Server) handleTriage(c echo.Context) error {
	var req TriageRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid triage request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// An empty batch is not a request error: the pipeline short-circuits
	// and reports success=false, same as a run that fetched nothing.
	result, err := s.pipeline.Process(c.Request().Context(), req.Logs, req.Files, req.Context, nil)
	if err != nil {
		s.logger.Error("triage run failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "triage run failed")
	}

	return c.JSON(http.StatusOK, TriageResponse{
		BranchName:    result.BranchName,
		CommitMessage: result.CommitMessage,
		FilesChanged:  result.FilesChanged,
		Success:       result.Success,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
