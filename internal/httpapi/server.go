// Package httpapi serves the snipd REST surface: job submission and
// inspection, snippet search, health and metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/job"
	"github.com/fyrsmithlabs/snipd/internal/search"
	"github.com/fyrsmithlabs/snipd/internal/vectorstore"
)

// Config configures the HTTP server.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Server hosts the REST API.
type Server struct {
	echo     *echo.Echo
	cfg      Config
	jobs     job.Store
	searcher *search.Orchestrator
	vectors  vectorstore.Store
	logger   *zap.Logger
}

// New builds the server and registers all routes.
func New(cfg Config, jobs job.Store, searcher *search.Orchestrator,
	vectors vectorstore.Store, registry *prometheus.Registry, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	// uniform error payload, internals never leak to the client
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		detail := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			detail = fmt.Sprintf("%v", he.Message)
		} else {
			logger.Error("request failed", zap.Error(err),
				zap.String("path", c.Request().URL.Path))
		}
		if !c.Response().Committed {
			_ = c.JSON(code, errorBody{Detail: detail})
		}
	}

	s := &Server{
		echo:     e,
		cfg:      cfg,
		jobs:     jobs,
		searcher: searcher,
		vectors:  vectors,
		logger:   logger,
	}
	s.registerRoutes(registry)
	return s
}

func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.echo.POST("/jobs", s.createJob)
	s.echo.GET("/jobs", s.listJobs)
	s.echo.GET("/jobs/:id", s.getJob)
	s.echo.DELETE("/jobs/:id", s.deleteJob)
	s.echo.GET("/snippets", s.searchSnippets)
	s.echo.GET("/health", s.health)
	if registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
			return err
		}
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
