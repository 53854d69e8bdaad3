// Package server exposes the detection trigger, health and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/pipeline"
)

const (
	// HTTP server timeout constants
	readTimeoutSeconds = 10
	idleTimeoutSeconds = 120
)

// Runner runs one detection cycle.
type Runner interface {
	RunDetectionCycle(ctx context.Context) (*domain.RunResult, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	// CronSecret authorises POST /api/scrape. When empty every trigger is rejected.
	CronSecret string
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Debug    bool
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	server *http.Server
	runner Runner
	log    logger.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, runner Runner, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	s := &Server{
		router: router,
		runner: runner,
		log:    log,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.POST("/scrape", bearerAuth(cfg.CronSecret), s.scrape)

	// No write timeout: a detection cycle may outlast any fixed limit.
	s.server = &http.Server{
		Addr:        cfg.Addr,
		Handler:     router,
		ReadTimeout: readTimeoutSeconds * time.Second,
		IdleTimeout: idleTimeoutSeconds * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", logger.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) scrape(c *gin.Context) {
	// The cycle keeps running if the caller hangs up.
	ctx := context.WithoutCancel(c.Request.Context())

	result, err := s.runner.RunDetectionCycle(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	case err != nil:
		s.log.Error("Detection cycle failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}
