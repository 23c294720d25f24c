// Package api exposes the audit over HTTP.
//
// Routes:
//
//	GET  /                    status probe
//	GET  /health              status probe
//	GET  /metrics             Prometheus metrics
//	POST /audit/eurocontrol   multipart audit upload
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"airspace-charge-auditor/internal/reconciler"
	"airspace-charge-auditor/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Config holds HTTP server configuration
type Config struct {
	Addr            string        `json:"addr"`
	AllowedOrigins  []string      `json:"allowed_origins"`
	MaxUploadMB     int64         `json:"max_upload_mb"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		AllowedOrigins:  []string{"http://localhost:3000"},
		MaxUploadMB:     32,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d MB", c.MaxUploadMB)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

func (c *Config) maxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Server is the HTTP API server
type Server struct {
	config     *Config
	router     *gin.Engine
	httpServer *http.Server
	service    *reconciler.AuditService
	metrics    *Metrics
	logger     logger.Logger
}

// NewServer creates a server around service; a nil config selects DefaultConfig
func NewServer(config *Config, service *reconciler.AuditService) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if service == nil {
		return nil, fmt.Errorf("audit service cannot be nil")
	}

	s := &Server{
		config:  config,
		router:  gin.New(),
		service: service,
		metrics: NewMetrics(),
		logger:  logger.GetGlobalLogger().WithComponent("api"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures global middleware
func (s *Server) setupMiddleware() {
	s.router.MaxMultipartMemory = s.config.maxUploadBytes()

	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.logger))

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Audit-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleStatus)
	s.router.GET("/health", s.handleStatus)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	audit := s.router.Group("/audit")
	audit.Use(uploadLimit(s.config.maxUploadBytes()))
	{
		audit.POST("/eurocontrol", s.handleAudit)
	}
}

// Router returns the HTTP handler for testing or embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// Metrics returns the server's collectors
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.WithFields(logger.Fields{
		"addr":          s.config.Addr,
		"max_upload_mb": s.config.MaxUploadMB,
	}).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Shutting down API server")

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}
