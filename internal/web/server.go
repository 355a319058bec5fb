package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mailcam/mailcam/internal/config"
	"github.com/mailcam/mailcam/internal/health"
	"github.com/mailcam/mailcam/internal/logger"
	"github.com/mailcam/mailcam/internal/publisher"
	"github.com/mailcam/mailcam/internal/service"
	"github.com/mailcam/mailcam/internal/telemetry"
	"github.com/mailcam/mailcam/internal/tracker"
)

// Server represents the status web server service
type Server struct {
	*service.ServiceBase
	config     *config.WebConfig
	logger     *logger.Logger
	httpServer *http.Server
	router     *gin.Engine
	registry   *health.Registry // Optional health registry for readiness checks
	detector   DetectionSource  // Optional detection loop for summary/detection APIs
	collector  StatsSource      // Optional telemetry collector for metrics API
	configSvc  *config.Service  // Optional config service for configuration API
	version    string           // Application version
	startTime  time.Time        // Server start time for uptime calculation
}

// DetectionSource exposes the most recent loop results
type DetectionSource interface {
	Snapshot() (tracker.Snapshot, bool)
	LastCycle() (publisher.CycleDetails, bool)
}

// StatsSource exposes accumulated loop and runtime statistics
type StatsSource interface {
	Stats() telemetry.CycleStats
	Runtime() telemetry.RuntimeStats
}

// NewServer creates a new web server service
func NewServer(cfg *config.WebConfig, log *logger.Logger) *Server {
	// Set Gin mode to release mode for production
	// Debug mode can be enabled via GIN_MODE environment variable
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	return &Server{
		ServiceBase: service.NewServiceBase("web-server", log),
		config:      cfg,
		logger:      log,
		router:      router,
		version:     "dev", // Default version, can be set via SetVersion
		startTime:   time.Now(),
	}
}

// SetVersion sets the application version
func (s *Server) SetVersion(version string) {
	s.version = version
}

// SetHealthRegistry sets the registry backing the health API
func (s *Server) SetHealthRegistry(registry *health.Registry) {
	s.registry = registry
}

// SetDetectionSource sets the source for summary and detection APIs
func (s *Server) SetDetectionSource(src DetectionSource) {
	s.detector = src
}

// SetStatsSource sets the source for the metrics API
func (s *Server) SetStatsSource(src StatsSource) {
	s.collector = src
}

// SetConfigDependency sets dependency for configuration API
func (s *Server) SetConfigDependency(configSvc *config.Service) {
	s.configSvc = configSvc
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.LogInfo("Web server is disabled")
		return nil
	}

	// Setup routes
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		s.LogInfo("Starting web server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.LogError("Web server error", err, "address", addr)
		}
	}()

	// Wait for context cancellation or server startup
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		// Server started successfully
		s.LogInfo("Web server started", "address", addr)
		return nil
	}
}

// Stop stops the web server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.LogInfo("Stopping web server")
	return s.httpServer.Shutdown(ctx)
}

// Name returns the service name
func (s *Server) Name() string {
	return "web-server"
}

// setupRoutes sets up all API routes
func (s *Server) setupRoutes() {
	// API routes
	api := s.router.Group("/api")
	{
		// Health checks
		api.GET("/health", s.handleHealth)
		api.GET("/health/live", s.handleLiveness)

		// System status
		api.GET("/status", s.handleStatus)

		// Detection results
		api.GET("/summary", s.handleSummary)
		api.GET("/detections", s.handleDetections)

		// Configuration
		api.GET("/config", s.handleGetConfig)

		// Metrics
		api.GET("/metrics", s.handleMetrics)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

// ginLogger creates a Gin middleware for logging
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware creates a CORS middleware for local network access
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
