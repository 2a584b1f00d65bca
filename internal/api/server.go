package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/adatry/adatry/internal/config"
	"github.com/adatry/adatry/internal/errors"
	"github.com/adatry/adatry/internal/generator"
	"github.com/adatry/adatry/internal/logging"
	"github.com/adatry/adatry/internal/metrics"
	"github.com/adatry/adatry/internal/notifier"
	"github.com/adatry/adatry/internal/store"
	"github.com/adatry/adatry/internal/telegram"
)

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	store       store.Store
	generator   *generator.Service
	liveConfig  notifier.Config
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	sanitizer   *bluemonday.Policy
	notifier    *telegram.Notifier
	httpServer  *http.Server
	tlsConfig   config.TLSConfig
}

// SetNotifier attaches an operator notifier for pool exhaustion warnings
func (s *Server) SetNotifier(n *telegram.Notifier) {
	s.notifier = n
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, liveCfg config.LiveConfig, s store.Store, gen *generator.Service, logger *logging.Logger, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	// Rate limiter from config with sane defaults
	requestsPerMinute := apiCfg.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1000
	}
	burst := apiCfg.RateLimit.Burst
	if burst <= 0 {
		burst = 100
	}
	rateLimiter := newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst)

	live := notifier.DefaultConfig()
	if liveCfg.Interval > 0 {
		live.Interval = liveCfg.Interval
	}
	if liveCfg.BatchLimit > 0 {
		live.BatchLimit = liveCfg.BatchLimit
	}

	server := &Server{
		router:      gin.New(),
		config:      cfg,
		apiConfig:   apiCfg,
		store:       s,
		generator:   gen,
		liveConfig:  live,
		metrics:     m,
		logger:      logger,
		rateLimiter: rateLimiter,
		sanitizer:   bluemonday.UGCPolicy(),
		tlsConfig:   cfg.TLS,
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(rateLimitMiddleware(rateLimiter))

	// Body cap at 8MB: generation uploads carry person photos
	server.router.Use(bodyLimitMiddleware(8 << 20))

	server.router.Use(metrics.Middleware(m, logger))
	server.router.Use(loggingMiddleware(logger))
	if apiCfg.CORS.Enabled {
		server.router.Use(corsMiddleware(apiCfg.CORS))
	}

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.NewCorrelationID()
		}

		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		duration := time.Since(start).Seconds()
		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", duration,
		)
	}
}

// corsMiddleware applies the configured CORS policy
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	origins := "*"
	if len(cfg.Origins) > 0 {
		origins = strings.Join(cfg.Origins, ", ")
	}
	methods := "GET, POST, DELETE, OPTIONS"
	if len(cfg.Methods) > 0 {
		methods = strings.Join(cfg.Methods, ", ")
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Correlation-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	authMiddleware := APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger)

	// Post and engagement endpoints
	postGroup := s.router.Group("")
	postGroup.Use(authMiddleware)
	{
		postGroup.GET("/posts", s.handleListPosts)
		postGroup.GET("/posts/:id", s.handleGetPost)
		postGroup.POST("/posts", s.handleCreatePost)
		postGroup.GET("/posts/:id/comments", s.handleListComments)
		postGroup.POST("/posts/:id/comments", s.handleCreateComment)
		postGroup.POST("/posts/:id/likes", s.handleCreateLike)
		postGroup.DELETE("/posts/:id/likes/:user", s.handleDeleteLike)
	}

	// Live update stream
	liveGroup := s.router.Group("")
	liveGroup.Use(authMiddleware)
	{
		liveGroup.GET("/live", s.handleLive)
	}

	// Generation endpoint
	genGroup := s.router.Group("")
	genGroup.Use(authMiddleware)
	{
		genGroup.POST("/generations/:provider", s.handleGenerate)
	}

	// Credential pool administration
	credGroup := s.router.Group("")
	credGroup.Use(authMiddleware)
	{
		credGroup.GET("/credentials", s.handleListCredentials)
		credGroup.POST("/credentials", s.handleCreateCredential)
		credGroup.DELETE("/credentials/:id", s.handleDeleteCredential)
	}
}

// Run starts the HTTP or HTTPS server based on TLS configuration
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	if s.tlsConfig.Enabled {
		return s.RunTLS()
	}

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// RunTLS starts the HTTPS server with TLS configuration
func (s *Server) RunTLS() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	s.logger.Info("starting HTTPS server", "addr", addr, "cert_file", s.tlsConfig.CertFile, "min_version", s.tlsConfig.MinVersion)

	srv, err := NewHTTPSServerWithConfig(addr, s.tlsConfig.CertFile, s.tlsConfig.KeyFile, s.tlsConfig.MinVersion, s.router)
	if err != nil {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	s.httpServer = srv

	return s.httpServer.ListenAndServe()
}

// StartWithServer starts the server with a pre-configured http.Server
func (s *Server) StartWithServer(srv *http.Server) error {
	s.httpServer = srv
	s.logger.Info("starting HTTP server", "addr", srv.Addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	// Stop accepting new connections; in-flight live streams end when
	// their request contexts cancel.
	if s.httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("shutting down HTTP server")
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP server shutdown error", "error", err.Error())
				errs <- &errors.ErrServerShutdown{Err: err}
			}
		}()
	}

	// Close store connections
	if s.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Close(); err != nil {
				errs <- fmt.Errorf("store close: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(errs)
	var errList []error
	for err := range errs {
		if err != nil {
			errList = append(errList, err)
		}
	}
	if len(errList) > 0 {
		return fmt.Errorf("shutdown errors: %v", errList)
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	stats := s.store.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"posts":     stats.PostCount,
	})
}
