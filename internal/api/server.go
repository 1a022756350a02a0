package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/repository"
	"github.com/fertility-cds-server/internal/service"
	"github.com/fertility-cds-server/internal/session"
)

// Server represents the HTTP server
type Server struct {
	config   *domain.Config
	engine   *service.Engine
	sessions *session.Manager
	store    repository.Store
	logger   *logrus.Logger
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, engine *service.Engine, sessions *session.Manager, store repository.Store, logger *logrus.Logger) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery(logger))
	router.Use(AccessLog(logger))
	router.Use(SecurityHeaders())
	if cfg.RateLimit.Enabled {
		router.Use(RateLimit(cfg.RateLimit))
	}

	s := &Server{
		config:   cfg,
		engine:   engine,
		sessions: sessions,
		store:    store,
		logger:   logger,
		router:   router,
	}
	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"addr":     addr,
			"protocol": s.engine.Protocol,
		}).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/classify", s.handleClassify)
		v1.POST("/bmi", s.handleBMI)
		v1.GET("/recommendations/:key", s.handleRecommendations)
		v1.GET("/catalog/search", s.handleCatalogSearch)
		v1.GET("/protocol", s.handleProtocol)
		v1.GET("/protocol/nodes/:id", s.handleProtocolNode)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", s.handleCreateSession)
			sessions.GET("/:id", s.handleGetSession)
			sessions.DELETE("/:id", s.handleDiscardSession)
			sessions.PUT("/:id/observation", s.handleSetObservation)
			sessions.GET("/:id/node", s.handleCurrentNode)
			sessions.POST("/:id/advance", s.handleAdvance)
			sessions.POST("/:id/reset", s.handleReset)
			sessions.GET("/:id/breadcrumb", s.handleBreadcrumb)
			sessions.POST("/:id/lines/recommendation", s.handleAddRecommendation)
			sessions.POST("/:id/lines/findings", s.handleAddFindingRecommendations)
			sessions.POST("/:id/lines/catalog", s.handleAddFromCatalog)
			sessions.PATCH("/:id/lines/:index", s.handleUpdateLine)
			sessions.DELETE("/:id/lines/:index", s.handleRemoveLine)
			sessions.PUT("/:id/notes", s.handleSetNotes)
			sessions.GET("/:id/prescription", s.handleGetPrescription)
			sessions.GET("/:id/summary", s.handleSummary)
			sessions.POST("/:id/finalize", s.handleFinalize)
		}

		v1.GET("/prescriptions", s.handleListPrescriptions)
		v1.GET("/prescriptions/:id", s.handleGetRecord)
	}
}

// handleHealth reports liveness plus a store probe.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	storage := "ok"
	if _, err := s.store.Count(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		storage = err.Error()
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"protocol":  s.engine.Protocol,
		"sessions":  s.sessions.Len(),
		"storage":   storage,
	})
}
