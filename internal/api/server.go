// Package api exposes the onboarding engines over HTTP and hosts the
// event-driven coordinator that choreographs them. Handlers are thin: they
// bind and validate the request, call one engine operation, and map the
// structured error onto an HTTP status.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DefaultServerConfig returns the default listener configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP adapter over the onboarding engines.
type Server struct {
	config     ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers
	logger     *slog.Logger
}

// NewServer wires the handlers into a gin router.
func NewServer(config ServerConfig, handlers *Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		config:   config,
		router:   router,
		handlers: handlers,
		logger:   logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
}

// requestLogger logs one line per request after it completes.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("http request",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)

	v1 := s.router.Group("/v1")
	{
		v1.POST("/workflows", h.CreateWorkflow)
		v1.GET("/workflows", h.ListWorkflows)
		v1.GET("/workflows/:id", h.GetWorkflow)
		v1.POST("/workflows/:id/events", h.SubmitEvent)
		v1.GET("/workflows/:id/events", h.GetEvents)
		v1.GET("/workflows/:id/available-events", h.AvailableEvents)
		v1.GET("/workflows/:id/audit", h.GetAudit)
		v1.POST("/workflows/:id/query", h.QueryWorkflow)

		v1.POST("/workflows/:id/documents", h.SubmitDocument)
		v1.GET("/workflows/:id/documents", h.ListDocuments)
		v1.POST("/workflows/:id/documents/verify", h.VerifyDocuments)

		v1.POST("/workflows/:id/identity/sessions", h.CreateIdentitySession)
		v1.GET("/workflows/:id/identity", h.GetIdentitySession)
		v1.POST("/identity/sessions/:sessionID/run", h.RunIdentitySession)

		v1.GET("/workflows/:id/approval", h.GetApproval)
		v1.POST("/approvals/:approvalID/steps/:stepID/decisions", h.SubmitDecision)

		v1.POST("/workflows/:id/setup", h.CreateSetup)
		v1.GET("/workflows/:id/setup", h.GetSetup)

		v1.GET("/workflows/:id/progress", h.GetProgress)
		v1.POST("/workflows/:id/progress/steps/:stepID", h.UpdateStepProgress)
		v1.POST("/workflows/:id/blockers", h.ReportBlocker)
		v1.POST("/workflows/:id/blockers/:blockerID/escalate", h.EscalateBlocker)
		v1.POST("/workflows/:id/blockers/:blockerID/resolve", h.ResolveBlocker)
	}
}

// Router returns the underlying gin router for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the listener until ctx is cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("http server starting", slog.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		return err
	}
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
