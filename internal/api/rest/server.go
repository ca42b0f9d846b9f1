// Package rest serves the authentication API over HTTP.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/authgate/auth-core/internal/auth"
	"github.com/authgate/auth-core/internal/metrics"
)

// Config configures the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// HealthCheck, when set, is consulted by /healthz so a dead backing
	// store surfaces as unhealthy instead of a silent 500 on first use.
	HealthCheck func(ctx context.Context) error
}

// Server hosts the authentication endpoints plus health and metrics.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
	ready      atomic.Bool
}

// New wires the router. The filter runs on every route; endpoints that
// need a principal enforce it themselves.
func New(cfg Config, svc *auth.Service, filter *auth.Filter, m *metrics.AuthMetrics, logger *zap.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if filter == nil {
		return nil, fmt.Errorf("auth filter is required")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		correlationMiddleware(),
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		metricsMiddleware(m),
		filter.Middleware(),
	)

	s := &Server{
		router: router,
		logger: logger,
	}

	h := NewAuthHandler(svc, logger)

	ag := router.Group("/auth")
	ag.POST("/login", h.Login)
	ag.POST("/refresh", h.Refresh)
	ag.POST("/logout", h.Logout)
	ag.GET("/me", auth.RequireAuthenticated(), h.Me)
	ag.GET("/sessions", auth.RequireAuthenticated(), h.Sessions)
	ag.DELETE("/sessions", auth.RequireAuthenticated(), h.RevokeSessions)
	ag.POST("/password", auth.RequireAuthenticated(), h.ChangePassword)

	router.GET("/healthz", func(c *gin.Context) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(c.Request.Context()); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if !s.ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener closes. The readiness probe flips to
// ready just before accepting traffic.
func (s *Server) Start() error {
	s.ready.Store(true)
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown flips readiness off and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.httpServer.Shutdown(ctx)
}
