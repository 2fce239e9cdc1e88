// Package http provides the local status server. It exposes a health
// probe and a runtime status endpoint so operators can check on the bot
// without touching WhatsApp.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tagclaw/tagclaw/internal/config"
	"github.com/tagclaw/tagclaw/internal/security"
	"github.com/tagclaw/tagclaw/internal/session"
	"github.com/tagclaw/tagclaw/internal/settings"
)

// ConnectedFunc reports whether the WhatsApp connection is up.
type ConnectedFunc func() bool

// Server provides the status HTTP endpoints.
type Server struct {
	router    *gin.Engine
	cfg       config.HTTPConfig
	logger    *slog.Logger
	startedAt time.Time

	sessions    *session.Manager
	settings    *settings.Store
	isConnected ConnectedFunc
	limiter     *security.SlidingWindowLimiter
}

// NewServer creates a status server. sessions, settings and connected
// feed the /api/status payload.
func NewServer(cfg config.HTTPConfig, logger *slog.Logger, sessions *session.Manager, st *settings.Store, connected ConnectedFunc) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	s := &Server{
		router:      router,
		cfg:         cfg,
		logger:      logger,
		startedAt:   time.Now(),
		sessions:    sessions,
		settings:    st,
		isConnected: connected,
		limiter:     security.NewSlidingWindowLimiter(60, time.Minute),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/api/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(localhostOnlyMiddleware())
	api.Use(s.rateLimitMiddleware())
	{
		api.GET("/status", s.handleStatus)
	}
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := s.listenAddr()
	s.logger.Info("starting status server", "address", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("status server failed to start: %w\n  -> Is another tagclaw instance running on %s?", err, addr)
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case err := <-listenErr:
		return fmt.Errorf("status server runtime error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down status server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) listenAddr() string {
	port := s.cfg.Port
	if port == 0 {
		port = 18791
	}

	switch s.cfg.Bind {
	case "all":
		return fmt.Sprintf("0.0.0.0:%d", port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", port)
	}
}
