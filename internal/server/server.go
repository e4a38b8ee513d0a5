// Package server exposes the updater over a JSON HTTP API.
//
// All routes live under /api/v1 and mirror the CLI commands. Prometheus
// metrics are served at /metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
)

const shutdownTimeout = 10 * time.Second

// Server serves the HTTP API for one Updater.
type Server struct {
	updater *updater.Updater
	router  *gin.Engine
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server. The request timeout defaults to the configured
// operation timeout.
func New(u *updater.Updater, opts ...Option) *Server {
	s := &Server{
		updater: u,
		timeout: u.Config().Timeout,
		logger:  u.Logger().Named("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.newRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), requestTimeout(s.timeout))

	status := &StatusHandler{updater: s.updater}
	changelog := &ChangelogHandler{updater: s.updater}
	ops := &OperationHandler{updater: s.updater}
	backups := &BackupHandler{updater: s.updater}

	api := r.Group("/api/v1")
	{
		api.GET("/status", status.Status)
		api.GET("/check", status.Check)

		api.GET("/changelog", changelog.List)
		api.POST("/changelog/refresh", changelog.Refresh)
		api.GET("/changelog/:version", changelog.Details)

		api.POST("/update", ops.Update)
		api.POST("/revert", ops.Revert)
		api.GET("/history", ops.History)

		api.GET("/backup", backups.Get)
		api.POST("/backup", backups.Create)
		api.DELETE("/backup", backups.Delete)
		api.GET("/backup/download", backups.Download)
		api.GET("/backup/safety", backups.SafetyCopies)
	}

	r.GET("/metrics", gin.WrapH(s.updater.Metrics().Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("shutdown complete")
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}

func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
