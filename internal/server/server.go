// Package server exposes the audit chain over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hashtrail-project/hashtrail/internal/chain"
	"github.com/hashtrail-project/hashtrail/internal/ratelimit"
	"github.com/hashtrail-project/hashtrail/pkg/config"
	"github.com/hashtrail-project/hashtrail/pkg/logging"
	"github.com/hashtrail-project/hashtrail/pkg/metrics"
	"github.com/hashtrail-project/hashtrail/pkg/tracing"
)

// multipartSlack is the allowance for multipart framing and form fields on
// top of the file size limit.
const multipartSlack = 1 << 20

// Server serves the hashing, verification and chain inspection endpoints.
type Server struct {
	cfg     *config.Config
	rec     *chain.Recorder
	limiter ratelimit.Limiter
	metrics *metrics.Registry
	logger  *logging.Logger
	version string

	engine  *gin.Engine
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLimiter sets the limiter applied to /hash and /verify.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server over rec.
func New(cfg *config.Config, rec *chain.Recorder, opts ...Option) *Server {
	s := &Server{cfg: cfg, rec: rec, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithFields(map[string]any{"component": "server"})
	}

	s.engine = gin.New()
	s.engine.Use(
		gin.CustomRecovery(s.recovered),
		requestID(),
		accessLog(s.logger.Zap()),
		httpMetrics(s.metrics),
	)
	s.routes()
	s.handler = tracing.Handler(s.engine, "hashtrail.http")
	return s
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	s.engine.HandleMethodNotAllowed = true
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})
	s.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"detail": "Method Not Allowed"})
	})

	s.engine.GET("/", s.handleRoot)

	health := s.engine.Group("/health")
	health.GET("", s.handleHealth)
	health.GET("/live", s.handleLive)
	health.GET("/ready", s.handleReady)

	upload := bodyLimit(s.cfg.Limits.MaxFileBytes() + multipartSlack)
	limited := rateLimit(s.limiter, s.metrics, s.logger)

	s.engine.POST("/hash", limited, upload, s.handleHash)
	s.engine.POST("/verify", limited, upload, s.handleVerify)
	s.engine.GET("/blockchain-log", s.handleBlockchainLog)
	s.engine.GET("/validate-chain", s.handleValidateChain)

	v := s.engine.Group("/verify", upload)
	v.POST("/hash", s.handleVerifyHash)
	v.POST("/file-hash", s.handleVerifyFileHash)
	v.POST("/merkle-proof", s.handleVerifyMerkleProof)
	v.POST("/transaction", s.handleVerifyTransaction)

	if s.cfg.Metrics.Enabled && s.metrics != nil {
		s.engine.GET(s.cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}
}

func (s *Server) recovered(c *gin.Context, err any) {
	s.logger.Error("handler panic", map[string]any{
		"request_id": RequestIDFrom(c),
		"path":       c.Request.URL.Path,
		"panic":      fmt.Sprint(err),
	})
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Zap()),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", map[string]any{"addr": ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
