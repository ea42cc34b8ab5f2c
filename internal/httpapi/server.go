// Package httpapi exposes the speech service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/auth"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/gin-gonic/gin"
)

// Error codes written in response bodies.
const (
	codeInvalidToken       = "INVALID_TOKEN"
	codeSecretMissing      = "JWT_SECRET_NOT_EXISTS"
	codeUnauthenticated    = "UNAUTHENTICATED"
	codeUnauthorized       = "UNAUTHORIZED"
	codeRateLimited        = "RATE_LIMITED"
	codeInvalidInput       = "INVALID_INPUT"
	codeSynthesizerError   = "SYNTHESIZER_ERROR"
	codeDatabaseError      = "DB_ERROR"
	codeDocumentAccepted   = "OK"
	codeNoBackendAvailable = "NO_BACKEND"
)

const (
	tokenQueryParam = "token"
	healthTimeout   = 5 * time.Second
)

// Synthesizer is the part of the synthesis service the HTTP surface drives.
type Synthesizer interface {
	SynthesizeUtterance(ctx context.Context, req core.SynthesisRequest, userID string) (*core.CacheEntry, error)
	SynthesizeDocument(ctx context.Context, job core.DocumentJob, reporter core.StatusReporter) error
}

// HealthChecker reports whether the configured backends are reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Options wires the server's collaborators. A nil Verifier means no token
// secret is configured; every authenticated route then answers 500.
type Options struct {
	Synthesizer    Synthesizer
	Verifier       *auth.Verifier
	StatusReporter core.StatusReporter
	Health         HealthChecker
	Metrics        http.Handler
	Logger         *logger.Logger
}

// Server holds the gin engine and handler dependencies.
type Server struct {
	engine *gin.Engine
	opts   Options
	log    *logger.Logger
}

// New builds the router and registers every route.
//
// POST /text-to-speech and POST /text-to-speech/stream require a bearer
// token whose claims carry a user id; GET /health and GET /metrics are open.
// Sentinel errors from the synthesizer map onto status codes in one place,
// so handlers only decide what to call.
func New(opts Options) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	server := &Server{engine: engine, opts: opts, log: opts.Logger}
	engine.Use(server.requestLogger())

	engine.POST("/text-to-speech", server.requireToken(), server.handleDocument)
	engine.POST("/text-to-speech/stream", server.requireToken(), server.handleUtterance)
	engine.GET("/health", server.handleHealth)

	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	return server
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		c.Next()

		s.log.Info("%s %s %d %s", c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(started))
	}
}

// requireToken rejects requests without a token and stores the raw token
// for the handler.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.Verifier == nil {
			s.log.Error("Token secret is not configured")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"errorCodes": codeSecretMissing})

			return
		}

		token := c.Query(tokenQueryParam)
		if token == "" {
			token = c.GetHeader("Authorization")
		}

		if strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"errorCode": codeInvalidToken})

			return
		}

		c.Set(tokenQueryParam, token)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.opts.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})

		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	err := s.opts.Health.Health(ctx)
	if err != nil {
		s.log.Warn("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// synthesisFailure maps a synthesis error to a status and error code.
func synthesisFailure(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, core.ErrNoBackendAvailable):
		return http.StatusInternalServerError, codeNoBackendAvailable
	default:
		return http.StatusInternalServerError, codeSynthesizerError
	}
}
