// Package middleware provides gin middleware for the admin/dashboard
// HTTP surface: CORS, security headers, request-ID audit logging, and
// per-client rate limiting.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// Security bundles the admin surface's cross-cutting HTTP concerns.
// There is no JWT/role middleware here: the dashboard has no auth
// surface (see DESIGN.md's dropped-dependency note on golang-jwt).
type Security struct {
	logger      *zap.Logger
	rateLimiter *limiter.Limiter
}

// New builds a security middleware bundle with a requestsPerMinute
// in-memory rate limit.
func New(logger *zap.Logger, requestsPerMinute int64) *Security {
	rate := limiter.Rate{
		Period: time.Minute,
		Limit:  requestsPerMinute,
	}
	store := memory.NewStore()
	return &Security{
		logger:      logger,
		rateLimiter: limiter.New(store, rate),
	}
}

// RateLimiter throttles each client IP to the configured rate.
func (m *Security) RateLimiter() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiterCtx, err := m.rateLimiter.Get(c.Request.Context(), ip)
		if err != nil {
			m.logger.Error("rate limiter lookup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(limiterCtx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(limiterCtx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(limiterCtx.Reset, 10))

		if limiterCtx.Reached {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CORS permits cross-origin dashboard clients.
func (m *Security) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SecurityHeaders sets the standard defensive response headers.
func (m *Security) SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// RequestID tags every request with a unique ID for audit logging.
func (m *Security) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := generateRequestID()
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		m.logger.Info("request received",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)
		c.Next()
	}
}

func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
