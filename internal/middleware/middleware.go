// Package middleware provides Gin middleware functions for the code generation
// API. It includes CORS handling, request logging, panic recovery, bearer
// token authentication, plan and role guards, and per-address rate limiting.
package middleware

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/ratelimit"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// CORSMiddleware returns a Gin middleware handler that allows cross-origin
// requests from the given origins. "*" allows any origin; an empty list only
// same-origin requests.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			cfg.AllowOriginFunc = func(string) bool { return true }
			return cors.New(cfg)
		}
	}
	if len(allowedOrigins) == 0 {
		// cors.New rejects a config that allows no origin at all.
		cfg.AllowOriginFunc = func(string) bool { return false }
		return cors.New(cfg)
	}
	cfg.AllowOrigins = allowedOrigins
	return cors.New(cfg)
}

// RequestID returns the correlation id assigned to the request, or "".
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// LoggingMiddleware returns a Gin middleware handler that assigns a request id
// and logs request and response metadata including method, path, status code,
// latency, and client IP.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(requestIDKey, reqID)
		c.Header(RequestIDHeader, reqID)

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		bodySize := c.Writer.Size()

		if query != "" {
			path = path + "?" + query
		}

		switch {
		case statusCode >= 500:
			log.Printf("[ERROR] [%s] %s %s | %d | %v | %s | %d bytes | errors: %s",
				reqID, method, path, statusCode, latency, clientIP, bodySize, c.Errors.ByType(gin.ErrorTypePrivate).String())
		case statusCode >= 400:
			log.Printf("[WARN]  [%s] %s %s | %d | %v | %s | %d bytes",
				reqID, method, path, statusCode, latency, clientIP, bodySize)
		default:
			log.Printf("[INFO]  [%s] %s %s | %d | %v | %s | %d bytes",
				reqID, method, path, statusCode, latency, clientIP, bodySize)
		}
	}
}

// PathRateLimit returns a Gin middleware handler that applies policy to every
// request whose path starts with prefix, keyed by client IP. Other requests
// pass through untouched.
func PathRateLimit(limiter *ratelimit.Limiter, prefix string, policy ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, prefix) {
			c.Next()
			return
		}

		err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP(), policy)
		if err == nil {
			c.Next()
			return
		}

		var exceeded *ratelimit.ExceededError
		if errors.As(err, &exceeded) {
			SetRetryAfter(c, exceeded.RetryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests, please try again later.",
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":   "rate_limit_unavailable",
			"message": "Rate limiting is temporarily unavailable.",
		})
	}
}

// SetRetryAfter writes the Retry-After header in whole seconds, at least 1.
func SetRetryAfter(c *gin.Context, d time.Duration) {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.FormatInt(secs, 10))
}

// RecoveryMiddleware returns a Gin middleware that recovers from panics
// and returns a 500 error instead of crashing the server.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] [%s] recovered from panic: %v", RequestID(c), err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "internal_server_error",
					"message": "An unexpected error occurred.",
				})
			}
		}()
		c.Next()
	}
}
