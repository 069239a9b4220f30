// Package middleware holds gin middleware shared by the front, webhook and admin route groups.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/voxdesk/voxdesk/internal/identity"
	"github.com/voxdesk/voxdesk/internal/metrics"
	"github.com/voxdesk/voxdesk/internal/ratelimit"

	log "github.com/sirupsen/logrus"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "requestID"

// RequestID returns the correlation id assigned by RequestLogger.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger assigns a request id and logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(HeaderRequestID, requestID)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("http request")
		case status >= http.StatusBadRequest:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}

// CORS enables permissive CORS for browser clients.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Device-Fingerprint, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ClientIP returns the caller address used for throttling. Forwarding headers win; the socket
// address is used only when neither header is present.
func ClientIP(c *gin.Context) string {
	ip := identity.ClientIP(c.GetHeader(identity.HeaderForwardedFor), c.GetHeader(identity.HeaderRealIP))
	if ip == identity.UnknownIP {
		if remote := c.ClientIP(); remote != "" {
			return remote
		}
	}
	return ip
}

// Throttle rejects requests over the per-second budget of scope with 429.
// Limiter errors fail open.
func Throttle(manager *ratelimit.Manager, scope ratelimit.Scope, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			c.Next()
			return
		}
		result, errAllow := manager.AllowClient(c.Request.Context(), scope, ClientIP(c))
		if errAllow != nil {
			log.WithError(errAllow).WithField("scope", string(scope)).Warn("ratelimit: check failed")
			c.Next()
			return
		}
		if !result.Allowed {
			m.Throttled(string(scope))
			if !result.Reset.IsZero() {
				retry := int(time.Until(result.Reset).Seconds()) + 1
				if retry < 1 {
					retry = 1
				}
				c.Header("Retry-After", strconv.Itoa(retry))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
