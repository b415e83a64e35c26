// Package middleware provides HTTP middleware for the application
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	app_errors "shiftclock/internal/errors"
	"shiftclock/internal/response"
	"shiftclock/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Identity keys set on the gin context by the Identity middleware.
const (
	ContextUserID = "user_id"
	ContextOrgID  = "org_id"
)

// Logger creates the request logging middleware.
func Logger(config types.LogConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		method := c.Request.Method
		statusCode := c.Writer.Status()

		// Health probes only show up when they fail
		if isMonitoringEndpoint(path) {
			if statusCode >= 400 {
				logrus.Warnf("%s %s - %d - %v", method, path, statusCode, latency)
			}
			return
		}

		switch {
		case statusCode >= 500:
			logrus.Errorf("%s %s - %d - %v", method, path, statusCode, latency)
		case statusCode >= 400:
			logrus.Warnf("%s %s - %d - %v", method, path, statusCode, latency)
		default:
			logrus.Infof("%s %s - %d - %v", method, path, statusCode, latency)
		}
	}
}

// CORS creates a CORS middleware with efficient preflight handling
func CORS(config types.CORSConfig) gin.HandlerFunc {
	allowedMethods := strings.Join(config.AllowedMethods, ", ")
	allowedHeaders := strings.Join(config.AllowedHeaders, ", ")

	allowedOrigins := make(map[string]bool, len(config.AllowedOrigins))
	hasWildcard := false
	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			hasWildcard = true
		} else {
			allowedOrigins[origin] = true
		}
	}

	allowed := func(origin string) bool {
		if hasWildcard && !config.AllowCredentials {
			return true
		}
		return allowedOrigins[origin]
	}

	setHeaders := func(c *gin.Context, origin string) {
		if hasWildcard && !config.AllowCredentials {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", allowedMethods)
		c.Header("Access-Control-Allow-Headers", allowedHeaders)
		if config.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
	}

	return func(c *gin.Context) {
		if !config.Enabled {
			c.Next()
			return
		}

		origin := c.Request.Header.Get("Origin")

		if c.Request.Method == http.MethodOptions {
			if allowed(origin) {
				setHeaders(c, origin)
				c.Header("Access-Control-Max-Age", "86400")
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if allowed(origin) {
			setHeaders(c, origin)
		}
		c.Next()
	}
}

// Auth creates an authentication middleware
func Auth(authConfig types.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isMonitoringEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := extractAuthKey(c)
		isValid := key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(authConfig.Key)) == 1
		if !isValid {
			response.Error(c, app_errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Next()
	}
}

// Identity resolves the authenticated subject from the gateway-set headers.
// The upstream auth layer owns validation; here a missing or malformed
// identity is simply a bad request.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.GetHeader("X-User-ID"), 10, 32)
		if err != nil || userID == 0 {
			response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, "Missing or invalid X-User-ID header"))
			c.Abort()
			return
		}
		orgID, err := strconv.ParseUint(c.GetHeader("X-Org-ID"), 10, 32)
		if err != nil || orgID == 0 {
			response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, "Missing or invalid X-Org-ID header"))
			c.Abort()
			return
		}

		c.Set(ContextUserID, uint(userID))
		c.Set(ContextOrgID, uint(orgID))
		c.Next()
	}
}

// Recovery creates a recovery middleware with custom error handling
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logrus.Errorf("Panic recovered: %v", recovered)
		response.Error(c, app_errors.ErrInternalServer)
		c.Abort()
	})
}

// RateLimiter creates a simple rate limiting middleware
func RateLimiter(config types.PerformanceConfig) gin.HandlerFunc {
	semaphore := make(chan struct{}, config.MaxConcurrentRequests)

	return func(c *gin.Context) {
		select {
		case semaphore <- struct{}{}:
			defer func() { <-semaphore }()
			c.Next()
		default:
			response.Error(c, app_errors.NewAPIError(app_errors.ErrInternalServer, "Too many concurrent requests"))
			c.Abort()
		}
	}
}

// ErrorHandler creates an error handling middleware
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			if apiErr, ok := err.(*app_errors.APIError); ok {
				response.Error(c, apiErr)
				return
			}

			logrus.Errorf("Unhandled error: %v", err)
			response.Error(c, app_errors.ErrInternalServer)
		}
	}
}

// RequestBodySizeLimit caps request bodies. Punch payloads carry a base64
// selfie, so the default allows a generous image but nothing pathological.
func RequestBodySizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes && c.Request.ContentLength != -1 {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// isMonitoringEndpoint checks if the path is a monitoring endpoint
func isMonitoringEndpoint(path string) bool {
	return path == "/health"
}

// extractAuthKey extracts the auth key from the request.
func extractAuthKey(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		const bearerPrefix = "Bearer "
		if strings.HasPrefix(authHeader, bearerPrefix) {
			return authHeader[len(bearerPrefix):]
		}
	}

	if key := c.GetHeader("X-Api-Key"); key != "" {
		return key
	}

	return ""
}
