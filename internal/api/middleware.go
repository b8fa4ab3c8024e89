package api

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/metrics"
	"alcyxob/setpad/internal/service"
)

// Constants for context keys
const (
	ContextUserIDKey = "userID"
	ContextTokenKey  = "authToken"
)

// recoveryActions are offered to the client when a response could not be composed.
var recoveryActions = []string{"retry", "reload", "home"}

// AuthMiddleware creates a Gin middleware for JWT authentication. The
// verified user is stored both in the gin context and in the request
// context, where the log stores look for it.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header is missing")
			return
		}

		// Expecting "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		user, err := authService.ParseToken(parts[1])
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextTokenKey, parts[1])
		c.Request = c.Request.WithContext(auth.WithUser(c.Request.Context(), user))

		c.Next()
	}
}

// Recovery answers a panicking handler with a 500 and the actions the client
// can offer. Stored logs are not touched.
func Recovery(metricsManager *metrics.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("http: panic serving %s: %v\n%s", c.Request.URL.Path, r, debug.Stack())
				if metricsManager != nil {
					metricsManager.CounterHandleRequestPanic.Inc()
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":    "Something went wrong while rendering this page",
					"recovery": gin.H{"actions": recoveryActions},
				})
			}
		}()
		c.Next()
	}
}

// RequestMetrics counts requests by route and status and times them.
func RequestMetrics(metricsManager *metrics.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		begin := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsManager.HistRequestDuration.WithLabelValues(route).Observe(time.Since(begin).Seconds())
		metricsManager.CounterRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// RequestLogger logs every request with logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		begin := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(begin).String(),
		})
		if uid := c.GetString(ContextUserIDKey); uid != "" {
			entry = entry.WithField("userId", uid)
		}
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request completed with errors")
			return
		}
		entry.Debug("request completed")
	}
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// Helper function to get the authenticated user (used by handlers)
func currentUser(c *gin.Context) (domain.AuthUser, error) {
	user, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		return domain.AuthUser{}, errors.New("user not found in request context")
	}
	return user, nil
}
