package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/metrics"
)

const (
	// UserHeader carries the authenticated user id set by the upstream auth provider
	UserHeader = "X-User-ID"

	userKey = "userId"
)

// RequireUser rejects requests without an authenticated user
func RequireUser(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(UserHeader))
	if userID == "" {
		Abort(c, http.StatusUnauthorized, nil, "Missing "+UserHeader+" header")
		return
	}

	// Store the user ID in context for handlers
	c.Set(userKey, userID)
	c.Next()
}

func currentUser(c *gin.Context) string {
	return c.GetString(userKey)
}

// RequestLogger logs and counts every request once it has been served
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.ObserveRequest(c.Request.Method, route, status, elapsed)

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"duration": elapsed.String(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case status >= http.StatusBadRequest:
			entry.Warning("Request rejected")
		default:
			entry.Debug("Request served")
		}
	}
}
