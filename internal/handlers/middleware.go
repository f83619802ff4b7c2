package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	adminHeader     = "X-Admin-Password"
)

// RequestID tags every request with an id, reusing the caller's if present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AdminAuth guards the admin routes with the shared dashboard password.
func AdminAuth(password string) gin.HandlerFunc {
	expected := []byte(password)
	return func(c *gin.Context) {
		given := []byte(c.GetHeader(adminHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
			return
		}
		c.Next()
	}
}
