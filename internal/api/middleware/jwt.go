package middleware

import (
	"errors"
	"net/http"
	"strings"

	"tasktracker/internal/api/auth"
	"tasktracker/internal/pkg/metrics"
	"tasktracker/internal/pkg/seclog"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// AuthMiddleware verifies the bearer token and stores the resolved user ID
// in the request context. The "Bearer " prefix is optional; a raw token is
// accepted as well. Expired and invalid tokens are recorded as security
// events before the 401 goes out.
func AuthMiddleware(tokens *auth.TokenManager, events *seclog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			authFailure("missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is missing"})
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")

		userID, err := tokens.Verify(tokenStr)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				events.Event("Expired token used")
				authFailure("expired")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token expired"})
				return
			}
			events.Event("Invalid token attempt")
			authFailure("invalid")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user ID set by AuthMiddleware.
func UserID(c *gin.Context) uint {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}

func authFailure(reason string) {
	if metrics.AuthFailuresTotal != nil {
		metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
	}
}
