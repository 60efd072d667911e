package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireMessagingRole отсекает базовую роль "user" на входе; сервисный
// слой повторяет проверку, чтобы не зависеть от порядка middleware.
func RequireMessagingRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "kind": "unauthenticated"})
			c.Abort()
			return
		}

		if !user.CanMessage() {
			c.JSON(http.StatusForbidden, gin.H{"error": "messaging is not available for this role", "kind": "forbidden"})
			c.Abort()
			return
		}

		c.Next()
	}
}
