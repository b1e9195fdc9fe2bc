package middleware

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/classroom-sync/internal/constants"
	apierrors "github.com/yukikurage/classroom-sync/internal/errors"
	"github.com/yukikurage/classroom-sync/internal/models"
)

// RequireAuth checks that the session carries a viewer. Sessions are written
// by the account service; this process only reads them.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		username, _ := session.Get(constants.ContextKeyUsername).(string)

		if username == "" {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		// Store the viewer in context for easy access in handlers
		c.Set(constants.ContextKeyUsername, username)
		if role, ok := session.Get(constants.ContextKeyUserRole).(string); ok {
			c.Set(constants.ContextKeyUserRole, models.UserRole(role))
		}
		c.Next()
	}
}

// GetUsername retrieves the current username from context
func GetUsername(c *gin.Context) (string, bool) {
	username := c.GetString(constants.ContextKeyUsername)
	return username, username != ""
}

// GetUserRole retrieves the current role from context; empty when the
// session did not carry one.
func GetUserRole(c *gin.Context) models.UserRole {
	value, exists := c.Get(constants.ContextKeyUserRole)
	if !exists {
		return ""
	}

	switch v := value.(type) {
	case models.UserRole:
		return v
	case string:
		return models.UserRole(v)
	default:
		return ""
	}
}
