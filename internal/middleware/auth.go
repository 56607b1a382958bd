package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/souqhub/souq-api/internal/model"
	"github.com/souqhub/souq-api/internal/service"
)

const authContextKey = "authContext"

// Authenticate validates the session token from the cookie or bearer header
// and stores a single AuthContext value for the request. Authentication and
// authorization failures both surface as access denied to the caller; the
// audit log keeps them apart.
func Authenticate(authSvc *service.AuthService, cookieName string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err != nil || token == "" {
			header := c.GetHeader("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				token = header[7:]
			}
		}
		if token == "" {
			log.Info("access denied", "reason", "authentication", "detail", "missing token", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access denied"})
			return
		}

		auth, err := authSvc.ValidateSession(c.Request.Context(), token)
		if err != nil {
			log.Info("access denied", "reason", "authentication", "detail", "invalid or stale session", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access denied"})
			return
		}

		c.Set(authContextKey, *auth)
		c.Next()
	}
}

func RequireAdmin(log *slog.Logger) gin.HandlerFunc {
	return requireRole(log, func(a model.AuthContext) bool { return a.Role == model.RoleAdmin })
}

// RequireStaff admits administrators and employees.
func RequireStaff(log *slog.Logger) gin.HandlerFunc {
	return requireRole(log, func(a model.AuthContext) bool { return a.IsStaff() })
}

func requireRole(log *slog.Logger, allowed func(model.AuthContext) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := GetAuthContext(c)
		if !allowed(auth) {
			log.Info("access denied", "reason", "authorization", "role", auth.Role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

// GetAuthContext returns the principal established by Authenticate. The zero
// value means the middleware did not run; routes behind it never see that.
func GetAuthContext(c *gin.Context) model.AuthContext {
	v, _ := c.Get(authContextKey)
	auth, _ := v.(model.AuthContext)
	return auth
}
