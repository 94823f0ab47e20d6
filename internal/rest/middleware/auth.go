package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/auth"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/types"
)

// AuthenticateMiddleware verifies the JWT bearer token in the Authorization header
// and sets the user ID in the request context for downstream handlers.
func AuthenticateMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	authProvider := auth.NewProvider(cfg)

	return func(c *gin.Context) {
		authHeader := c.GetHeader(types.HeaderAuthorization)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := authProvider.ValidateToken(tokenString)
		if err != nil {
			logger.Debugw("failed to validate token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		ctx := types.SetUserID(c.Request.Context(), claims.UserID)
		ctx = types.SetJWT(ctx, tokenString)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
