package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/pyroscope"
)

// PyroscopeMiddleware labels the profile samples taken while a request is handled.
func PyroscopeMiddleware(svc *pyroscope.Service) gin.HandlerFunc {
	if svc == nil || !svc.IsEnabled() {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		labels := map[string]string{
			"method":   c.Request.Method,
			"endpoint": c.FullPath(),
		}
		svc.TagWrapper(c.Request.Context(), labels, func(context.Context) {
			c.Next()
		})
	}
}
