package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/types"
)

var corsAllowedHeaders = strings.Join([]string{
	"Content-Type",
	types.HeaderAuthorization,
	types.HeaderRequestID,
	types.HeaderIdempotencyKey,
}, ", ")

// CORSMiddleware answers preflight requests for the dashboard. An empty
// allow list or "*" allows any origin.
func CORSMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	origins := cfg.Server.AllowedOrigins
	wildcard := len(origins) == 0 || lo.Contains(origins, "*")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if wildcard {
			h.Set("Access-Control-Allow-Origin", "*")
		} else if origin := c.GetHeader("Origin"); lo.Contains(origins, origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
		h.Set("Access-Control-Expose-Headers", types.HeaderRequestID)
		h.Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
