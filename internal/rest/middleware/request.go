package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/types"
)

// RequestIDMiddleware propagates X-Request-ID, generating one when the caller did not send it.
func RequestIDMiddleware(c *gin.Context) {
	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_REQUEST)
	}

	c.Request = c.Request.WithContext(types.SetRequestID(c.Request.Context(), requestID))
	c.Header(types.HeaderRequestID, requestID)

	c.Next()
}
