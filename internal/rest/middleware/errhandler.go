package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/config"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/sentry"
	"github.com/vibefunder/billing/internal/types"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Display       string         `json:"message"`
	InternalError string         `json:"internal_error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// ErrorHandler renders the last error a handler attached to the context.
// The message comes from hints only; the raw error text is echoed back only
// in local mode since it may carry processor responses.
func ErrorHandler(cfg *config.Configuration, log *logger.Logger, sentrySvc *sentry.Service) gin.HandlerFunc {
	exposeInternal := cfg.Deployment.Mode == types.ModeLocal

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)

		response := ErrorResponse{
			Success: false,
			Error: ErrorDetail{
				Display: getDisplayMessage(err),
				Details: getSafeDetails(err),
			},
		}
		if exposeInternal {
			response.Error.InternalError = err.Error()
		}

		if status >= http.StatusInternalServerError {
			log.WithContext(c.Request.Context()).Errorw("request failed",
				"path", c.FullPath(),
				"status", status,
				"error", err,
			)
			if sentrySvc != nil {
				sentrySvc.CaptureExceptionWithTags(c.Request.Context(), err, map[string]string{
					"path":       c.FullPath(),
					"error_code": ierr.Code(err),
				})
			}
		}

		c.JSON(status, response)
	}
}

func getDisplayMessage(err error) string {
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		// GetAllHints is a post-order traversal; the first non-empty one wins.
		for _, hint := range hints {
			if hint = strings.TrimSpace(hint); hint != "" {
				return hint
			}
		}
	}

	return "An unexpected error occurred"
}

func getSafeDetails(err error) map[string]any {
	details := make(map[string]any)

	for _, sdp := range errors.GetAllSafeDetails(err) {
		for _, payload := range sdp.SafeDetails {
			jsonStr, ok := strings.CutPrefix(payload, "__json__:")
			if !ok {
				continue
			}
			var jsonDetails map[string]any
			if err := json.Unmarshal([]byte(jsonStr), &jsonDetails); err == nil {
				for k, v := range jsonDetails {
					details[k] = v
				}
			}
		}
	}

	return details
}
