package router

import (
	"context"
	"net"
	"net/http"

	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/httpclient"
	"github.com/vibefunder/billing/internal/logger"
)

func shouldRetry(logger *logger.Logger, err error) bool {
	if httpErr, ok := httpclient.IsHTTPError(err); ok {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			logger.Debugw("retrying due to HTTP error",
				"status_code", httpErr.StatusCode,
				"error", httpErr,
			)
			return true
		}
		logger.Debugw("non-retryable HTTP error",
			"status_code", httpErr.StatusCode,
			"error", httpErr,
		)
		return false
	}

	var netErr net.Error
	if ierr.As(err, &netErr) && netErr.Timeout() {
		logger.Debugw("retrying due to network timeout", "error", netErr)
		return true
	}

	if ierr.Is(err, context.Canceled) {
		return false
	}

	// malformed messages never become valid
	if ierr.IsValidation(err) || ierr.IsNotFound(err) {
		return false
	}

	return true
}
