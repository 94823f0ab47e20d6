package stripe

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// classify maps a Stripe API failure onto the error sentinels. Throttling and
// server side failures are transient; anything else the API rejected is a
// business error marked with rejection. Processor messages stay internal.
func classify(err error, operation string, rejection error, hint string) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		if errors.Is(err, context.Canceled) {
			return ierr.WithError(err).
				WithMessagef("stripe %s canceled", operation).
				WithHint("Request was canceled").
				Mark(ierr.ErrSystem)
		}
		return ierr.WithError(err).
			WithMessagef("stripe %s failed", operation).
			WithHint("Payment processor is unavailable, please retry").
			Mark(ierr.ErrProcessorUnavailable)
	}

	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.Code == stripe.ErrorCodeRateLimit:
		return ierr.WithError(err).
			WithMessagef("stripe %s rate limited", operation).
			WithHint("Payment processor is busy, please retry").
			Mark(ierr.ErrProcessorRateLimited)
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.HTTPStatusCode == http.StatusConflict,
		stripeErr.Type == stripe.ErrorTypeAPI:
		return ierr.WithError(err).
			WithMessagef("stripe %s failed", operation).
			WithHint("Payment processor is unavailable, please retry").
			Mark(ierr.ErrProcessorUnavailable)
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized || stripeErr.HTTPStatusCode == http.StatusForbidden:
		return ierr.WithError(err).
			WithMessagef("stripe %s not authorized", operation).
			WithHint("Payment processor rejected the request").
			Mark(ierr.ErrSystem)
	}

	return ierr.WithError(err).
		WithMessagef("stripe %s rejected", operation).
		WithHint(hint).
		Mark(rejection)
}

// isResourceMissing reports whether Stripe answered that the object does not exist.
func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) &&
		(stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound)
}
