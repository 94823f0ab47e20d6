package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
	ierr "github.com/vibefunder/billing/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "rate limited",
			err:  &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests},
			want: ierr.ErrProcessorRateLimited,
		},
		{
			name: "server error",
			err:  &stripe.Error{HTTPStatusCode: http.StatusBadGateway, Type: stripe.ErrorTypeAPI},
			want: ierr.ErrProcessorUnavailable,
		},
		{
			name: "network failure",
			err:  errors.New("connection reset by peer"),
			want: ierr.ErrProcessorUnavailable,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: ierr.ErrProcessorUnavailable,
		},
		{
			name: "card declined",
			err:  &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined},
			want: ierr.ErrInvalidPaymentMethod,
		},
		{
			name: "invalid request",
			err:  &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Type: stripe.ErrorTypeInvalidRequest},
			want: ierr.ErrInvalidPaymentMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, "payment method attach", ierr.ErrInvalidPaymentMethod, "Payment method was rejected")
			assert.True(t, ierr.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classify(nil, "noop", ierr.ErrValidation, ""))
}

func TestIsResourceMissing(t *testing.T) {
	assert.True(t, isResourceMissing(&stripe.Error{Code: stripe.ErrorCodeResourceMissing, HTTPStatusCode: http.StatusNotFound}))
	assert.False(t, isResourceMissing(&stripe.Error{HTTPStatusCode: http.StatusBadRequest}))
	assert.False(t, isResourceMissing(errors.New("boom")))
}
