package router

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/httpclient"
	"github.com/vibefunder/billing/internal/logger"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	log := logger.NewNopLogger()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"service unavailable", ierr.WithError(httpclient.NewError(http.StatusServiceUnavailable, nil)).Mark(ierr.ErrHTTPClient), true},
		{"too many requests", httpclient.NewError(http.StatusTooManyRequests, nil), true},
		{"bad request", ierr.WithError(httpclient.NewError(http.StatusBadRequest, nil)).Mark(ierr.ErrHTTPClient), false},
		{"network timeout", timeoutErr{}, true},
		{"validation", ierr.NewError("bad payload").Mark(ierr.ErrValidation), false},
		{"canceled", context.Canceled, false},
		{"unknown", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRetry(log, tt.err))
		})
	}
}
