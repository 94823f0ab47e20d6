package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
)

func testConfig() ClientConfig {
	return ClientConfig{
		Timeout:      time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"kind":"renewal_success"}`, string(body))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	client := NewRetryableClient(testConfig(), logger.NewNopLogger())
	resp, err := client.Send(context.Background(), &Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"X-Api-Key": "secret"},
		Body:    []byte(`{"kind":"renewal_success"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSendSurfacesClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`bad`))
	}))
	defer srv.Close()

	client := NewRetryableClient(testConfig(), logger.NewNopLogger())
	_, err := client.Send(context.Background(), &Request{Method: http.MethodPost, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, ierr.IsHTTPClient(err))

	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	assert.Equal(t, "bad", string(httpErr.Response))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
