package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}
}

func TestDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "token", r.Header.Get("X-Auth"))

		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer server.Close()

	client := New(server.URL, time.Second, map[string]string{"X-Auth": "token"})

	resp, err := client.Do(context.Background(), http.MethodGet, "/")
	require.NoError(t, err)

	// status codes are data, not errors
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "short and stout", string(resp.Body))
	assert.False(t, resp.Success())

	var statusErr *StatusError
	require.ErrorAs(t, resp.Err(), &statusErr)
	assert.Equal(t, http.StatusTeapot, statusErr.StatusCode)
}

func TestDoRetry_RecoversFromServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(server.URL, time.Second, nil).WithRetry(fastRetry())

	resp, err := client.DoRetry(context.Background(), http.MethodGet, "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.EqualValues(t, 3, attempts.Load())
}

func TestDoRetry_ClientErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad query"))
	}))
	defer server.Close()

	client := New(server.URL, time.Second, nil).WithRetry(fastRetry())

	resp, err := client.DoRetry(context.Background(), http.MethodGet, "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.EqualValues(t, 1, attempts.Load())
}

func TestWithForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "value", r.FormValue("key"))
	}))
	defer server.Close()

	client := New(server.URL, time.Second, nil)

	resp, err := client.Do(context.Background(), http.MethodPost, "/",
		WithForm(url.Values{"key": []string{"value"}}))
	require.NoError(t, err)
	assert.True(t, resp.Success())
}
