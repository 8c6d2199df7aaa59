package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func testRequest() Request {
	return Request{
		Endpoint: EndpointExtract,
		UserID:   "user-1",
		Messages: []Message{{Role: "user", Content: "hello"}},
	}
}

func TestInvokeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"hi there"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model", WithRetryConfig(fastRetry()))
	content, err := client.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hi there", content)
}

func TestInvokeRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "test-model", WithRetryConfig(fastRetry()))
	content, err := client.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvokeDoesNotRetryFatalErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-key", "test-model", WithRetryConfig(fastRetry()))
	_, err := client.Invoke(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvokeExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "test-model", WithRetryConfig(fastRetry()))
	_, err := client.Invoke(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvokeRetriesUndecodableResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte("<html>gateway splat</html>"))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "test-model", WithRetryConfig(fastRetry()))
	content, err := client.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvokeRequiresMessages(t *testing.T) {
	client := NewClient("http://localhost:0", "", "test-model")
	_, err := client.Invoke(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}
