package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *GeminiClient {
	cfg := DefaultConfig("test-key")
	cfg.BaseURL = url
	cfg.Timeout = 5 * time.Second
	return NewGeminiClient(cfg)
}

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hola"}]}}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	got, err := client.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "hola", got)
}

func TestComplete_NoAPIKey(t *testing.T) {
	client := NewGeminiClient(Config{})
	_, err := client.Complete(context.Background(), "", "x")
	assert.Error(t, err)
}

func TestComplete_RetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	got, err := client.Complete(context.Background(), "", "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCompleteWithSchema_SchemaRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"responseJsonSchema is not supported"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.CompleteWithSchema(context.Background(), "", "x", `{"type":"object"}`)
	assert.True(t, errors.Is(err, ErrSchemaNotSupported))
}

func TestCompleteWithSchema_InvalidSchema(t *testing.T) {
	client := newTestClient("http://unused")
	_, err := client.CompleteWithSchema(context.Background(), "", "x", "{broken")
	assert.Error(t, err)

	_, err = client.CompleteWithSchema(context.Background(), "", "x", "  ")
	assert.Error(t, err)
}

func TestComplete_APIErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":500,"message":"internal"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Complete(context.Background(), "", "x")
	assert.ErrorContains(t, err, "internal")
}
