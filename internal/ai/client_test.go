package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/config"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
)

func newTestClient(t *testing.T, url string, failures uint32) *Client {
	t.Helper()
	return NewClient(config.AIConfig{
		BaseURL:         url,
		APIKey:          "sk-test",
		Model:           "gpt-4o-mini",
		Temperature:     0.2,
		Timeout:         2 * time.Second,
		BreakerFailures: failures,
		BreakerCooldown: time.Minute,
	}, zerolog.Nop())
}

func TestCompleteSendsTwoMessages(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"All good."}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	out, err := c.Complete(context.Background(), CompletionRequest{
		Variant:   "summary",
		System:    "sys",
		User:      "Blood test results:\n• TSH: 2",
		MaxTokens: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, "All good.", out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 300, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "sys", got.Messages[0].Content)
	assert.Equal(t, RoleUser, got.Messages[1].Role)
}

func TestCompleteNon2xxIsUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	_, err := c.Complete(context.Background(), CompletionRequest{Variant: "summary", System: "s", User: "u"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAIServiceUnavailable))

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
	assert.Equal(t, "503", appErr.Details["upstream_status"])
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "no retry")
}

func TestCompleteTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, 5)
	_, err := c.Complete(context.Background(), CompletionRequest{Variant: "risk_flags", System: "s", User: "u"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAIServiceUnavailable, errors.CodeOf(err))
}

func TestCompleteBreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	for i := 0; i < 4; i++ {
		_, err := c.Complete(context.Background(), CompletionRequest{Variant: "summary"})
		assert.Equal(t, errors.CodeAIServiceUnavailable, errors.CodeOf(err))
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, "open", c.BreakerState())
}

func TestCompleteMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	_, err := c.Complete(context.Background(), CompletionRequest{Variant: "summary"})
	assert.Equal(t, errors.CodeMalformedAIResponse, errors.CodeOf(err))
}

func TestCompleteNoChoicesIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	out, err := c.Complete(context.Background(), CompletionRequest{Variant: "summary"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHealthCheckHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := NewHandler(newTestClient(t, srv.URL, 5))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "closed", body.Breaker)
	assert.NotContains(t, rec.Body.String(), "401")
}
