package ai

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/config"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/metrics"
)

const maxResponseBytes = 1 << 20

var tracer = otel.Tracer("healthflow/ai")

// Client talks to a hosted chat-completion API. It never retries: a failed
// call is returned to the caller as AIServiceUnavailable.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker[string]
	log         zerolog.Logger
}

// upstreamError carries the HTTP status of a non-2xx response.
type upstreamError struct {
	status int
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.status)
}

// NewClient creates a new AI gateway client
func NewClient(cfg config.AIConfig, log zerolog.Logger) *Client {
	c := &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		log:         log.With().Str("component", "ai_client").Logger(),
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ai-gateway",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A caller hanging up says nothing about upstream health.
			return err == nil || stderrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Complete sends a system and a user message and returns the full text of
// the first choice.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "ai.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.variant", req.Variant),
		attribute.String("ai.model", c.model),
		attribute.Int("ai.max_tokens", req.MaxTokens),
	)

	content, err := c.breaker.Execute(func() (string, error) {
		return c.do(ctx, req)
	})
	if err == nil {
		return content, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "completion failed")

	var upstream *upstreamError
	switch {
	case stderrors.As(err, &upstream):
		return "", errors.AIServiceUnavailable(upstream.status, err)
	case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
		c.log.Warn().Str("variant", req.Variant).Msg("ai gateway short-circuited")
		return "", errors.AIServiceUnavailable(0, err)
	case errors.Is(err, errors.ErrMalformedAIResponse):
		return "", err
	default:
		return "", errors.AIServiceUnavailable(0, err)
	}
}

func (c *Client) do(ctx context.Context, req CompletionRequest) (string, error) {
	body, err := json.Marshal(ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: req.System},
			{Role: RoleUser, Content: req.User},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.RecordAIRequest(req.Variant, 0, time.Since(start))
		c.log.Error().Err(err).Str("variant", req.Variant).Msg("ai gateway transport failure")
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordAIRequest(req.Variant, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused; the body is never logged.
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		c.log.Error().Int("upstream_status", resp.StatusCode).Str("variant", req.Variant).Msg("ai gateway returned error status")
		return "", &upstreamError{status: resp.StatusCode}
	}

	var chat ChatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&chat); err != nil {
		return "", errors.MalformedAIResponse(err)
	}
	if len(chat.Choices) == 0 {
		return "", nil
	}

	return chat.Choices[0].Message.Content, nil
}

// Health checks that the model endpoint is reachable with the configured key.
// It bypasses the breaker so that probes never trip it.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &upstreamError{status: resp.StatusCode}
	}
	return nil
}
