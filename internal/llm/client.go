// Package llm provides the model-invocation client for the plan engine:
// an OpenAI-compatible chat completions client with bounded timeouts,
// retry with exponential backoff for transient failures, and an advisory
// response cache wrapper.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the model response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// EndpointType tags an invocation by its purpose. The cache layer keys TTLs
// off it; it never changes the request itself.
type EndpointType string

const (
	EndpointExtract    EndpointType = "extract"
	EndpointSynthesize EndpointType = "synthesize"
	EndpointClassify   EndpointType = "classify"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a model completion request.
type Request struct {
	// Endpoint identifies the calling component for cache TTL selection.
	Endpoint EndpointType

	// UserID scopes cached responses to one user.
	UserID string

	// Messages is the chat history to send to the model.
	Messages []Message

	// Temperature controls randomness. nil uses the endpoint default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int
}

// Invoker is the minimal invocation surface. The cache wraps it and the
// engine components depend on it, so tests can substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// RetryConfig holds retry configuration for model requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (first try included).
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns sensible retry defaults: one initial attempt
// plus at most two retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        15 * time.Second,
	}
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	httpClient  *http.Client
	retryConfig RetryConfig
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// NewClient creates a model client for the given endpoint and model name.
func NewClient(baseURL, apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // Allow time for model responses
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chatRequest is the OpenAI-style wire request.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// chatResponse is the OpenAI-style wire response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Invoke sends a completion request, retrying transient failures with
// exponential backoff. Fatal errors (4xx other than 429) surface immediately.
func (c *Client) Invoke(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", NewFatalError(fmt.Errorf("at least one message is required"))
	}

	requestID := uuid.New().String()
	backoff := c.retryConfig.BackoffBase

	var lastErr error
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		content, err := c.doRequest(ctx, req)
		if err == nil {
			return content, nil
		}
		lastErr = err

		// Only failures explicitly classified transient are worth another
		// attempt; fatal and unclassified errors surface immediately.
		if !IsTransient(err) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", NewTransientError(ctx.Err())
		}
		if attempt == c.retryConfig.MaxAttempts {
			break
		}

		log.Printf("model request %s attempt %d/%d failed (%s endpoint): %v",
			requestID, attempt, c.retryConfig.MaxAttempts, req.Endpoint, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", NewTransientError(ctx.Err())
		}

		backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiplier)
		if backoff > c.retryConfig.MaxBackoff {
			backoff = c.retryConfig.MaxBackoff
		}
	}

	return "", fmt.Errorf("model request %s failed after %d attempts: %w",
		requestID, c.retryConfig.MaxAttempts, lastErr)
}

// doRequest performs a single HTTP round trip.
func (c *Client) doRequest(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", NewFatalError(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", NewFatalError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", NewTransientError(fmt.Errorf("model request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", NewTransientError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", NewTransientError(fmt.Errorf("model endpoint returned %d: %s",
			resp.StatusCode, truncate(string(respBody), 200)))
	default:
		return "", NewFatalError(fmt.Errorf("model endpoint returned %d: %s",
			resp.StatusCode, truncate(string(respBody), 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", NewTransientError(fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return "", NewTransientError(fmt.Errorf("model error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", NewTransientError(fmt.Errorf("model returned no choices"))
	}

	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
