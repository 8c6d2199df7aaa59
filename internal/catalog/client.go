// Package catalog is the thin client for the remote exercise catalog:
// name search plus creation of new exercise definitions.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fitcoach/plan-engine/internal/domain"
)

// Client is the exercise catalog surface the reconciler and persister use.
type Client interface {
	// Search returns catalog candidates for a name. The remote search is
	// expected to be loose (substring/stem); callers apply their own
	// matching on top of the candidates.
	Search(ctx context.Context, name string) ([]domain.CatalogExercise, error)

	// Create adds a new exercise definition and returns its catalog id.
	Create(ctx context.Context, spec domain.NewExerciseSpec) (string, error)
}

// httpClient implements Client against the catalog REST API.
type httpClient struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	maxRetries int
}

// NewHTTPClient creates a catalog client for the given base URL.
func NewHTTPClient(baseURL, apiKey string) Client {
	return &httpClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		maxRetries: 2,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Search performs GET /exercises?name=<name>.
func (c *httpClient) Search(ctx context.Context, name string) ([]domain.CatalogExercise, error) {
	endpoint := c.baseURL + "/exercises?name=" + url.QueryEscape(name)

	var candidates []domain.CatalogExercise
	err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &candidates)
	if err != nil {
		return nil, fmt.Errorf("catalog search %q: %w", name, err)
	}
	return candidates, nil
}

// createResponse is the wire shape of a successful create.
type createResponse struct {
	ID string `json:"id"`
}

// Create performs POST /exercises.
func (c *httpClient) Create(ctx context.Context, spec domain.NewExerciseSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("exercise name is required")
	}

	var resp createResponse
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/exercises", spec, &resp)
	if err != nil {
		return "", fmt.Errorf("catalog create %q: %w", spec.Name, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("catalog create %q: response missing id", spec.Name)
	}
	return resp.ID, nil
}

// doJSON performs one JSON request with retry on transient failures
// (network errors, 429, 5xx). Other 4xx responses surface immediately.
func (c *httpClient) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return err
		}
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		retryable, err := c.attempt(ctx, method, endpoint, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

func (c *httpClient) attempt(ctx context.Context, method, endpoint string, body []byte, out any) (retryable bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return true, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return false, nil
		}
		return false, json.Unmarshal(respBody, out)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("catalog returned %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}
