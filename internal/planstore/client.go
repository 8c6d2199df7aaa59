// Package planstore is the thin client for the remote workout-management
// API that owns persisted plans and their sessions.
package planstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PlanMeta is the metadata payload for plan creation.
type PlanMeta struct {
	UserID           string `json:"userId"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	DurationWeeks    int    `json:"durationWeeks"`
	FrequencyPerWeek int    `json:"frequencyPerWeek"`
}

// SessionExercise is one exercise prescription inside a stored session.
// ExerciseID always references a resolved or newly created catalog entry.
type SessionExercise struct {
	ExerciseID  string `json:"exerciseId"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"`
	RestSeconds int    `json:"restSeconds"`
}

// Session is the payload for session creation.
type Session struct {
	Week      int               `json:"week"`     // 1-based
	Sequence  int               `json:"sequence"` // 0-based order within the plan
	Name      string            `json:"name"`
	Exercises []SessionExercise `json:"exercises"`
}

// StoredSession is a session as listed by the store.
type StoredSession struct {
	ID       string `json:"id"`
	Week     int    `json:"week"`
	Sequence int    `json:"sequence"`
}

// Client is the workout-plan store surface the persister uses. ListSessions
// exists so a retried persist can detect which sessions already exist and
// create only the missing ones.
type Client interface {
	CreatePlan(ctx context.Context, meta PlanMeta) (string, error)
	CreateSession(ctx context.Context, planID string, session Session) (string, error)
	ListSessions(ctx context.Context, planID string) ([]StoredSession, error)
}

// httpClient implements Client against the workout-management REST API.
type httpClient struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	maxRetries int
}

// NewHTTPClient creates a plan store client for the given base URL.
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

type createResponse struct {
	ID string `json:"id"`
}

// CreatePlan performs POST /plans.
func (c *httpClient) CreatePlan(ctx context.Context, meta PlanMeta) (string, error) {
	var resp createResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/plans", meta, &resp); err != nil {
		return "", fmt.Errorf("create plan: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create plan: response missing id")
	}
	return resp.ID, nil
}

// CreateSession performs POST /plans/{id}/sessions.
func (c *httpClient) CreateSession(ctx context.Context, planID string, session Session) (string, error) {
	var resp createResponse
	endpoint := c.baseURL + "/plans/" + planID + "/sessions"
	if err := c.doJSON(ctx, http.MethodPost, endpoint, session, &resp); err != nil {
		return "", fmt.Errorf("create session %d/%d: %w", session.Week, session.Sequence, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create session: response missing id")
	}
	return resp.ID, nil
}

// ListSessions performs GET /plans/{id}/sessions.
func (c *httpClient) ListSessions(ctx context.Context, planID string) ([]StoredSession, error) {
	var sessions []StoredSession
	endpoint := c.baseURL + "/plans/" + planID + "/sessions"
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &sessions); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// doJSON mirrors the catalog client's retry policy: transient failures
// (network, 429, 5xx) retried with backoff, other 4xx surfaced immediately.
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
		return true, fmt.Errorf("plan store returned %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("plan store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}
