package api

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
)

const maxResponseBytes = 8 << 20

// APIError carries a decoded daemon error response.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("daemon returned status %d", e.StatusCode)
}

// Client talks to a running daemon over its HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a client for the daemon at baseURL. The token is sent as a
// bearer credential when non-empty.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit asks the daemon to transcribe one source.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/transcribe", req, &resp)
	return resp, err
}

// Status fetches the full record for one task.
func (c *Client) Status(ctx context.Context, taskID string) (TaskStatus, error) {
	var resp TaskStatus
	err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

// List fetches task summaries, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses ...string) ([]TaskSummary, error) {
	path := "/tasks"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var resp TaskListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// Remove deletes a settled task.
func (c *Client) Remove(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(taskID), nil, nil)
}

// Cancel requests cancellation of a queued or running task.
func (c *Client) Cancel(ctx context.Context, taskID string) (TaskStatus, error) {
	var resp TaskStatus
	err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/cancel", nil, &resp)
	return resp, err
}

// MonitorStart enables the folder monitor.
func (c *Client) MonitorStart(ctx context.Context) (MonitorStatus, error) {
	var resp MonitorStatus
	err := c.do(ctx, http.MethodPost, "/monitor/start", nil, &resp)
	return resp, err
}

// MonitorStop disables the folder monitor.
func (c *Client) MonitorStop(ctx context.Context) (MonitorStatus, error) {
	var resp MonitorStatus
	err := c.do(ctx, http.MethodPost, "/monitor/stop", nil, &resp)
	return resp, err
}

// MonitorStatus reports the folder monitor state.
func (c *Client) MonitorStatus(ctx context.Context) (MonitorStatus, error) {
	var resp MonitorStatus
	err := c.do(ctx, http.MethodGet, "/monitor/status", nil, &resp)
	return resp, err
}

// MonitorCheckNow triggers an immediate folder poll.
func (c *Client) MonitorCheckNow(ctx context.Context) (MonitorStatus, error) {
	var resp MonitorStatus
	err := c.do(ctx, http.MethodPost, "/monitor/check-now", nil, &resp)
	return resp, err
}

// Health fetches daemon diagnostics.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload ErrorResponse
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
