package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"murmur/internal/api"
	"murmur/internal/artifact"
	"murmur/internal/pool"
	"murmur/internal/services"
)

// Per-request deadlines. Submit carries a whole container upload, so it
// gets far more time than the lightweight polling calls.
const (
	statusRequestTimeout = 30 * time.Second
	poolRequestTimeout   = 10 * time.Second
	submitRequestTimeout = 2 * time.Minute
)

// APIClient talks to murmurd's HTTP surface.
type APIClient struct {
	base *url.URL
	http *http.Client
}

// NewAPIClient builds a client for the given server URL. A bare host:port
// is accepted and assumed to be plain HTTP.
func NewAPIClient(serverURL string) (*APIClient, error) {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return nil, services.Wrap(services.ErrValidation, "api-client", "new", "server URL required", nil)
	}
	if !strings.Contains(serverURL, "://") {
		serverURL = "http://" + serverURL
	}
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""

	// Deadlines are applied per request; polling calls must outlive any
	// single client-wide timeout.
	return &APIClient{base: base, http: &http.Client{}}, nil
}

// Health checks server liveness.
func (c *APIClient) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.getJSON(ctx, "/health", statusRequestTimeout, &out)
	return out, err
}

// PoolStatus fetches the admission snapshot.
func (c *APIClient) PoolStatus(ctx context.Context) (pool.PoolStatus, error) {
	var out pool.PoolStatus
	err := c.getJSON(ctx, "/pool/status", poolRequestTimeout, &out)
	return out, err
}

// TaskStatus fetches the lifecycle record for a task.
// Unknown ids return an error wrapping services.ErrNotFound.
func (c *APIClient) TaskStatus(ctx context.Context, taskID string) (api.TaskStatus, error) {
	var out api.TaskStatus
	err := c.getJSON(ctx, "/tasks/"+url.PathEscape(taskID)+"/status", statusRequestTimeout, &out)
	return out, err
}

// TaskResult fetches the result record for a task. SRTContent stays nil
// until the server has finished and persisted the transcript.
func (c *APIClient) TaskResult(ctx context.Context, taskID string) (api.TaskResult, error) {
	var out api.TaskResult
	err := c.getJSON(ctx, "/tasks/"+url.PathEscape(taskID)+"/result", statusRequestTimeout, &out)
	return out, err
}

// ListTasks fetches all live tasks and retained results.
func (c *APIClient) ListTasks(ctx context.Context) (api.TaskList, error) {
	var out api.TaskList
	err := c.getJSON(ctx, "/tasks", statusRequestTimeout, &out)
	return out, err
}

// Stats fetches aggregate pool and worker counters.
func (c *APIClient) Stats(ctx context.Context) (api.Stats, error) {
	var out api.Stats
	err := c.getJSON(ctx, "/stats", statusRequestTimeout, &out)
	return out, err
}

// Cancel asks the server to cancel a queued task.
func (c *APIClient) Cancel(ctx context.Context, taskID string) error {
	return c.deleteJSON(ctx, "/tasks/"+url.PathEscape(taskID))
}

// ClearResult evicts a stored result from the server.
func (c *APIClient) ClearResult(ctx context.Context, taskID string) error {
	return c.deleteJSON(ctx, "/tasks/"+url.PathEscape(taskID)+"/result")
}

// Submit uploads an encrypted task container. An HTTP error status or an
// application-level success=false both fail the submission.
func (c *APIClient) Submit(ctx context.Context, taskID, containerPath string) error {
	container, err := os.ReadFile(containerPath)
	if err != nil {
		return fmt.Errorf("read container: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("task_id", taskID); err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	fw, err := mw.CreateFormFile("task_file", taskID+artifact.ContainerExt)
	if err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if _, err := fw.Write(container); err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build form: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, submitRequestTimeout)
	defer cancel()

	endpoint := c.base.ResolveReference(&url.URL{Path: c.base.Path + "/tasks/submit"})
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.String(), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "api-client", "submit", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	var payload api.Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode submit response: %w", err)
	}
	if !payload.Success {
		return fmt.Errorf("submit rejected: %s", payload.Message)
	}
	return nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, timeout time.Duration, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.base.ResolveReference(&url.URL{Path: c.base.Path + path})
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "api-client", "get", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *APIClient) deleteJSON(ctx context.Context, path string) error {
	reqCtx, cancel := context.WithTimeout(ctx, statusRequestTimeout)
	defer cancel()

	endpoint := c.base.ResolveReference(&url.URL{Path: c.base.Path + path})
	req, err := http.NewRequestWithContext(reqCtx, http.MethodDelete, endpoint.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "api-client", "delete", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		_ = json.Unmarshal(body, &payload)
	}
	message := payload.Error
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, "api-client", "request", message, nil)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, message)
}
