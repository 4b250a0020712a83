// Package client is a typed HTTP client for the cradle daemon API. It is
// the embedding-friendly counterpart of the CLI: all operations take a
// context and return the daemon's JSON payloads decoded into cradle types.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/loykin/cradle"
)

// Client provides HTTP client functionality to communicate with the cradle daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new cradle API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Register registers a container and returns its initial status.
func (c *Client) Register(ctx context.Context, spec cradle.Spec) (cradle.Status, error) {
	c.logger.Debug("Registering container", "name", spec.Name, "image", spec.Image)

	data, err := json.Marshal(spec)
	if err != nil {
		return cradle.Status{}, fmt.Errorf("marshal spec: %w", err)
	}
	var st cradle.Status
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/register", data, &st); err != nil {
		return cradle.Status{}, err
	}
	return st, nil
}

// Start transitions the container into the running state.
func (c *Client) Start(ctx context.Context, ref string) error {
	return c.lifecycle(ctx, "start", ref)
}

// Stop stops a running container.
func (c *Client) Stop(ctx context.Context, ref string) error {
	return c.lifecycle(ctx, "stop", ref)
}

// Pause suspends a running container.
func (c *Client) Pause(ctx context.Context, ref string) error {
	return c.lifecycle(ctx, "pause", ref)
}

// Unpause resumes a paused container.
func (c *Client) Unpause(ctx context.Context, ref string) error {
	return c.lifecycle(ctx, "unpause", ref)
}

// Remove removes a stopped container from tracking.
func (c *Client) Remove(ctx context.Context, ref string) error {
	return c.lifecycle(ctx, "remove", ref)
}

func (c *Client) lifecycle(ctx context.Context, op, ref string) error {
	c.logger.Debug("Lifecycle operation", "op", op, "ref", ref)
	u := c.baseURL + "/" + op + "?ref=" + url.QueryEscape(ref)
	return c.doJSON(ctx, http.MethodPost, u, nil, nil)
}

// Status fetches the status of a single container by id or name.
func (c *Client) Status(ctx context.Context, ref string) (cradle.Status, error) {
	var st cradle.Status
	u := c.baseURL + "/status?ref=" + url.QueryEscape(ref)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &st); err != nil {
		return cradle.Status{}, err
	}
	return st, nil
}

// List fetches the status of every tracked container.
func (c *Client) List(ctx context.Context) ([]cradle.Status, error) {
	var out []cradle.Status
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Probes fetches the retained probe results for a container.
func (c *Client) Probes(ctx context.Context, ref string) ([]cradle.ProbeResult, error) {
	var out []cradle.ProbeResult
	u := c.baseURL + "/probes?ref=" + url.QueryEscape(ref)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History fetches persisted lifecycle transitions for a container name,
// newest first. limit <= 0 uses the daemon default.
func (c *Client) History(ctx context.Context, name string, limit int) ([]TransitionRecord, error) {
	u := c.baseURL + "/history?name=" + url.QueryEscape(name)
	if limit > 0 {
		u += "&limit=" + strconv.Itoa(limit)
	}
	var out []TransitionRecord
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// doJSON performs an HTTP request and decodes the JSON response into out
// when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var rd *bytes.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// handleErrorResponse decodes the daemon's JSON error payload into an
// APIError so callers can branch on the machine-readable code.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var apiErr APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	c.logger.Error("API request failed", "error", apiErr.Message, "code", apiErr.Code, "status", resp.StatusCode)
	return &apiErr
}
