package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// APIClient provides HTTP client functionality to communicate with the
// cradle daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// APIError carries the machine-readable code returned by the daemon so the
// CLI can map it onto exit codes.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string { return e.Message }

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Register registers a container via API and decodes the returned status.
func (c *APIClient) Register(spec any, out any) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.baseURL+"/register", "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Lifecycle invokes one of the transition endpoints (start, stop, pause,
// unpause, remove) for a container id or name.
func (c *APIClient) Lifecycle(op, ref string) error {
	u := c.baseURL + "/" + op + "?ref=" + url.QueryEscape(ref)
	resp, err := c.client.Post(u, "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// Status fetches a single container status, or all statuses when ref is
// empty.
func (c *APIClient) Status(ref string, out any) error {
	u := c.baseURL + "/status"
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}
	return c.getJSON(u, out)
}

// Probes fetches the retained probe results for a container.
func (c *APIClient) Probes(ref string, out any) error {
	return c.getJSON(c.baseURL+"/probes?ref="+url.QueryEscape(ref), out)
}

// History fetches persisted transitions for a container name.
func (c *APIClient) History(name string, limit int, out any) error {
	u := c.baseURL + "/history?name=" + url.QueryEscape(name) + "&limit=" + strconv.Itoa(limit)
	return c.getJSON(u, out)
}

func (c *APIClient) getJSON(u string, out any) error {
	resp, err := c.client.Get(u)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var apiErr APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}
	return &apiErr
}
