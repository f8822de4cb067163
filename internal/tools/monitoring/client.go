package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient queries a REST monitoring backend for device status. The
// backend is expected to expose GET /api/v1/devices/{name} returning a
// DeviceStatus JSON document.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientConfig holds settings for the monitoring backend connection.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewHTTPClient creates a monitoring backend client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// QueryDevice fetches the current status of one device by name.
func (c *HTTPClient) QueryDevice(ctx context.Context, name string) (*DeviceStatus, error) {
	endpoint := fmt.Sprintf("%s/api/v1/devices/%s", c.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("monitoring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("device %q not found", name)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("monitoring API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status DeviceStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode device status: %w", err)
	}
	if status.Name == "" {
		status.Name = name
	}
	return &status, nil
}

// Ping reports whether the monitoring backend is reachable. Used as a
// health probe for the device-monitoring handler.
func (c *HTTPClient) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return false, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
