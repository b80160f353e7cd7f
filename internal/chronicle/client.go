package chronicle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chronicle-scrobbler/internal/scrobble"
)

const userAgent = "chronicle-scrobbler/1.0"

// ErrNotConfigured is returned when the server URL or API key is missing;
// the caller skips the operation instead of treating it as a transport
// failure.
var ErrNotConfigured = errors.New("chronicle: server URL or API key not configured")

// KeySource supplies the current API key. Pairing can grant a key at any
// time, so the client reads it per request instead of caching it.
type KeySource func() string

// Client talks to the Chronicle REST API. It implements scrobble.Sink.
type Client struct {
	BaseURL string
	apiKey  KeySource
	http    *http.Client
}

func New(baseURL string, apiKey KeySource) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send POSTs one scrobble report. Any transport problem or non-2xx response
// comes back as an error; nothing panics past this boundary.
func (c *Client) Send(report scrobble.Report) error {
	key := c.apiKey()
	if c.BaseURL == "" || key == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("chronicle: encode scrobble: %w", err)
	}

	req, err := c.newRequest(http.MethodPost, c.BaseURL+"/api/v1/scrobble", key, bytes.NewReader(body))
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chronicle: scrobble: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("chronicle: scrobble returned http %d", resp.StatusCode)
	}
}

// Health verifies connectivity and the API key against /api/health.
func (c *Client) Health() error {
	if c.BaseURL == "" {
		return ErrNotConfigured
	}

	req, err := c.newRequest(http.MethodGet, c.BaseURL+"/api/health", c.apiKey(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chronicle: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chronicle: health returned http %d", resp.StatusCode)
	}
	return nil
}

// DeviceAuth is the server's answer to a pairing initiation.
type DeviceAuth struct {
	Code             string `json:"code"`
	DisplayCode      string `json:"displayCode"`
	QRURL            string `json:"qrUrl"`
	VerificationURL  string `json:"verificationUrl"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

// DeviceAuthStatus is one poll result. Status is pending, approved, denied
// or expired; APIKey is set only once approved.
type DeviceAuthStatus struct {
	Status string `json:"status"`
	APIKey string `json:"apiKey"`
}

// Chronicle wraps payloads in a data envelope.
type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

// StartDeviceAuth initiates the device pairing flow. No API key is required;
// pairing is how the key is obtained in the first place.
func (c *Client) StartDeviceAuth(deviceName string) (*DeviceAuth, error) {
	if c.BaseURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(map[string]string{"deviceName": deviceName})
	if err != nil {
		return nil, fmt.Errorf("chronicle: encode device auth: %w", err)
	}

	req, err := c.newRequest(http.MethodPost, c.BaseURL+"/api/v1/auth/device", "", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chronicle: device auth: %w", err)
	}

	var env dataEnvelope[DeviceAuth]
	if err := readJSON(resp, &env); err != nil {
		return nil, fmt.Errorf("chronicle: device auth: %w", err)
	}
	if env.Data.Code == "" {
		return nil, errors.New("chronicle: device auth response missing code")
	}
	return &env.Data, nil
}

// PollDeviceAuth checks whether the pairing code has been approved yet.
func (c *Client) PollDeviceAuth(code string) (*DeviceAuthStatus, error) {
	if c.BaseURL == "" {
		return nil, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/api/v1/auth/device/%s/poll", c.BaseURL, url.PathEscape(code))
	req, err := c.newRequest(http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chronicle: device auth poll: %w", err)
	}

	var env dataEnvelope[DeviceAuthStatus]
	if err := readJSON(resp, &env); err != nil {
		return nil, fmt.Errorf("chronicle: device auth poll: %w", err)
	}
	if env.Data.Status == "" {
		env.Data.Status = "pending"
	}
	return &env.Data, nil
}

func (c *Client) newRequest(method, endpoint, key string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("chronicle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if key != "" {
		req.Header.Set("X-Api-Key", key)
	}
	return req, nil
}

// readJSON enforces 200 OK and JSON-decodes into dst. On failure it returns
// an error that includes the status and a short body snippet.
func readJSON(resp *http.Response, dst any) error {
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(b)
		if len(snippet) > 240 {
			snippet = snippet[:240] + "…"
		}
		return fmt.Errorf("http %d from %s: %s", resp.StatusCode, resp.Request.URL.String(), snippet)
	}

	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode json from %s: %w", resp.Request.URL.String(), err)
	}
	return nil
}
