// Package facilitator is an HTTP client for x402 v1 facilitator services.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single facilitator call.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is quoted in errors.
const maxErrorBody = 512

// HeaderProvider supplies per-call headers, e.g. facilitator API keys.
type HeaderProvider func(ctx context.Context) (CallHeaders, error)

// Client handles communication with an x402 facilitator service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    HeaderProvider
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHeaderProvider sets a provider for custom verify/settle headers.
func WithHeaderProvider(p HeaderProvider) Option {
	return func(c *Client) { c.headers = p }
}

// NewClient creates a new facilitator client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the facilitator base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Verify checks if a payment is valid via POST /verify.
// A response without isValid is an error.
func (c *Client) Verify(ctx context.Context, req *Request) (*VerifyResponse, error) {
	var extra map[string]string
	if c.headers != nil {
		h, err := c.headers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create verify headers: %w", err)
		}
		extra = h.Verify
	}

	var resp VerifyResponse
	if err := c.post(ctx, "verify", req, extra, &resp); err != nil {
		return nil, err
	}
	if resp.IsValid == nil {
		return nil, errors.New("facilitator verify response is missing isValid")
	}
	return &resp, nil
}

// Settle executes the payment via POST /settle.
// A response without success is an error.
func (c *Client) Settle(ctx context.Context, req *Request) (*SettleResponse, error) {
	var extra map[string]string
	if c.headers != nil {
		h, err := c.headers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create settle headers: %w", err)
		}
		extra = h.Settle
	}

	var resp SettleResponse
	if err := c.post(ctx, "settle", req, extra, &resp); err != nil {
		return nil, err
	}
	if resp.Success == nil {
		return nil, errors.New("facilitator settle response is missing success")
	}
	return &resp, nil
}

// Supported fetches the supported payment kinds via GET /supported.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supported request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call facilitator supported endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("supported", resp)
	}

	var supported SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&supported); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &supported, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body interface{}, headers map[string]string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call facilitator %s endpoint: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func statusError(endpoint string, resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("facilitator %s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}
