// Package delivery calls the external fulfillment automation that credits
// stars to a recipient. The coordinator treats it as an opaque provider:
// idempotency across retried attempts is the provider's responsibility.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Request identifies one delivery attempt.
type Request struct {
	OrderID   string `json:"order_id"`
	Quantity  int64  `json:"quantity"`
	Recipient string `json:"recipient"`
}

// Result is the provider's verdict on an attempt.
type Result struct {
	OK     bool   `json:"ok"`
	Tx     string `json:"tx,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Client is an HTTP client for the delivery provider.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a delivery provider client. The timeout covers the whole
// automation run, which can take a while.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 3 * time.Minute,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Deliver runs one fulfillment attempt. A transport error and an ok:false
// response are equivalent for the caller; both surface as an error with a
// reason.
func (c *Client) Deliver(ctx context.Context, req *Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(c.baseURL, "api", "jobs")
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("delivery call failed: status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, fmt.Errorf("delivery rejected: %s", result.Reason)
	}
	return &result, nil
}
