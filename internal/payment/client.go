// Package payment talks to the external QR-payment provider: invoice
// creation and operation status lookups.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// StatusSettled is the provider status code that means the operation has
// been paid. Every other code is "not yet".
const StatusSettled = 1

// Client is an HTTP client for the payment provider API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a payment provider client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// InvoiceRequest describes the invoice to create.
type InvoiceRequest struct {
	AmountMinor     int64  `json:"amount"`
	Currency        string `json:"currency"`
	OrderReference  string `json:"order_reference"`
	NotificationURL string `json:"notification_url"`
	Description     string `json:"description"`
}

// Invoice is the provider's normalized invoice-creation response.
type Invoice struct {
	OperationRef string `json:"operation_id"`
	PayURL       string `json:"pay_url,omitempty"`
	QRImageURL   string `json:"qr_image,omitempty"`
}

// Operation is the provider's normalized status-poll response.
type Operation struct {
	StatusCode  int    `json:"status"`
	StatusLabel string `json:"status_label"`
}

// Settled reports whether the operation has been paid.
func (op *Operation) Settled() bool {
	return op.StatusCode == StatusSettled
}

// CreateInvoice requests a payment QR/link for an order. The description is
// sanitized before sending to satisfy provider constraints on the payment
// purpose field.
func (c *Client) CreateInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error) {
	body := *req
	body.Description = SanitizePurpose(body.Description)

	payload, err := json.Marshal(&body)
	if err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(c.baseURL, "api", "invoices")
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

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("invoice creation failed: status %d", resp.StatusCode)
	}

	var inv Invoice
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return nil, err
	}
	if inv.OperationRef == "" {
		return nil, fmt.Errorf("invoice creation failed: empty operation reference")
	}
	return &inv, nil
}

// OperationStatus polls the provider for the state of an operation.
func (c *Client) OperationStatus(ctx context.Context, operationRef string) (*Operation, error) {
	endpoint, err := url.JoinPath(c.baseURL, "api", "operations", operationRef)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status poll failed: status %d", resp.StatusCode)
	}

	var op Operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, err
	}
	return &op, nil
}
