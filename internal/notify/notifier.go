// Package notify is the side-channel for user and admin messages. Sends are
// best-effort: a failed notification must never roll back the state
// transition that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"starshop/internal/util"
)

// Notifier delivers messages to the buyer and the admin channel through the
// chat adapter.
type Notifier interface {
	// NotifyBuyer sends a message to the buyer's chat.
	NotifyBuyer(ctx context.Context, buyerID int64, text string) error
	// NotifyAdmin posts to the admin channel. A non-empty threadRef makes
	// the message a follow-up in an existing thread; the returned ref
	// identifies the thread for later follow-ups.
	NotifyAdmin(ctx context.Context, threadRef, text string) (string, error)
}

// HTTPNotifier posts notification requests to the chat adapter service.
type HTTPNotifier struct {
	client  *http.Client
	baseURL string
}

// NewHTTPNotifier creates a notifier backed by the chat adapter.
func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
	}
}

type notifyRequest struct {
	BuyerID   int64  `json:"buyer_id,omitempty"`
	ThreadRef string `json:"thread_ref,omitempty"`
	Text      string `json:"text"`
}

type notifyResponse struct {
	ThreadRef string `json:"thread_ref,omitempty"`
}

// NotifyBuyer sends a message to the buyer's chat.
func (n *HTTPNotifier) NotifyBuyer(ctx context.Context, buyerID int64, text string) error {
	_, err := n.post(ctx, "/notify/buyer", &notifyRequest{BuyerID: buyerID, Text: text})
	return err
}

// NotifyAdmin posts to the admin channel.
func (n *HTTPNotifier) NotifyAdmin(ctx context.Context, threadRef, text string) (string, error) {
	resp, err := n.post(ctx, "/notify/admin", &notifyRequest{ThreadRef: threadRef, Text: text})
	if err != nil {
		return "", err
	}
	return resp.ThreadRef, nil
}

func (n *HTTPNotifier) post(ctx context.Context, path string, req *notifyRequest) (*notifyResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("notify failed: status %d", resp.StatusCode)
	}

	var out notifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BestEffort wraps a Notifier so failures are logged and swallowed.
type BestEffort struct {
	inner  Notifier
	logger *zap.Logger
}

// NewBestEffort wraps a notifier with failure containment.
func NewBestEffort(inner Notifier) *BestEffort {
	return &BestEffort{inner: inner, logger: util.GetLogger()}
}

// NotifyBuyer sends and never fails.
func (b *BestEffort) NotifyBuyer(ctx context.Context, buyerID int64, text string) error {
	if err := b.inner.NotifyBuyer(ctx, buyerID, text); err != nil {
		b.logger.Warn("buyer notification dropped",
			zap.Int64("buyer_id", buyerID),
			zap.Error(err))
	}
	return nil
}

// NotifyAdmin sends and never fails. On failure the original threadRef is
// returned so later follow-ups still target the right thread.
func (b *BestEffort) NotifyAdmin(ctx context.Context, threadRef, text string) (string, error) {
	ref, err := b.inner.NotifyAdmin(ctx, threadRef, text)
	if err != nil {
		b.logger.Warn("admin notification dropped", zap.Error(err))
		return threadRef, nil
	}
	return ref, nil
}
