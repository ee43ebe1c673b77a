// Package session drives the multi-step chat flows (gift, custom quantity)
// as an explicit per-user state machine with expiry, instead of ambient
// process-wide maps.
package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"starshop/internal/models"
)

// Store persists per-user sessions. Implemented by the Redis client.
type Store interface {
	GetSession(ctx context.Context, userID int64) (*models.Session, error)
	PutSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, userID int64) error
}

// PurchaseIntent is a completed flow's output, ready to become an order.
type PurchaseIntent struct {
	Quantity      int64
	GiftRecipient string
}

// Reply tells the chat adapter what to do next: show a prompt, place a
// purchase, or both (a prompt accompanying a completed purchase).
type Reply struct {
	Prompt   string
	Purchase *PurchaseIntent
}

// Flow is the session state machine.
type Flow struct {
	store  Store
	ttl    time.Duration
	minQty int64
	maxQty int64
}

// NewFlow creates a Flow with the configured session TTL and quantity bounds.
func NewFlow(store Store, ttl time.Duration, minQty, maxQty int64) *Flow {
	return &Flow{store: store, ttl: ttl, minQty: minQty, maxQty: maxQty}
}

// Reset drops any in-progress flow for the user.
func (f *Flow) Reset(ctx context.Context, userID int64) error {
	return f.store.DeleteSession(ctx, userID)
}

// StartGift begins the gift flow: first the recipient, then the quantity.
func (f *Flow) StartGift(ctx context.Context, userID int64) (*Reply, error) {
	session := &models.Session{UserID: userID, State: models.SessionAwaitingGiftUser}
	if err := f.store.PutSession(ctx, session, f.ttl); err != nil {
		return nil, err
	}
	return &Reply{Prompt: "Who should receive the stars? Send their @handle."}, nil
}

// StartCustom begins the custom-quantity flow.
func (f *Flow) StartCustom(ctx context.Context, userID int64) (*Reply, error) {
	session := &models.Session{UserID: userID, State: models.SessionAwaitingQty}
	if err := f.store.PutSession(ctx, session, f.ttl); err != nil {
		return nil, err
	}
	return &Reply{Prompt: f.quantityPrompt()}, nil
}

// HandleText consumes a free-text message according to the user's current
// session state.
func (f *Flow) HandleText(ctx context.Context, userID int64, text string) (*Reply, error) {
	session, err := f.store.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.State == models.SessionIdle {
		return &Reply{Prompt: "Please use the menu buttons."}, nil
	}

	switch session.State {
	case models.SessionAwaitingGiftUser:
		recipient := strings.TrimSpace(text)
		if recipient == "" {
			return &Reply{Prompt: "Send the recipient's @handle."}, nil
		}
		session.GiftRecipient = recipient
		session.State = models.SessionAwaitingGiftQty
		if err := f.store.PutSession(ctx, session, f.ttl); err != nil {
			return nil, err
		}
		return &Reply{Prompt: f.quantityPrompt()}, nil

	case models.SessionAwaitingGiftQty, models.SessionAwaitingQty:
		quantity, err := f.parseQuantity(text)
		if err != nil {
			return &Reply{Prompt: f.quantityPrompt()}, nil
		}
		intent := &PurchaseIntent{
			Quantity:      quantity,
			GiftRecipient: session.GiftRecipient,
		}
		if err := f.store.DeleteSession(ctx, userID); err != nil {
			return nil, err
		}
		return &Reply{Purchase: intent}, nil

	default:
		// Unknown state in the store, treat as expired.
		_ = f.store.DeleteSession(ctx, userID)
		return &Reply{Prompt: "Please use the menu buttons."}, nil
	}
}

func (f *Flow) parseQuantity(text string) (int64, error) {
	quantity, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, models.ErrInvalidQuantity
	}
	if quantity < f.minQty || quantity > f.maxQty {
		return 0, models.ErrInvalidQuantity
	}
	return quantity, nil
}

func (f *Flow) quantityPrompt() string {
	return fmt.Sprintf("How many stars? Send a number from %d to %d.", f.minQty, f.maxQty)
}
