package models

import (
	"strings"
	"time"
)

// Order is a purchase of a quantity of stars, tracked from creation
// through payment confirmation and delivery.
type Order struct {
	ID             string    `db:"id" json:"id"`
	BuyerID        int64     `db:"buyer_id" json:"buyer_id"`
	BuyerHandle    string    `db:"buyer_handle" json:"buyer_handle"`
	GiftRecipient  string    `db:"gift_recipient" json:"gift_recipient,omitempty"`
	Quantity       int64     `db:"quantity" json:"quantity"`
	PriceRubKop    int64     `db:"price_rub_kop" json:"price_rub_kop"`
	PriceUsdtMicro int64     `db:"price_usdt_micro" json:"price_usdt_micro"`
	Status         string    `db:"status" json:"status"`
	PaymentProv    string    `db:"payment_provider" json:"payment_provider,omitempty"`
	PaymentRef     string    `db:"payment_reference" json:"payment_reference,omitempty"`
	PaidCurrency   string    `db:"paid_currency" json:"paid_currency,omitempty"`
	ProviderTx     string    `db:"provider_tx" json:"provider_tx,omitempty"`
	DeliveryTx     string    `db:"delivery_tx" json:"delivery_tx,omitempty"`
	RetryCount     int       `db:"retry_count" json:"retry_count"`
	AdminThreadRef string    `db:"admin_thread_ref" json:"admin_thread_ref,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Recipient resolves the delivery target: the gift recipient when one was
// given, otherwise the buyer's own handle. Empty means nobody to deliver to.
func (o *Order) Recipient() string {
	if r := strings.TrimSpace(o.GiftRecipient); r != "" {
		return r
	}
	return strings.TrimSpace(o.BuyerHandle)
}

// DeliveryTask is one row of the fulfillment work queue, keyed by order.
// Oldest updated_at is served first, so a failed attempt moves to the back.
type DeliveryTask struct {
	OrderID   string    `db:"order_id" json:"order_id"`
	TryCount  int       `db:"try_count" json:"try_count"`
	LastError string    `db:"last_error" json:"last_error,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentWatch schedules status re-polls for an order whose payment
// confirmation has not arrived by webhook.
type PaymentWatch struct {
	OrderID      string    `db:"order_id" json:"order_id"`
	OperationRef string    `db:"operation_ref" json:"operation_ref"`
	Tries        int       `db:"tries" json:"tries"`
	NextCheckAt  time.Time `db:"next_check_at" json:"next_check_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses. Progression is forward-only: NEW -> PENDING -> PAID ->
// DELIVERING -> DELIVERED, with FAILED and CANCELLED terminal.
const (
	OrderStatusNew        = "NEW"
	OrderStatusPending    = "PENDING"
	OrderStatusPaid       = "PAID"
	OrderStatusDelivering = "DELIVERING"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusFailed     = "FAILED"
	OrderStatusCancelled  = "CANCELLED"
)

// Session states for the multi-step chat flows.
const (
	SessionIdle             = "idle"
	SessionAwaitingGiftUser = "awaiting_gift_recipient"
	SessionAwaitingGiftQty  = "awaiting_gift_quantity"
	SessionAwaitingQty      = "awaiting_custom_quantity"
)

// Session is the per-user conversational state kept between chat messages.
// It lives in Redis with a TTL, keyed by the chat user id.
type Session struct {
	UserID        int64  `json:"user_id"`
	State         string `json:"state"`
	GiftRecipient string `json:"gift_recipient,omitempty"`
}
