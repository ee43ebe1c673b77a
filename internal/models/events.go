package models

import "time"

// Event types published on the order lifecycle stream
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderPaid      = "ORDER_PAID"
	EventTypeOrderDelivered = "ORDER_DELIVERED"
	EventTypeOrderFailed    = "ORDER_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a purchase request is placed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	BuyerID     int64  `json:"buyer_id"`
	Quantity    int64  `json:"quantity"`
	PriceRubKop int64  `json:"price_rub_kop"`
}

// OrderPaidEvent published when payment is confirmed (webhook or poll)
type OrderPaidEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	Currency   string `json:"currency"`
	ProviderTx string `json:"provider_tx"`
}

// OrderDeliveredEvent published when fulfillment succeeds
type OrderDeliveredEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	DeliveryTx string `json:"delivery_tx"`
	Attempts   int    `json:"attempts"`
}

// OrderFailedEvent published when delivery exhausts its retry budget
type OrderFailedEvent struct {
	BaseEvent
	OrderID  string `json:"order_id"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}
