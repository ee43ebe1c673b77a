package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"starshop/internal/models"
)

// EventPublisher emits order lifecycle events. Publishing is best-effort at
// every call site: an unreachable broker never blocks a state transition.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// PublishOrderCreated publishes an OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	return ep.producer.PublishEvent(ctx, "order-"+order.ID, &models.OrderCreatedEvent{
		BaseEvent:   baseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		Quantity:    order.Quantity,
		PriceRubKop: order.PriceRubKop,
	})
}

// PublishOrderPaid publishes an OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, orderID, currency, providerTx string) error {
	return ep.producer.PublishEvent(ctx, "order-"+orderID, &models.OrderPaidEvent{
		BaseEvent:  baseEvent(models.EventTypeOrderPaid),
		OrderID:    orderID,
		Currency:   currency,
		ProviderTx: providerTx,
	})
}

// PublishOrderDelivered publishes an OrderDelivered event
func (ep *EventPublisher) PublishOrderDelivered(ctx context.Context, orderID, deliveryTx string, attempts int) error {
	return ep.producer.PublishEvent(ctx, "order-"+orderID, &models.OrderDeliveredEvent{
		BaseEvent:  baseEvent(models.EventTypeOrderDelivered),
		OrderID:    orderID,
		DeliveryTx: deliveryTx,
		Attempts:   attempts,
	})
}

// PublishOrderFailed publishes an OrderFailed event
func (ep *EventPublisher) PublishOrderFailed(ctx context.Context, orderID, reason string, attempts int) error {
	return ep.producer.PublishEvent(ctx, "order-"+orderID, &models.OrderFailedEvent{
		BaseEvent: baseEvent(models.EventTypeOrderFailed),
		OrderID:   orderID,
		Reason:    reason,
		Attempts:  attempts,
	})
}
