package service

import (
	"context"
	"time"

	"starshop/internal/models"
	"starshop/internal/payment"
)

// Store is the order-store surface the services depend on. Implemented by
// the sqlx store; tests provide an in-memory fake.
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	ListRecentOrders(ctx context.Context, limit int) ([]models.Order, error)
	SetInvoice(ctx context.Context, orderID, provider, reference string) error
	MarkOrderPaid(ctx context.Context, orderID, currency, providerTx string) error
	SetAdminThreadRef(ctx context.Context, orderID, threadRef string) error

	EnqueueDelivery(ctx context.Context, orderID string) error

	UpsertPaymentWatch(ctx context.Context, orderID, operationRef string, nextCheckAt time.Time) error
	GetPaymentWatch(ctx context.Context, orderID string) (*models.PaymentWatch, error)
	DeletePaymentWatch(ctx context.Context, orderID string) error
}

// InvoiceProvider is the payment provider contract: invoice creation plus
// operation status polling. Implemented by the payment HTTP client.
type InvoiceProvider interface {
	CreateInvoice(ctx context.Context, req *payment.InvoiceRequest) (*payment.Invoice, error)
	OperationStatus(ctx context.Context, operationRef string) (*payment.Operation, error)
}

// EventSink publishes lifecycle events. Implemented by the Kafka publisher.
type EventSink interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderPaid(ctx context.Context, orderID, currency, providerTx string) error
	PublishOrderDelivered(ctx context.Context, orderID, deliveryTx string, attempts int) error
	PublishOrderFailed(ctx context.Context, orderID, reason string, attempts int) error
}
