package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"starshop/internal/models"
	"starshop/internal/payment"
)

// fakeStore is an in-memory Store that enforces the same status guards as
// the SQL implementation.
type fakeStore struct {
	mu           sync.Mutex
	orders       map[string]*models.Order
	tasks        map[string]*models.DeliveryTask
	watches      map[string]*models.PaymentWatch
	enqueues     int
	enqueueFails int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:  make(map[string]*models.Order),
		tasks:   make(map[string]*models.DeliveryTask),
		watches: make(map[string]*models.PaymentWatch),
	}
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (f *fakeStore) GetOrderByPaymentRef(_ context.Context, ref string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.PaymentRef == ref || order.ID == ref {
			cp := *order
			return &cp, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeStore) ListRecentOrders(_ context.Context, limit int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, order := range f.orders {
		out = append(out, *order)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) SetInvoice(_ context.Context, orderID, provider, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusNew {
		return models.ErrStatusConflict
	}
	order.PaymentProv = provider
	order.PaymentRef = reference
	order.Status = models.OrderStatusPending
	order.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) MarkOrderPaid(_ context.Context, orderID, currency, providerTx string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusNew && order.Status != models.OrderStatusPending {
		return models.ErrAlreadyPaid
	}
	order.Status = models.OrderStatusPaid
	order.PaidCurrency = currency
	order.ProviderTx = providerTx
	order.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) SetAdminThreadRef(_ context.Context, orderID, threadRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[orderID]; ok {
		order.AdminThreadRef = threadRef
	}
	return nil
}

// EnqueueDelivery mirrors the ON CONFLICT DO NOTHING insert; enqueues counts
// tasks actually created, not calls.
func (f *fakeStore) EnqueueDelivery(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueFails > 0 {
		f.enqueueFails--
		return errStoreDown
	}
	if _, ok := f.tasks[orderID]; ok {
		return nil
	}
	f.enqueues++
	f.tasks[orderID] = &models.DeliveryTask{OrderID: orderID, UpdatedAt: time.Now()}
	return nil
}

func (f *fakeStore) UpsertPaymentWatch(_ context.Context, orderID, operationRef string, nextCheckAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if watch, ok := f.watches[orderID]; ok {
		watch.OperationRef = operationRef
		watch.NextCheckAt = nextCheckAt
		watch.UpdatedAt = time.Now()
		return nil
	}
	f.watches[orderID] = &models.PaymentWatch{
		OrderID:      orderID,
		OperationRef: operationRef,
		NextCheckAt:  nextCheckAt,
		UpdatedAt:    time.Now(),
	}
	return nil
}

func (f *fakeStore) GetPaymentWatch(_ context.Context, orderID string) (*models.PaymentWatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	watch, ok := f.watches[orderID]
	if !ok {
		return nil, nil
	}
	cp := *watch
	return &cp, nil
}

func (f *fakeStore) DeletePaymentWatch(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watches, orderID)
	return nil
}

// fakeProvider scripts the payment provider.
type fakeProvider struct {
	invoice    *payment.Invoice
	invoiceErr error
	op         *payment.Operation
	opErr      error
	polls      int
}

func (f *fakeProvider) CreateInvoice(_ context.Context, _ *payment.InvoiceRequest) (*payment.Invoice, error) {
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	if f.invoice == nil {
		return &payment.Invoice{OperationRef: "op-1", PayURL: "https://pay.example/op-1"}, nil
	}
	return f.invoice, nil
}

func (f *fakeProvider) OperationStatus(_ context.Context, _ string) (*payment.Operation, error) {
	f.polls++
	if f.opErr != nil {
		return nil, f.opErr
	}
	if f.op == nil {
		return &payment.Operation{StatusCode: 0, StatusLabel: "created"}, nil
	}
	return f.op, nil
}

// fakeNotifier records sends.
type fakeNotifier struct {
	buyerMsgs []string
	adminMsgs []string
}

func (f *fakeNotifier) NotifyBuyer(_ context.Context, _ int64, text string) error {
	f.buyerMsgs = append(f.buyerMsgs, text)
	return nil
}

func (f *fakeNotifier) NotifyAdmin(_ context.Context, threadRef, text string) (string, error) {
	f.adminMsgs = append(f.adminMsgs, text)
	if threadRef == "" {
		threadRef = "thread-1"
	}
	return threadRef, nil
}

// fakeSink records published events.
type fakeSink struct {
	created   int
	paid      int
	delivered int
	failed    int
}

func (f *fakeSink) PublishOrderCreated(_ context.Context, _ *models.Order) error { f.created++; return nil }
func (f *fakeSink) PublishOrderPaid(_ context.Context, _, _, _ string) error     { f.paid++; return nil }
func (f *fakeSink) PublishOrderDelivered(_ context.Context, _, _ string, _ int) error {
	f.delivered++
	return nil
}
func (f *fakeSink) PublishOrderFailed(_ context.Context, _, _ string, _ int) error {
	f.failed++
	return nil
}

var (
	errProviderDown = errors.New("provider unreachable")
	errStoreDown    = errors.New("db down")
)
