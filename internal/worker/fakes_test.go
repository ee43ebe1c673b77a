package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"starshop/internal/delivery"
	"starshop/internal/models"
	"starshop/internal/payment"
)

// memStore is an in-memory store with the same guard semantics as the SQL
// one, shared by the delivery and watcher tests. It also satisfies the
// service Store interface so the scenario tests can run the real gateway
// over it.
type memStore struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	tasks   map[string]*models.DeliveryTask
	watches map[string]*models.PaymentWatch
	clock   time.Time
}

func newMemStore() *memStore {
	return &memStore{
		orders:  make(map[string]*models.Order),
		tasks:   make(map[string]*models.DeliveryTask),
		watches: make(map[string]*models.PaymentWatch),
		clock:   time.Unix(1700000000, 0),
	}
}

// tick advances the fake clock so updated_at ordering is observable.
func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) addOrder(order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.UpdatedAt = m.tick()
	m.orders[order.ID] = order
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	m.addOrder(order)
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *memStore) GetOrderByPaymentRef(_ context.Context, ref string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.PaymentRef == ref || order.ID == ref {
			cp := *order
			return &cp, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (m *memStore) ListRecentOrders(_ context.Context, limit int) ([]models.Order, error) {
	return nil, nil
}

func (m *memStore) SetInvoice(_ context.Context, orderID, provider, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	order.PaymentProv = provider
	order.PaymentRef = reference
	order.Status = models.OrderStatusPending
	order.UpdatedAt = m.tick()
	return nil
}

func (m *memStore) MarkOrderPaid(_ context.Context, orderID, currency, providerTx string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusNew && order.Status != models.OrderStatusPending {
		return models.ErrAlreadyPaid
	}
	order.Status = models.OrderStatusPaid
	order.PaidCurrency = currency
	order.ProviderTx = providerTx
	order.UpdatedAt = m.tick()
	return nil
}

func (m *memStore) SetAdminThreadRef(_ context.Context, orderID, threadRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[orderID]; ok {
		order.AdminThreadRef = threadRef
	}
	return nil
}

func (m *memStore) EnqueueDelivery(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[orderID]; ok {
		return nil
	}
	m.tasks[orderID] = &models.DeliveryTask{OrderID: orderID, UpdatedAt: m.tick()}
	return nil
}

func (m *memStore) NextDeliveryTask(_ context.Context) (*models.DeliveryTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*models.DeliveryTask
	for _, task := range m.tasks {
		order, ok := m.orders[task.OrderID]
		if !ok {
			candidates = append(candidates, task)
			continue
		}
		if order.Status == models.OrderStatusPaid ||
			order.Status == models.OrderStatusDelivering {
			candidates = append(candidates, task)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (m *memStore) BeginDeliveryAttempt(_ context.Context, orderID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return 0, models.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPaid && order.Status != models.OrderStatusDelivering {
		return 0, models.ErrStatusConflict
	}
	order.Status = models.OrderStatusDelivering
	order.RetryCount++
	order.UpdatedAt = m.tick()
	return order.RetryCount, nil
}

func (m *memStore) CompleteDelivery(_ context.Context, orderID, deliveryTx string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusDelivering {
		return models.ErrStatusConflict
	}
	order.Status = models.OrderStatusDelivered
	order.DeliveryTx = deliveryTx
	order.UpdatedAt = m.tick()
	return nil
}

func (m *memStore) FailDelivery(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusDelivering {
		return models.ErrStatusConflict
	}
	order.Status = models.OrderStatusFailed
	order.UpdatedAt = m.tick()
	return nil
}

func (m *memStore) TouchDeliveryTask(_ context.Context, orderID, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[orderID]; ok {
		task.TryCount++
		task.LastError = lastError
		task.UpdatedAt = m.tick()
	}
	return nil
}

func (m *memStore) DeleteDeliveryTask(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, orderID)
	return nil
}

func (m *memStore) UpsertPaymentWatch(_ context.Context, orderID, operationRef string, nextCheckAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if watch, ok := m.watches[orderID]; ok {
		watch.OperationRef = operationRef
		watch.NextCheckAt = nextCheckAt
		watch.UpdatedAt = m.tick()
		return nil
	}
	m.watches[orderID] = &models.PaymentWatch{
		OrderID:      orderID,
		OperationRef: operationRef,
		NextCheckAt:  nextCheckAt,
		UpdatedAt:    m.tick(),
	}
	return nil
}

func (m *memStore) GetPaymentWatch(_ context.Context, orderID string) (*models.PaymentWatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	watch, ok := m.watches[orderID]
	if !ok {
		return nil, nil
	}
	cp := *watch
	return &cp, nil
}

func (m *memStore) DuePaymentWatches(_ context.Context, limit int) ([]models.PaymentWatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []models.PaymentWatch
	for _, watch := range m.watches {
		if !watch.NextCheckAt.After(time.Now()) {
			due = append(due, *watch)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextCheckAt.Before(due[j].NextCheckAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memStore) ReschedulePaymentWatch(_ context.Context, orderID string, tries int, nextCheckAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if watch, ok := m.watches[orderID]; ok {
		watch.Tries = tries
		watch.NextCheckAt = nextCheckAt
		watch.UpdatedAt = m.tick()
	}
	return nil
}

func (m *memStore) DeletePaymentWatch(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watches, orderID)
	return nil
}

// fakeDeliveryProvider scripts delivery results per call.
type fakeDeliveryProvider struct {
	results []deliveryResult
	calls   []delivery.Request
}

type deliveryResult struct {
	tx  string
	err error
}

func (f *fakeDeliveryProvider) Deliver(_ context.Context, req *delivery.Request) (*delivery.Result, error) {
	f.calls = append(f.calls, *req)
	if len(f.results) == 0 {
		return &delivery.Result{OK: true, Tx: "dtx"}, nil
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	if res.err != nil {
		return nil, res.err
	}
	return &delivery.Result{OK: true, Tx: res.tx}, nil
}

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
	return threadRef, nil
}

type fakeSink struct {
	paid      int
	delivered int
	failed    int
}

func (f *fakeSink) PublishOrderCreated(_ context.Context, _ *models.Order) error { return nil }
func (f *fakeSink) PublishOrderPaid(_ context.Context, _, _, _ string) error     { f.paid++; return nil }
func (f *fakeSink) PublishOrderDelivered(_ context.Context, _, _ string, _ int) error {
	f.delivered++
	return nil
}
func (f *fakeSink) PublishOrderFailed(_ context.Context, _, _ string, _ int) error {
	f.failed++
	return nil
}

// fakeOpProvider serves the gateway in scenario tests.
type fakeOpProvider struct {
	op *payment.Operation
}

func (f *fakeOpProvider) CreateInvoice(_ context.Context, _ *payment.InvoiceRequest) (*payment.Invoice, error) {
	return &payment.Invoice{OperationRef: "op-1"}, nil
}

func (f *fakeOpProvider) OperationStatus(_ context.Context, _ string) (*payment.Operation, error) {
	if f.op == nil {
		return &payment.Operation{StatusCode: 0, StatusLabel: "created"}, nil
	}
	return f.op, nil
}

var errDeliveryDown = errors.New("automation unreachable")
