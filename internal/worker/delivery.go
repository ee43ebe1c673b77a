package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"starshop/internal/delivery"
	"starshop/internal/models"
	"starshop/internal/notify"
	"starshop/internal/service"
	"starshop/internal/util"
)

// DeliveryStore is the store surface the delivery worker needs.
type DeliveryStore interface {
	NextDeliveryTask(ctx context.Context) (*models.DeliveryTask, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	BeginDeliveryAttempt(ctx context.Context, orderID string) (int, error)
	CompleteDelivery(ctx context.Context, orderID, deliveryTx string) error
	FailDelivery(ctx context.Context, orderID string) error
	TouchDeliveryTask(ctx context.Context, orderID, lastError string) error
	DeleteDeliveryTask(ctx context.Context, orderID string) error
}

// DeliveryProvider runs one fulfillment attempt.
type DeliveryProvider interface {
	Deliver(ctx context.Context, req *delivery.Request) (*delivery.Result, error)
}

// DeliveryWorker drains the fulfillment queue, one order per tick. The tick
// body runs synchronously inside the loop, so attempts are serialized: never
// two concurrent deliveries from this process.
type DeliveryWorker struct {
	store      DeliveryStore
	provider   DeliveryProvider
	notifier   notify.Notifier
	events     service.EventSink
	interval   time.Duration
	maxRetries int
	logger     *zap.Logger
}

// NewDeliveryWorker creates the worker. maxRetries bounds retries after the
// first attempt: maxRetries=4 means the fifth attempt is the last.
func NewDeliveryWorker(store DeliveryStore, provider DeliveryProvider, notifier notify.Notifier, events service.EventSink, interval time.Duration, maxRetries int) *DeliveryWorker {
	return &DeliveryWorker{
		store:      store,
		provider:   provider,
		notifier:   notifier,
		events:     events,
		interval:   interval,
		maxRetries: maxRetries,
		logger:     util.GetLogger(),
	}
}

// Run drives the worker until the context is cancelled.
func (w *DeliveryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("delivery worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delivery worker stopped")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("delivery tick failed", zap.Error(err))
			}
		}
	}
}

// Tick processes at most one eligible order.
func (w *DeliveryWorker) Tick(ctx context.Context) error {
	task, err := w.store.NextDeliveryTask(ctx)
	if err != nil {
		return fmt.Errorf("failed to select delivery task: %w", err)
	}
	if task == nil {
		return nil
	}

	order, err := w.store.GetOrderByID(ctx, task.OrderID)
	if err == models.ErrOrderNotFound {
		// Orphaned task; drop it.
		return w.store.DeleteDeliveryTask(ctx, task.OrderID)
	}
	if err != nil {
		return err
	}

	if order.Status == models.OrderStatusDelivering && order.RetryCount > w.maxRetries {
		// A crash cut the final attempt short; the budget is spent.
		return w.attemptFailed(ctx, order, order.RetryCount, "final delivery attempt interrupted")
	}

	attempt, err := w.store.BeginDeliveryAttempt(ctx, order.ID)
	if err == models.ErrStatusConflict {
		// The order moved on since selection; nothing to do this tick.
		return nil
	}
	if err != nil {
		return err
	}

	util.DeliveryAttemptsTotal.Inc()
	if attempt > 1 {
		util.DeliveryRetriesTotal.Inc()
	}

	recipient := order.Recipient()
	if recipient == "" {
		return w.attemptFailed(ctx, order, attempt, models.ErrNoRecipient.Error())
	}

	start := time.Now()
	result, err := w.provider.Deliver(ctx, &delivery.Request{
		OrderID:   order.ID,
		Quantity:  order.Quantity,
		Recipient: recipient,
	})
	util.DeliveryLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		return w.attemptFailed(ctx, order, attempt, err.Error())
	}

	return w.attemptSucceeded(ctx, order, attempt, result.Tx)
}

func (w *DeliveryWorker) attemptSucceeded(ctx context.Context, order *models.Order, attempt int, deliveryTx string) error {
	if err := w.store.CompleteDelivery(ctx, order.ID, deliveryTx); err != nil {
		return fmt.Errorf("failed to complete delivery: %w", err)
	}
	if err := w.store.DeleteDeliveryTask(ctx, order.ID); err != nil {
		w.logger.Warn("failed to drop finished task", zap.Error(err))
	}

	util.OrdersDeliveredTotal.Inc()

	w.notifier.NotifyBuyer(ctx, order.BuyerID, fmt.Sprintf(
		"Done! %d stars delivered to %s.", order.Quantity, order.Recipient()))
	w.notifier.NotifyAdmin(ctx, order.AdminThreadRef, fmt.Sprintf(
		"Order %s delivered on attempt %d (tx %s)", order.ID, attempt, deliveryTx))

	if err := w.events.PublishOrderDelivered(ctx, order.ID, deliveryTx, attempt); err != nil {
		w.logger.Warn("failed to publish OrderDelivered event", zap.Error(err))
	}

	w.logger.Info("order delivered",
		zap.String("order_id", order.ID),
		zap.Int("attempt", attempt),
		zap.String("tx", deliveryTx))
	return nil
}

func (w *DeliveryWorker) attemptFailed(ctx context.Context, order *models.Order, attempt int, reason string) error {
	if attempt > w.maxRetries {
		if err := w.store.FailDelivery(ctx, order.ID); err != nil {
			return fmt.Errorf("failed to mark order failed: %w", err)
		}
		if err := w.store.DeleteDeliveryTask(ctx, order.ID); err != nil {
			w.logger.Warn("failed to drop exhausted task", zap.Error(err))
		}

		util.OrdersFailedTotal.WithLabelValues("delivery_exhausted").Inc()

		w.notifier.NotifyBuyer(ctx, order.BuyerID,
			"We could not deliver your stars. Support will contact you shortly, sorry.")
		w.notifier.NotifyAdmin(ctx, order.AdminThreadRef, fmt.Sprintf(
			"Order %s FAILED after %d attempts: %s", order.ID, attempt, reason))

		if err := w.events.PublishOrderFailed(ctx, order.ID, reason, attempt); err != nil {
			w.logger.Warn("failed to publish OrderFailed event", zap.Error(err))
		}

		w.logger.Error("order failed terminally",
			zap.String("order_id", order.ID),
			zap.Int("attempts", attempt),
			zap.String("reason", reason))
		return nil
	}

	// Leave the order DELIVERING; the refreshed task re-queues it behind
	// newer work for the next tick.
	if err := w.store.TouchDeliveryTask(ctx, order.ID, reason); err != nil {
		return fmt.Errorf("failed to record attempt failure: %w", err)
	}

	w.notifier.NotifyAdmin(ctx, order.AdminThreadRef, fmt.Sprintf(
		"Order %s delivery attempt %d/%d failed: %s", order.ID, attempt, w.maxRetries+1, reason))

	w.logger.Warn("delivery attempt failed",
		zap.String("order_id", order.ID),
		zap.Int("attempt", attempt),
		zap.String("reason", reason))
	return nil
}
