package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"starshop/internal/models"
	"starshop/internal/util"
)

// WatchStore is the store surface the payment watcher needs.
type WatchStore interface {
	DuePaymentWatches(ctx context.Context, limit int) ([]models.PaymentWatch, error)
	ReschedulePaymentWatch(ctx context.Context, orderID string, tries int, nextCheckAt time.Time) error
	DeletePaymentWatch(ctx context.Context, orderID string) error
}

// WatchPoller polls one watch and applies the mark-paid path on settlement.
// Implemented by the payment gateway.
type WatchPoller interface {
	PollWatch(ctx context.Context, watch *models.PaymentWatch) (bool, error)
}

// WatchConfig tunes the payment watcher.
type WatchConfig struct {
	// Interval between ticks.
	Interval time.Duration
	// Batch is the maximum number of due watches processed per tick.
	Batch int
	// MaxTries is the poll budget per watch. When spent, the watch is
	// dropped and the order stays PENDING: the operator has to notice
	// through the logs and metrics.
	MaxTries int
	// StepDelay grows linearly with the try counter, capped at CapDelay.
	StepDelay time.Duration
	CapDelay  time.Duration
	// ErrorDelay reschedules a watch after a provider failure without
	// spending a try, so outages do not burn the budget.
	ErrorDelay time.Duration
}

// PaymentWatcher re-polls payment status for orders whose webhook has not
// arrived. Tick bodies run synchronously in the loop, so ticks never overlap.
type PaymentWatcher struct {
	store  WatchStore
	poller WatchPoller
	cfg    WatchConfig
	logger *zap.Logger
}

// NewPaymentWatcher creates the watcher.
func NewPaymentWatcher(store WatchStore, poller WatchPoller, cfg WatchConfig) *PaymentWatcher {
	return &PaymentWatcher{
		store:  store,
		poller: poller,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// Run drives the watcher until the context is cancelled.
func (w *PaymentWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("payment watcher started", zap.Duration("interval", w.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("payment watcher stopped")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("payment watch tick failed", zap.Error(err))
			}
		}
	}
}

// Tick polls a batch of due watches.
func (w *PaymentWatcher) Tick(ctx context.Context) error {
	watches, err := w.store.DuePaymentWatches(ctx, w.cfg.Batch)
	if err != nil {
		return fmt.Errorf("failed to select due watches: %w", err)
	}

	for i := range watches {
		watch := &watches[i]

		settled, err := w.poller.PollWatch(ctx, watch)
		if err != nil {
			// Transient provider trouble: push the check out without
			// spending a try.
			if rerr := w.store.ReschedulePaymentWatch(ctx, watch.OrderID, watch.Tries, time.Now().Add(w.cfg.ErrorDelay)); rerr != nil {
				w.logger.Error("failed to reschedule watch", zap.Error(rerr))
			}
			w.logger.Warn("payment poll failed",
				zap.String("order_id", watch.OrderID),
				zap.Error(err))
			continue
		}
		if settled {
			// The gateway already dropped the watch on the paid path.
			continue
		}

		tries := watch.Tries + 1
		if tries >= w.cfg.MaxTries {
			if err := w.store.DeletePaymentWatch(ctx, watch.OrderID); err != nil {
				w.logger.Error("failed to drop exhausted watch", zap.Error(err))
				continue
			}
			util.PaymentWatchExhaustedTotal.Inc()
			w.logger.Warn("payment watch budget exhausted, giving up",
				zap.String("order_id", watch.OrderID),
				zap.Int("tries", tries))
			continue
		}

		delay := w.backoff(tries)
		if err := w.store.ReschedulePaymentWatch(ctx, watch.OrderID, tries, time.Now().Add(delay)); err != nil {
			w.logger.Error("failed to reschedule watch", zap.Error(err))
		}
	}

	return nil
}

// backoff returns the delay before the next poll: linear in the try counter,
// capped.
func (w *PaymentWatcher) backoff(tries int) time.Duration {
	delay := w.cfg.StepDelay * time.Duration(tries)
	if delay > w.cfg.CapDelay {
		delay = w.cfg.CapDelay
	}
	return delay
}
