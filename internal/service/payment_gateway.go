package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"go.uber.org/zap"

	"starshop/internal/models"
	"starshop/internal/notify"
	"starshop/internal/payment"
	"starshop/internal/util"
)

// Webhook statuses that mean the invoice was paid. Anything else keeps the
// watch poller going.
var settledWebhookStatuses = map[string]bool{
	"paid":    true,
	"settled": true,
	"success": true,
}

// GatewayConfig configures the payment gateway.
type GatewayConfig struct {
	ProviderName string
	// WebhookSecret is the shared secret expected in the webhook signature
	// header. Empty disables the webhook channel entirely.
	WebhookSecret string
	// CallbackURL is handed to the provider as the webhook target.
	CallbackURL string
	// FirstCheckDelay is how long after invoice creation the first status
	// poll is scheduled.
	FirstCheckDelay time.Duration
	// RearmDelay is the poll delay applied when a webhook reports a
	// not-yet-paid status.
	RearmDelay time.Duration
}

// PaymentGateway bridges the two payment-observation channels (webhook push
// and status polling) into one idempotent mark-paid effect, and owns invoice
// creation with the provider.
type PaymentGateway struct {
	store    Store
	provider InvoiceProvider
	notifier notify.Notifier
	events   EventSink
	cfg      GatewayConfig
	logger   *zap.Logger
}

// NewPaymentGateway creates the gateway.
func NewPaymentGateway(store Store, provider InvoiceProvider, notifier notify.Notifier, events EventSink, cfg GatewayConfig) *PaymentGateway {
	return &PaymentGateway{
		store:    store,
		provider: provider,
		notifier: notifier,
		events:   events,
		cfg:      cfg,
		logger:   util.GetLogger(),
	}
}

// AttachInvoice requests an invoice for a NEW order, records the reference,
// moves the order to PENDING and arms the payment watch. The caller treats a
// failure as non-fatal: the order stays placed, just without this payment
// channel.
func (g *PaymentGateway) AttachInvoice(ctx context.Context, order *models.Order) (*payment.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "PaymentGateway.AttachInvoice")
	defer span.End()

	inv, err := g.provider.CreateInvoice(ctx, &payment.InvoiceRequest{
		AmountMinor:     order.PriceRubKop,
		Currency:        "RUB",
		OrderReference:  order.ID,
		NotificationURL: g.cfg.CallbackURL,
		Description:     fmt.Sprintf("Order %s: %d stars", order.ID, order.Quantity),
	})
	if err != nil {
		util.InvoiceCreateFailedTotal.Inc()
		return nil, fmt.Errorf("invoice creation failed: %w", err)
	}

	if err := g.store.SetInvoice(ctx, order.ID, g.cfg.ProviderName, inv.OperationRef); err != nil {
		return nil, fmt.Errorf("failed to record invoice: %w", err)
	}
	order.Status = models.OrderStatusPending
	order.PaymentProv = g.cfg.ProviderName
	order.PaymentRef = inv.OperationRef

	// Webhooks are not guaranteed delivery, so polling starts regardless.
	if err := g.store.UpsertPaymentWatch(ctx, order.ID, inv.OperationRef, time.Now().Add(g.cfg.FirstCheckDelay)); err != nil {
		g.logger.Error("failed to arm payment watch",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	return inv, nil
}

// WebhookPayload is the provider's payment notification body.
type WebhookPayload struct {
	OrderReference string `json:"order_reference"`
	Status         string `json:"status"`
	TxReference    string `json:"tx_reference"`
}

// HandleWebhook processes a payment notification. Returns ErrUnauthorized
// for a bad or absent signature, ErrMalformedPayload when the order
// reference is missing, and ErrOrderNotFound for an unknown order (which
// the HTTP layer still acknowledges with 200 to stop provider retries).
func (g *PaymentGateway) HandleWebhook(ctx context.Context, claimedSecret string, payload *WebhookPayload) error {
	ctx, span := util.StartSpan(ctx, "PaymentGateway.HandleWebhook")
	defer span.End()

	if g.cfg.WebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(claimedSecret), []byte(g.cfg.WebhookSecret)) != 1 {
		util.WebhookRequestsTotal.WithLabelValues("unauthorized").Inc()
		return models.ErrUnauthorized
	}

	if payload.OrderReference == "" {
		util.WebhookRequestsTotal.WithLabelValues("malformed").Inc()
		return models.ErrMalformedPayload
	}

	order, err := g.store.GetOrderByPaymentRef(ctx, payload.OrderReference)
	if err == models.ErrOrderNotFound {
		util.WebhookRequestsTotal.WithLabelValues("not_found").Inc()
		g.logger.Warn("webhook for unknown order",
			zap.String("order_reference", payload.OrderReference))
		return models.ErrOrderNotFound
	}
	if err != nil {
		return err
	}

	if settledWebhookStatuses[payload.Status] {
		util.WebhookRequestsTotal.WithLabelValues("paid").Inc()
		if err := g.MarkPaid(ctx, order.ID, "RUB", payload.TxReference); err != nil && err != models.ErrAlreadyPaid {
			return err
		}
		return nil
	}

	// Not a settled status: keep (or resume) polling for this order.
	util.WebhookRequestsTotal.WithLabelValues("pending").Inc()
	operationRef := order.PaymentRef
	if operationRef == "" {
		operationRef = payload.OrderReference
	}
	return g.store.UpsertPaymentWatch(ctx, order.ID, operationRef, time.Now().Add(g.cfg.RearmDelay))
}

// MarkPaid applies the idempotent paid transition: exactly one enqueue and
// one notification cycle per order no matter how many confirmation channels
// fire. Returns ErrAlreadyPaid on repeats. The already-paid path still
// re-asserts the delivery task: an earlier call may have marked the order
// paid and then failed to enqueue, and a PAID order must never end up with
// neither a task nor a watch.
func (g *PaymentGateway) MarkPaid(ctx context.Context, orderID, currency, txRef string) error {
	ctx, span := util.StartSpan(ctx, "PaymentGateway.MarkPaid")
	defer span.End()

	if err := g.store.MarkOrderPaid(ctx, orderID, currency, txRef); err != nil {
		if err == models.ErrAlreadyPaid {
			if qerr := g.ensureQueued(ctx, orderID); qerr != nil {
				return fmt.Errorf("failed to restore delivery task: %w", qerr)
			}
		}
		return err
	}

	util.OrdersPaidTotal.Inc()

	if err := g.store.EnqueueDelivery(ctx, orderID); err != nil {
		return fmt.Errorf("failed to enqueue delivery: %w", err)
	}

	if err := g.store.DeletePaymentWatch(ctx, orderID); err != nil {
		g.logger.Warn("failed to drop payment watch",
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	order, err := g.store.GetOrderByID(ctx, orderID)
	if err != nil {
		g.logger.Error("paid order vanished", zap.String("order_id", orderID), zap.Error(err))
		return nil
	}

	g.notifier.NotifyBuyer(ctx, order.BuyerID, fmt.Sprintf(
		"Payment received for %d stars. Delivery starts shortly.", order.Quantity))
	threadRef, _ := g.notifier.NotifyAdmin(ctx, order.AdminThreadRef, fmt.Sprintf(
		"Order %s paid (%s, tx %s)", order.ID, currency, txRef))
	if threadRef != "" && threadRef != order.AdminThreadRef {
		if err := g.store.SetAdminThreadRef(ctx, orderID, threadRef); err != nil {
			g.logger.Warn("failed to store admin thread ref", zap.Error(err))
		}
	}

	if err := g.events.PublishOrderPaid(ctx, orderID, currency, txRef); err != nil {
		g.logger.Warn("failed to publish OrderPaid event", zap.Error(err))
	}

	g.logger.Info("order paid",
		zap.String("order_id", orderID),
		zap.String("currency", currency),
		zap.String("tx", txRef))
	return nil
}

// ensureQueued re-runs the idempotent enqueue for an order that is PAID but
// may have lost its delivery task to an earlier enqueue failure.
func (g *PaymentGateway) ensureQueued(ctx context.Context, orderID string) error {
	order, err := g.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPaid {
		return nil
	}
	return g.store.EnqueueDelivery(ctx, orderID)
}

// PollWatch performs one status poll for a watch entry. When the operation
// settled it runs the mark-paid path and drops the watch, reporting settled
// even if another channel won the race.
func (g *PaymentGateway) PollWatch(ctx context.Context, watch *models.PaymentWatch) (bool, error) {
	op, err := g.provider.OperationStatus(ctx, watch.OperationRef)
	if err != nil {
		util.PaymentPollsTotal.WithLabelValues("error").Inc()
		return false, err
	}

	if !op.Settled() {
		util.PaymentPollsTotal.WithLabelValues("pending").Inc()
		return false, nil
	}

	util.PaymentPollsTotal.WithLabelValues("settled").Inc()
	if err := g.MarkPaid(ctx, watch.OrderID, "RUB", watch.OperationRef); err != nil && err != models.ErrAlreadyPaid {
		return true, err
	}
	if err := g.store.DeletePaymentWatch(ctx, watch.OrderID); err != nil {
		g.logger.Warn("failed to drop settled watch", zap.Error(err))
	}
	return true, nil
}

// CheckPayment is the manual "check payment" chat action: one immediate poll
// for the order's pending operation.
func (g *PaymentGateway) CheckPayment(ctx context.Context, orderID string) (string, error) {
	order, err := g.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}

	switch order.Status {
	case models.OrderStatusNew, models.OrderStatusPending:
	default:
		return order.Status, nil
	}

	watch, err := g.store.GetPaymentWatch(ctx, orderID)
	if err != nil {
		return "", err
	}
	if watch == nil {
		return order.Status, nil
	}

	settled, err := g.PollWatch(ctx, watch)
	if err != nil {
		return order.Status, err
	}
	if settled {
		return models.OrderStatusPaid, nil
	}
	return order.Status, nil
}
