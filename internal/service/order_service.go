package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"starshop/internal/models"
	"starshop/internal/notify"
	"starshop/internal/payment"
	"starshop/internal/pricing"
	"starshop/internal/util"
)

// OrderService owns order placement and read access.
type OrderService struct {
	store    Store
	gateway  *PaymentGateway
	calc     *pricing.Calculator
	notifier notify.Notifier
	events   EventSink
	minQty   int64
	maxQty   int64
	logger   *zap.Logger
}

// NewOrderService creates the order service.
func NewOrderService(store Store, gateway *PaymentGateway, calc *pricing.Calculator, notifier notify.Notifier, events EventSink, minQty, maxQty int64) *OrderService {
	return &OrderService{
		store:    store,
		gateway:  gateway,
		calc:     calc,
		notifier: notifier,
		events:   events,
		minQty:   minQty,
		maxQty:   maxQty,
		logger:   util.GetLogger(),
	}
}

// PlaceOrderRequest is a purchase request from the chat adapter.
type PlaceOrderRequest struct {
	BuyerID       int64  `json:"buyer_id"`
	BuyerHandle   string `json:"buyer_handle"`
	Quantity      int64  `json:"quantity"`
	GiftRecipient string `json:"gift_recipient,omitempty"`
}

// PlaceOrderResult carries the created order plus the invoice, when one
// could be created. Invoice is nil when the payment channel degraded.
type PlaceOrderResult struct {
	Order   *models.Order    `json:"order"`
	Invoice *payment.Invoice `json:"invoice,omitempty"`
}

// PlaceOrder validates the request, prices it, persists the order and
// attaches an invoice. Invoice failure does not fail the order: other
// checkout channels stay available.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if req.Quantity < s.minQty || req.Quantity > s.maxQty {
		return nil, models.ErrInvalidQuantity
	}

	order := &models.Order{
		ID:             uuid.New().String(),
		BuyerID:        req.BuyerID,
		BuyerHandle:    strings.TrimSpace(req.BuyerHandle),
		GiftRecipient:  strings.TrimSpace(req.GiftRecipient),
		Quantity:       req.Quantity,
		PriceRubKop:    s.calc.RubKopecks(req.Quantity),
		PriceUsdtMicro: s.calc.UsdtMicro(req.Quantity),
		Status:         models.OrderStatusNew,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("quantity", order.Quantity))

	invoice, err := s.gateway.AttachInvoice(ctx, order)
	if err != nil {
		// Order stays placed; the chat adapter renders it without the
		// QR payment button.
		s.logger.Warn("order placed without invoice",
			zap.String("order_id", order.ID),
			zap.Error(err))
		invoice = nil
	}

	if err := s.events.PublishOrderCreated(ctx, order); err != nil {
		s.logger.Warn("failed to publish OrderCreated event", zap.Error(err))
	}

	threadRef, _ := s.notifier.NotifyAdmin(ctx, "", fmt.Sprintf(
		"New order %s: %d stars for %s (%.2f RUB)",
		order.ID, order.Quantity, order.Recipient(), float64(order.PriceRubKop)/100))
	if threadRef != "" {
		if err := s.store.SetAdminThreadRef(ctx, order.ID, threadRef); err != nil {
			s.logger.Warn("failed to store admin thread ref", zap.Error(err))
		} else {
			order.AdminThreadRef = threadRef
		}
	}

	return &PlaceOrderResult{Order: order, Invoice: invoice}, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// ListRecent retrieves the newest orders, for the admin command.
func (s *OrderService) ListRecent(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListRecentOrders(ctx, limit)
}
