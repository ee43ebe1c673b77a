package store

import (
	"context"
	"database/sql"
	"fmt"

	"starshop/internal/models"
)

// CreateOrder persists a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, buyer_id, buyer_handle, gift_recipient, quantity,
			price_rub_kop, price_usdt_micro, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		order.ID, order.BuyerID, order.BuyerHandle, order.GiftRecipient,
		order.Quantity, order.PriceRubKop, order.PriceUsdtMicro, order.Status)
	return row.Scan(&order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByPaymentRef retrieves the order correlated to a provider invoice
// reference, as carried in webhook payloads.
func (s *Store) GetOrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE payment_reference = $1 OR id::text = $1 LIMIT 1", ref)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListRecentOrders retrieves the newest orders first
func (s *Store) ListRecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC LIMIT $1", limit)
	return orders, err
}

// SetInvoice records the provider invoice on a NEW order and moves it to
// PENDING. Refuses to touch orders that have progressed past NEW.
func (s *Store) SetInvoice(ctx context.Context, orderID, provider, reference string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_provider = $2, payment_reference = $3, status = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5`,
		orderID, provider, reference, models.OrderStatusPending, models.OrderStatusNew)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, res, orderID)
}

// MarkOrderPaid applies the paid transition exactly once. Orders already at
// PAID or beyond yield ErrAlreadyPaid with no mutation.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID, currency, providerTx string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, paid_currency = $3, provider_tx = $4, updated_at = NOW()
		WHERE id = $1 AND status IN ($5, $6)`,
		orderID, models.OrderStatusPaid, currency, providerTx,
		models.OrderStatusNew, models.OrderStatusPending)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if exists, err := s.orderExists(ctx, orderID); err != nil {
			return err
		} else if !exists {
			return models.ErrOrderNotFound
		}
		return models.ErrAlreadyPaid
	}
	return nil
}

// BeginDeliveryAttempt moves an order into DELIVERING and bumps its retry
// counter, returning the counter value for this attempt. Only PAID or
// DELIVERING orders are eligible, so a finished order can never be re-run.
func (s *Store) BeginDeliveryAttempt(ctx context.Context, orderID string) (int, error) {
	var retryCount int
	err := s.db.GetContext(ctx, &retryCount, `
		UPDATE orders
		SET status = $2, retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
		RETURNING retry_count`,
		orderID, models.OrderStatusDelivering,
		models.OrderStatusPaid, models.OrderStatusDelivering)
	if err == sql.ErrNoRows {
		if exists, eerr := s.orderExists(ctx, orderID); eerr != nil {
			return 0, eerr
		} else if !exists {
			return 0, models.ErrOrderNotFound
		}
		return 0, models.ErrStatusConflict
	}
	if err != nil {
		return 0, err
	}
	return retryCount, nil
}

// CompleteDelivery finishes a DELIVERING order and records the delivery
// transaction reference.
func (s *Store) CompleteDelivery(ctx context.Context, orderID, deliveryTx string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, delivery_tx = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		orderID, models.OrderStatusDelivered, deliveryTx, models.OrderStatusDelivering)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, res, orderID)
}

// FailDelivery moves a DELIVERING order to the terminal FAILED status.
func (s *Store) FailDelivery(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		orderID, models.OrderStatusFailed, models.OrderStatusDelivering)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, res, orderID)
}

// SetAdminThreadRef stores the admin notification thread reference so later
// updates for the same order land in the same thread.
func (s *Store) SetAdminThreadRef(ctx context.Context, orderID, threadRef string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET admin_thread_ref = $2 WHERE id = $1", orderID, threadRef)
	return err
}

func (s *Store) checkTransition(ctx context.Context, res sql.Result, orderID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if exists, err := s.orderExists(ctx, orderID); err != nil {
			return err
		} else if !exists {
			return models.ErrOrderNotFound
		}
		return models.ErrStatusConflict
	}
	return nil
}

func (s *Store) orderExists(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", orderID)
	if err != nil {
		return false, fmt.Errorf("failed to check order existence: %w", err)
	}
	return exists, nil
}
