package store

import (
	"context"
	"database/sql"
	"time"

	"starshop/internal/models"
)

// UpsertPaymentWatch registers or re-arms a payment status watch for an
// order. Re-arming keeps the accumulated try counter.
func (s *Store) UpsertPaymentWatch(ctx context.Context, orderID, operationRef string, nextCheckAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_watches (order_id, operation_ref, tries, next_check_at, updated_at)
		VALUES ($1, $2, 0, $3, NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET operation_ref = EXCLUDED.operation_ref,
		    next_check_at = EXCLUDED.next_check_at,
		    updated_at = NOW()`,
		orderID, operationRef, nextCheckAt)
	return err
}

// DuePaymentWatches returns up to limit watches whose next check time has
// elapsed, oldest-due first.
func (s *Store) DuePaymentWatches(ctx context.Context, limit int) ([]models.PaymentWatch, error) {
	var watches []models.PaymentWatch
	err := s.db.SelectContext(ctx, &watches, `
		SELECT * FROM payment_watches
		WHERE next_check_at <= NOW()
		ORDER BY next_check_at ASC
		LIMIT $1`, limit)
	return watches, err
}

// ReschedulePaymentWatch stores the updated try counter and the next check
// time after an unsuccessful poll.
func (s *Store) ReschedulePaymentWatch(ctx context.Context, orderID string, tries int, nextCheckAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payment_watches
		SET tries = $2, next_check_at = $3, updated_at = NOW()
		WHERE order_id = $1`, orderID, tries, nextCheckAt)
	return err
}

// DeletePaymentWatch drops a watch once payment is confirmed or the attempt
// budget is exhausted.
func (s *Store) DeletePaymentWatch(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM payment_watches WHERE order_id = $1", orderID)
	return err
}

// GetPaymentWatch returns the watch for an order, or nil when none is armed.
func (s *Store) GetPaymentWatch(ctx context.Context, orderID string) (*models.PaymentWatch, error) {
	var watch models.PaymentWatch
	err := s.db.GetContext(ctx, &watch,
		"SELECT * FROM payment_watches WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &watch, nil
}
