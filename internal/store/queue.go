package store

import (
	"context"
	"database/sql"

	"starshop/internal/models"
)

// EnqueueDelivery adds an order to the fulfillment queue. Enqueuing the same
// order twice is a no-op, which keeps the paid transition idempotent.
func (s *Store) EnqueueDelivery(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_tasks (order_id, try_count, last_error, updated_at)
		VALUES ($1, 0, '', NOW())
		ON CONFLICT (order_id) DO NOTHING`, orderID)
	return err
}

// NextDeliveryTask returns the oldest task whose order is PAID or
// DELIVERING. Orders over the retry bound are still returned so the worker
// can close them out instead of leaving them in DELIVERING forever after a
// crash mid-attempt. Returns nil when the queue is empty.
func (s *Store) NextDeliveryTask(ctx context.Context) (*models.DeliveryTask, error) {
	var task models.DeliveryTask
	err := s.db.GetContext(ctx, &task, `
		SELECT t.order_id, t.try_count, t.last_error, t.updated_at
		FROM delivery_tasks t
		JOIN orders o ON o.id = t.order_id
		WHERE o.status = $1 OR o.status = $2
		ORDER BY t.updated_at ASC
		LIMIT 1`,
		models.OrderStatusPaid, models.OrderStatusDelivering)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// TouchDeliveryTask records a failed attempt on a queued task. Refreshing
// updated_at pushes the task behind newer work, approximating FIFO with
// retry-induced reordering.
func (s *Store) TouchDeliveryTask(ctx context.Context, orderID, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_tasks
		SET try_count = try_count + 1, last_error = $2, updated_at = NOW()
		WHERE order_id = $1`, orderID, lastError)
	return err
}

// DeleteDeliveryTask removes a task on terminal success or terminal failure.
func (s *Store) DeleteDeliveryTask(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM delivery_tasks WHERE order_id = $1", orderID)
	return err
}
