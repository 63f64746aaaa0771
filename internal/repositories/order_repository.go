package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"realtime-service/internal/models"
)

var ErrOrderNotFound = errors.New("order not found")

const orderColumns = `id, user_id, status, payment_status, total_amount, notes, created_at, updated_at`

// OrderRepository defines interactions for orders and their status history.
type OrderRepository interface {
	ListForUser(ctx context.Context, userID int) ([]models.OrderSnapshot, error)
	GetOrder(ctx context.Context, orderID int) (models.OrderSnapshot, error)
	History(ctx context.Context, orderID int) ([]models.OrderStatusEvent, error)
	UpdateStatus(ctx context.Context, orderID int, update models.OrderStatusEvent) (models.OrderSnapshot, error)
}

// OrderRepo is a sqlx-backed repository.
type OrderRepo struct {
	db *sqlx.DB
}

// NewOrderRepo constructs OrderRepo.
func NewOrderRepo(db *sqlx.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// ListForUser returns the orders of userID, newest first.
func (r *OrderRepo) ListForUser(ctx context.Context, userID int) ([]models.OrderSnapshot, error) {
	orders := []models.OrderSnapshot{}
	err := r.db.SelectContext(ctx, &orders,
		`SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
	return orders, err
}

// GetOrder retrieves a single order.
func (r *OrderRepo) GetOrder(ctx context.Context, orderID int) (models.OrderSnapshot, error) {
	var order models.OrderSnapshot
	err := r.db.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID)
	if isNoRows(err) {
		return models.OrderSnapshot{}, ErrOrderNotFound
	}
	return order, err
}

// History returns the status transitions of an order, oldest first.
func (r *OrderRepo) History(ctx context.Context, orderID int) ([]models.OrderStatusEvent, error) {
	events := []models.OrderStatusEvent{}
	err := r.db.SelectContext(ctx, &events,
		`SELECT order_id, status, payment_status, notes, created_at
        FROM order_status_history WHERE order_id=$1 ORDER BY created_at ASC, id ASC`, orderID)
	return events, err
}

// UpdateStatus applies a status transition and appends it to the history in
// one transaction. The returned snapshot carries the new updated_at.
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID int, update models.OrderStatusEvent) (models.OrderSnapshot, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.OrderSnapshot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var order models.OrderSnapshot
	err = tx.QueryRowxContext(ctx,
		`UPDATE orders SET
            status = $2,
            payment_status = COALESCE($3, payment_status),
            notes = COALESCE($4, notes),
            updated_at = NOW()
        WHERE id=$1 RETURNING `+orderColumns,
		orderID, update.Status, update.PaymentStatus, update.Notes).StructScan(&order)
	if isNoRows(err) {
		return models.OrderSnapshot{}, ErrOrderNotFound
	}
	if err != nil {
		return models.OrderSnapshot{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, status, payment_status, notes, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		orderID, order.Status, update.PaymentStatus, update.Notes, order.UpdatedAt); err != nil {
		return models.OrderSnapshot{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.OrderSnapshot{}, err
	}
	return order, nil
}
