package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shuleplus/backend/internal/domain"
)

// OrderRepository persists payment orders. The phone column holds
// AES-GCM-encrypted ciphertext; callers encrypt before Create and decrypt
// after reads.
type OrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a payment order.
func (r *OrderRepository) Create(ctx context.Context, o *domain.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders (order_id, user_id, plan_id, phone, email, last_known_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		o.OrderID, o.UserID, o.PlanID, o.Phone, o.Email, o.LastKnownStatus, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment order: %w", err)
	}
	return nil
}

// FindByID returns a payment order, or nil when unknown.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (*domain.PaymentOrder, error) {
	query := `
		SELECT order_id, user_id, plan_id, phone, COALESCE(email, ''), last_known_status, created_at
		FROM payment_orders WHERE order_id = $1
	`
	row := r.db.QueryRow(ctx, query, orderID)

	var o domain.PaymentOrder
	err := row.Scan(&o.OrderID, &o.UserID, &o.PlanID, &o.Phone, &o.Email, &o.LastKnownStatus, &o.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment order: %w", err)
	}
	return &o, nil
}

// UpdateStatus caches the last known gateway status on the order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID, status string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE payment_orders SET last_known_status = $1 WHERE order_id = $2`, status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// CountByStatus returns how many orders currently carry the given status.
func (r *OrderRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_orders WHERE last_known_status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}
