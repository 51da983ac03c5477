package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shuleplus/backend/internal/domain"
)

// SubscriptionRepository persists the current subscription record per user.
// The table is keyed by user id: a new confirmed payment replaces the row.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Upsert replaces the user's current subscription record.
func (r *SubscriptionRepository) Upsert(ctx context.Context, userID, orderID string, rec *domain.SubscriptionRecord) error {
	query := `
		INSERT INTO subscriptions (user_id, plan_id, order_id, status, payment_status, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET plan_id = EXCLUDED.plan_id,
		    order_id = EXCLUDED.order_id,
		    status = EXCLUDED.status,
		    payment_status = EXCLUDED.payment_status,
		    start_date = EXCLUDED.start_date,
		    end_date = EXCLUDED.end_date,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		userID, rec.PlanID, orderID, rec.Status, rec.PaymentStatus, rec.StartDate, rec.EndDate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// FindByUserID returns the user's current subscription record, or nil when
// the user has none.
func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	query := `
		SELECT plan_id, status, payment_status, COALESCE(start_date, 'epoch'), COALESCE(end_date, 'epoch')
		FROM subscriptions WHERE user_id = $1
	`
	row := r.db.QueryRow(ctx, query, userID)

	var rec domain.SubscriptionRecord
	err := row.Scan(&rec.PlanID, &rec.Status, &rec.PaymentStatus, &rec.StartDate, &rec.EndDate)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	if rec.EndDate.Unix() == 0 {
		rec.EndDate = time.Time{}
	}
	if rec.StartDate.Unix() == 0 {
		rec.StartDate = time.Time{}
	}
	if plan, ok := domain.FindPlan(rec.PlanID); ok {
		rec.Plan = &plan
	}
	return &rec, nil
}

// ExpireOverdue flips active subscriptions whose end date has passed to
// expired. Returns the number of rows changed. Day comparison happens in
// UTC, matching the in-memory expiry evaluation; a bare ::date cast would
// use the database server's timezone and the two could disagree near
// midnight.
func (r *SubscriptionRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND end_date IS NOT NULL
		  AND (end_date AT TIME ZONE 'UTC')::date < ($1 AT TIME ZONE 'UTC')::date
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}
