package service

import (
	"context"
	"log"
	"time"

	"github.com/shuleplus/backend/internal/cache"
	"github.com/shuleplus/backend/internal/domain"
	"github.com/shuleplus/backend/pkg/payment"
)

// RecordRepository is the persistence surface SubscriptionService needs.
type RecordRepository interface {
	Upsert(ctx context.Context, userID, orderID string, rec *domain.SubscriptionRecord) error
	FindByUserID(ctx context.Context, userID string) (*domain.SubscriptionRecord, error)
}

// OrderStatusWriter caches the last known gateway status on an order.
type OrderStatusWriter interface {
	UpdateStatus(ctx context.Context, orderID, status string) error
}

// SubscriptionService owns reading and writing the current subscription
// record across its three layers: state store, segment cache, database.
type SubscriptionService struct {
	repo   RecordRepository
	orders OrderStatusWriter
	cache  cache.Cache
	store  *StateStore
	now    func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(repo RecordRepository, orders OrderStatusWriter, c cache.Cache, store *StateStore) *SubscriptionService {
	return &SubscriptionService{
		repo:   repo,
		orders: orders,
		cache:  c,
		store:  store,
		now:    time.Now,
	}
}

// Current returns the user's subscription record, bootstrapping the state
// store from the segment cache or a fresh database read. Returns nil when
// the user has never subscribed.
func (s *SubscriptionService) Current(ctx context.Context, userID string, segment domain.Segment) (*domain.SubscriptionRecord, error) {
	if rec := s.store.Get(userID); rec != nil {
		return rec, nil
	}

	if rec, ok := s.cache.Get(ctx, userID, segment); ok {
		s.store.Set(userID, rec)
		return rec, nil
	}

	rec, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	if rec == nil {
		return nil, nil
	}

	s.store.Set(userID, rec)
	if err := s.cache.Put(ctx, userID, segment, rec); err != nil {
		log.Printf("[Subscription] Cache write failed for %s: %v", userID, err)
	}
	return rec, nil
}

// ApplyConfirmation records a confirmed payment: it builds the new
// subscription record and writes it to the database, the state store and the
// segment cache. The poller calls this exactly once per confirmed order,
// after its staleness checks, so the write is idempotent at the order level.
// Store and cache writes cannot fail; database failures are logged and the
// in-memory state still advances, since the gateway has already taken the
// money.
func (s *SubscriptionService) ApplyConfirmation(ctx context.Context, orderID, userID, planID string, segment domain.Segment, res *payment.StatusResponse) *domain.SubscriptionRecord {
	now := s.now()

	start := now
	end := start
	plan, planKnown := domain.FindPlan(planID)
	if planKnown {
		end = start.AddDate(0, plan.DurationMonths, 0)
	}
	if res != nil && res.EndDate != "" {
		if parsed, ok := parseGatewayDate(res.EndDate); ok {
			end = parsed
		}
	}

	rec := &domain.SubscriptionRecord{
		PlanID:        planID,
		StartDate:     start,
		EndDate:       end,
		Status:        domain.SubscriptionActive,
		PaymentStatus: domain.PaymentPaid,
	}
	if planKnown {
		rec.Plan = &plan
	}

	if err := s.repo.Upsert(ctx, userID, orderID, rec); err != nil {
		log.Printf("[Subscription] Failed to persist confirmation for order %s: %v", orderID, err)
	}
	if s.orders != nil {
		if err := s.orders.UpdateStatus(ctx, orderID, domain.PaymentPaid); err != nil {
			log.Printf("[Subscription] Failed to mark order %s paid: %v", orderID, err)
		}
	}

	s.store.Set(userID, rec)
	if err := s.cache.Put(ctx, userID, segment, rec); err != nil {
		log.Printf("[Subscription] Cache write failed for %s: %v", userID, err)
	}
	return rec
}

// Logout clears the user's in-memory record.
func (s *SubscriptionService) Logout(userID string) {
	s.store.Clear(userID)
}

// parseGatewayDate tolerates the date formats the gateway is known to emit.
func parseGatewayDate(v string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
