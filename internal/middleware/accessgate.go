package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/shuleplus/backend/internal/contextkeys"
	"github.com/shuleplus/backend/internal/domain"
	"github.com/shuleplus/backend/internal/handler"
)

// RecordSource supplies the current subscription record for a user.
// Implemented by service.SubscriptionService.
type RecordSource interface {
	Current(ctx context.Context, userID string, segment domain.Segment) (*domain.SubscriptionRecord, error)
}

// AccessGate blocks subscription-gated routes for users whose subscription
// is expired, answering 402 with a redirect target instead of the resource.
// Must be used AFTER Auth.
func AccessGate(records RecordSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := r.Context().Value(contextkeys.UserID).(string)
			role, _ := r.Context().Value(contextkeys.UserRole).(string)
			level, _ := r.Context().Value(contextkeys.UserLevel).(string)

			var rec *domain.SubscriptionRecord
			if userID != "" {
				// A load failure is treated as no record: the gate redirects
				// to the subscription page rather than erroring the route.
				rec, _ = records.Current(r.Context(), userID, domain.ParseSegment(level))
			}

			decision := domain.DecideAccess(r.URL.Path, rec, role == "admin", time.Now())
			if !decision.Allow {
				handler.JSON(w, http.StatusPaymentRequired, map[string]string{
					"error":    "active subscription required",
					"redirect": decision.Redirect,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
