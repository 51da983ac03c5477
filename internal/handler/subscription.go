package handler

import (
	"net/http"

	"github.com/shuleplus/backend/internal/contextkeys"
	"github.com/shuleplus/backend/internal/domain"
	"github.com/shuleplus/backend/internal/service"
)

// SubscriptionHandler exposes the current subscription record.
type SubscriptionHandler struct {
	subs *service.SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subs *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// Get handles GET /api/subscription.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	level, _ := r.Context().Value(contextkeys.UserLevel).(string)

	rec, err := h.subs.Current(r.Context(), userID, domain.ParseSegment(level))
	if err != nil {
		Error(w, err)
		return
	}
	if rec == nil {
		JSON(w, http.StatusOK, map[string]string{
			"status":        domain.SubscriptionNone,
			"paymentStatus": domain.PaymentUnpaid,
		})
		return
	}
	JSON(w, http.StatusOK, rec)
}
