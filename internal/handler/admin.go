package handler

import (
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shuleplus/backend/internal/service"
)

type AdminHandler struct {
	db      *pgxpool.Pool
	authSvc *service.AuthService
}

func NewAdminHandler(db *pgxpool.Pool, authSvc *service.AuthService) *AdminHandler {
	return &AdminHandler{db: db, authSvc: authSvc}
}

// GetStats returns platform-wide counts.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var usersCount, activeSubs, pendingOrders, paidOrders int

	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM users").Scan(&usersCount); err != nil {
		log.Printf("Failed to count users: %v", err)
	}
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM subscriptions WHERE status = 'active'").Scan(&activeSubs); err != nil {
		log.Printf("Failed to count subscriptions: %v", err)
	}
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM payment_orders WHERE last_known_status = 'pending'").Scan(&pendingOrders); err != nil {
		log.Printf("Failed to count pending orders: %v", err)
	}
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM payment_orders WHERE last_known_status = 'paid'").Scan(&paidOrders); err != nil {
		log.Printf("Failed to count paid orders: %v", err)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"users":               usersCount,
		"activeSubscriptions": activeSubs,
		"pendingOrders":       pendingOrders,
		"paidOrders":          paidOrders,
	})
}

// ListUsers returns all users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authSvc.ListUsers(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, users)
}
