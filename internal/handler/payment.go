package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shuleplus/backend/internal/contextkeys"
	"github.com/shuleplus/backend/internal/domain"
	"github.com/shuleplus/backend/internal/service"
	"github.com/shuleplus/backend/pkg/payment"
)

// PaymentHandler handles payment initiation and confirmation endpoints.
type PaymentHandler struct {
	payments      *service.PaymentService
	poller        *service.Poller
	webhookSecret string
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, poller *service.Poller, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{payments: payments, poller: poller, webhookSecret: webhookSecret}
}

func requestIdentity(r *http.Request) (userID string, segment domain.Segment, ok bool) {
	userID, ok = r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		return "", "", false
	}
	level, _ := r.Context().Value(contextkeys.UserLevel).(string)
	return userID, domain.ParseSegment(level), true
}

// Initiate handles POST /api/payments.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, segment, ok := requestIdentity(r)
	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req service.InitiatePaymentRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if req.Email == "" {
		req.Email, _ = r.Context().Value(contextkeys.UserEmail).(string)
	}

	resp, err := h.payments.Initiate(r.Context(), userID, segment, &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, resp)
}

// Status handles GET /api/payments/{orderId}/status.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	snap, ok := h.poller.Snapshot(orderID)
	if !ok {
		Error(w, domain.ErrNotFound("no confirmation in progress for this order"))
		return
	}
	JSON(w, http.StatusOK, snap)
}

// Resume handles POST /api/payments/{orderId}/resume, the visibility
// resumption trigger: clients call it on tab refocus to force an immediate
// out-of-band check.
func (h *PaymentHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.poller.Resume(chi.URLParam(r, "orderId")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Cancel handles POST /api/payments/{orderId}/cancel.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.poller.Cancel(chi.URLParam(r, "orderId")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Retry handles POST /api/payments/{orderId}/retry.
func (h *PaymentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.poller.Retry(chi.URLParam(r, "orderId")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Webhook handles POST /api/payments/webhook, the gateway's server-to-server
// completion callback.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if h.webhookSecret != "" {
		signature := r.Header.Get("X-Gateway-Signature")
		if !verifySignature(signature, body, h.webhookSecret) {
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload struct {
		OrderID string `json:"order_id"`
		payment.StatusResponse
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), payload.OrderID, &payload.StatusResponse); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"received": true})
}

// Simulate handles POST /api/payments/simulate. Admin only, gated in the router.
func (h *PaymentHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	userID, segment, ok := requestIdentity(r)
	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req struct {
		PlanID string `json:"planId"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	if err := h.payments.Simulate(r.Context(), userID, segment, req.PlanID); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func verifySignature(signature string, payload []byte, secret string) bool {
	parts := strings.Split(signature, "=")
	if len(parts) != 2 || parts[0] != "sha256" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(parts[1]), []byte(expected))
}
