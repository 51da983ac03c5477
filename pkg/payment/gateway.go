package payment

import (
	"context"
	"errors"
	"fmt"
)

// InitiateRequest is the payload submitted to the gateway to start a
// mobile-money payment.
type InitiateRequest struct {
	PlanID string `json:"plan_id"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
	Amount int64  `json:"amount"`
}

// InitiateResponse is the gateway's answer to a payment initiation.
type InitiateResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is the gateway's answer to a status query. The gateway's
// response shape is inconsistent: field presence varies between transaction
// modes and between the polling and webhook paths, so every field is
// optional and consumers must tolerate absence.
type StatusResponse struct {
	Success       *bool  `json:"success,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	Status        string `json:"status,omitempty"`
	EndDate       string `json:"endDate,omitempty"`
	Demo          *bool  `json:"demo,omitempty"`
	ZenoPayStatus string `json:"zenopay_status,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Gateway is the payment provider collaborator.
type Gateway interface {
	// Initiate submits a payment request and returns the gateway order id.
	Initiate(ctx context.Context, req InitiateRequest) (string, error)
	// Status queries the completion state of an order.
	Status(ctx context.Context, orderID string) (*StatusResponse, error)
}

// APIError is a non-2xx gateway response. 401 and 404 are terminal for the
// confirmation poller; everything else is treated as transient.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// AsAPIError extracts an APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
