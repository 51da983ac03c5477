package domain

import "time"

// Subscription statuses.
const (
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
	SubscriptionPending = "pending"
	SubscriptionNone    = "none"
)

// Payment statuses.
const (
	PaymentPaid   = "paid"
	PaymentUnpaid = "unpaid"
)

// SubscriptionRecord is the current subscription for a user. Exactly one
// record is current per user. Invariant: status == active implies
// paymentStatus == paid and endDate is after today.
type SubscriptionRecord struct {
	PlanID        string    `json:"planId"`
	Plan          *Plan     `json:"plan,omitempty"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
}

// PaymentOrder is a single payment attempt. Created once per initiation and
// never mutated except for the cached status.
type PaymentOrder struct {
	OrderID         string    `json:"orderId"`
	PlanID          string    `json:"planId"`
	UserID          string    `json:"userId"`
	Phone           string    `json:"-"` // encrypted at rest
	Email           string    `json:"email"`
	LastKnownStatus string    `json:"lastKnownStatus"`
	CreatedAt       time.Time `json:"createdAt"`
}
