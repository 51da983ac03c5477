package service

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shuleplus/backend/internal/domain"
	"github.com/shuleplus/backend/pkg/crypto"
	"github.com/shuleplus/backend/pkg/payment"
)

// phonePattern is the accepted mobile-money number format: a local mobile
// prefix (06 or 07) followed by exactly eight digits.
var phonePattern = regexp.MustCompile(`^(06|07)\d{8}$`)

// InitiatePaymentRequest is the input for POST /api/payments.
type InitiatePaymentRequest struct {
	PlanID string `json:"planId" validate:"required"`
	Phone  string `json:"phone" validate:"required,tzphone"`
	Email  string `json:"email" validate:"omitempty,email"`
}

// InitiatePaymentResponse returns the gateway order id to poll against.
type InitiatePaymentResponse struct {
	OrderID string `json:"orderId"`
}

// OrderRepository is the persistence surface PaymentService needs for orders.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.PaymentOrder) error
	FindByID(ctx context.Context, orderID string) (*domain.PaymentOrder, error)
	UpdateStatus(ctx context.Context, orderID, status string) error
}

// UserFinder resolves users, needed to recover a segment on the webhook path.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// PaymentService validates and submits payment requests to the gateway and
// hands confirmed orders to the poller.
type PaymentService struct {
	gateway  payment.Gateway
	orders   OrderRepository
	users    UserFinder
	subs     *SubscriptionService
	poller   *Poller
	enc      *crypto.Encryptor
	validate *validator.Validate
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(gateway payment.Gateway, orders OrderRepository, users UserFinder, subs *SubscriptionService, poller *Poller, enc *crypto.Encryptor) *PaymentService {
	v := validator.New()
	// Registration only fails for empty tag names.
	_ = v.RegisterValidation("tzphone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &PaymentService{
		gateway:  gateway,
		orders:   orders,
		users:    users,
		subs:     subs,
		poller:   poller,
		enc:      enc,
		validate: v,
	}
}

// Initiate validates the request, submits it to the gateway and starts a
// confirmation poll session. Validation failures block before any network
// call is made.
func (s *PaymentService) Initiate(ctx context.Context, userID string, segment domain.Segment, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			if fe.Tag() == "tzphone" {
				return nil, domain.ErrValidation("phone must be a 10-digit number starting with 06 or 07")
			}
		}
		return nil, domain.ErrValidation("invalid payment request")
	}

	plan, ok := domain.FindPlan(req.PlanID)
	if !ok {
		return nil, domain.ErrBadRequest("unknown plan: " + req.PlanID)
	}

	orderID, err := s.gateway.Initiate(ctx, payment.InitiateRequest{
		PlanID: plan.ID,
		Phone:  req.Phone,
		Email:  req.Email,
		Amount: plan.DiscountedPrice,
	})
	if err != nil {
		if apiErr, hasCode := payment.AsAPIError(err); hasCode {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized:
				return nil, domain.ErrUnauthorized("payment authorization failed, please sign in again")
			case http.StatusNotFound:
				return nil, domain.ErrNotFound("payment service unavailable")
			}
		}
		return nil, domain.ErrGateway("failed to reach payment service, please retry", err)
	}

	encryptedPhone, err := s.enc.EncryptString(req.Phone)
	if err != nil {
		return nil, domain.ErrInternal("failed to protect phone number", err)
	}
	order := &domain.PaymentOrder{
		OrderID:         orderID,
		UserID:          userID,
		PlanID:          plan.ID,
		Phone:           encryptedPhone,
		Email:           req.Email,
		LastKnownStatus: domain.SubscriptionPending,
		CreatedAt:       time.Now(),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		// The gateway accepted the order; keep polling even if the local
		// record failed, and let the webhook path backfill later.
		log.Printf("[Payment] Failed to persist order %s: %v", orderID, err)
	}

	// The request context dies when the handler returns; the session must
	// keep polling long after that, so the poller runs it on its own context.
	s.poller.Start(orderID, userID, plan.ID, segment)
	return &InitiatePaymentResponse{OrderID: orderID}, nil
}

// HandleWebhook applies a gateway callback for an order. The payload flows
// through the same success predicates and staleness rules as polled
// responses. When no live session exists (e.g. after a restart), the order
// record recovers the user and segment.
func (s *PaymentService) HandleWebhook(ctx context.Context, orderID string, res *payment.StatusResponse) error {
	if orderID == "" {
		return domain.ErrBadRequest("missing order id")
	}

	if s.poller.Deliver(ctx, orderID, res) {
		return nil
	}

	if _, ok := matchSuccess(res); !ok {
		return nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.ErrInternal("failed to load order", err)
	}
	if order == nil {
		return domain.ErrNotFound("unknown order")
	}
	if order.LastKnownStatus == domain.PaymentPaid {
		return nil // already applied
	}

	segment := domain.SegmentPrimary
	if user, err := s.users.FindByID(ctx, order.UserID); err == nil && user != nil {
		segment = user.Level
	}

	s.subs.ApplyConfirmation(ctx, orderID, order.UserID, order.PlanID, segment, res)
	return nil
}

// Simulate instantly confirms a subscription for a user, bypassing the
// gateway. Admin-gated in the router.
func (s *PaymentService) Simulate(ctx context.Context, userID string, segment domain.Segment, planID string) error {
	if _, ok := domain.FindPlan(planID); !ok {
		return domain.ErrBadRequest("unknown plan: " + planID)
	}
	s.subs.ApplyConfirmation(ctx, "simulated-"+userID, userID, planID, segment, nil)
	return nil
}
