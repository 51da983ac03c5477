package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuleplus/backend/internal/cache"
	"github.com/shuleplus/backend/internal/domain"
	"github.com/shuleplus/backend/pkg/crypto"
	"github.com/shuleplus/backend/pkg/payment"
)

// scriptedGateway counts Initiate calls and answers Status with a fixed
// pending response, so poll sessions started by Initiate stay quiet.
type scriptedGateway struct {
	mu            sync.Mutex
	initiateCalls int
	initiateErr   error
}

func (g *scriptedGateway) Initiate(ctx context.Context, req payment.InitiateRequest) (string, error) {
	g.mu.Lock()
	g.initiateCalls++
	g.mu.Unlock()
	if g.initiateErr != nil {
		return "", g.initiateErr
	}
	return "order-1", nil
}

func (g *scriptedGateway) Status(ctx context.Context, orderID string) (*payment.StatusResponse, error) {
	return &payment.StatusResponse{Status: "pending"}, nil
}

func (g *scriptedGateway) initiated() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initiateCalls
}

// fakeOrderRepo is an in-memory OrderRepository.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.PaymentOrder
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.PaymentOrder)}
}

func (f *fakeOrderRepo) Create(ctx context.Context, o *domain.PaymentOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.OrderID] = o
	return nil
}

func (f *fakeOrderRepo) FindByID(ctx context.Context, orderID string) (*domain.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[orderID], nil
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, orderID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		o.LastKnownStatus = status
	}
	return nil
}

// fakeUserFinder resolves users by id.
type fakeUserFinder struct {
	users map[string]*domain.User
}

func (f *fakeUserFinder) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return f.users[id], nil
}

type paymentFixture struct {
	svc    *PaymentService
	gw     *scriptedGateway
	orders *fakeOrderRepo
	subs   *SubscriptionService
	repo   *fakeRecordRepo
	poller *Poller
	store  *StateStore
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	gw := &scriptedGateway{}
	orders := newFakeOrderRepo()
	repo := newFakeRecordRepo()
	store := NewStateStore()
	subs := NewSubscriptionService(repo, orders, cache.NewMemory(), store)
	poller := NewPoller(context.Background(), gw, subs, PollConfig{MaxAttempts: 1000, Interval: time.Minute, InitialDelay: time.Minute})
	enc, err := crypto.NewEncryptor("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	users := &fakeUserFinder{users: map[string]*domain.User{
		"u1": {ID: "u1", Email: "u1@example.com", Level: domain.SegmentSecondary},
	}}
	return &paymentFixture{
		svc:    NewPaymentService(gw, orders, users, subs, poller, enc),
		gw:     gw,
		orders: orders,
		subs:   subs,
		repo:   repo,
		poller: poller,
		store:  store,
	}
}

func TestPaymentService_RejectsInvalidPhones(t *testing.T) {
	fx := newPaymentFixture(t)

	for _, phone := range []string{
		"",
		"0812345678",   // bad prefix
		"061234567",    // too short
		"06123456789",  // too long
		"+25561234567", // international format not accepted
		"07abcdefgh",   // non-digits
	} {
		_, err := fx.svc.Initiate(context.Background(), "u1", domain.SegmentPrimary, &InitiatePaymentRequest{
			PlanID: "monthly",
			Phone:  phone,
		})
		require.Error(t, err, "phone %q must be rejected", phone)
		appErr, ok := domain.AsAppError(err)
		require.True(t, ok)
		require.Equal(t, http.StatusUnprocessableEntity, appErr.Code)
	}
	require.Zero(t, fx.gw.initiated(), "validation failures must never reach the gateway")
}

func TestPaymentService_RejectsUnknownPlan(t *testing.T) {
	fx := newPaymentFixture(t)
	_, err := fx.svc.Initiate(context.Background(), "u1", domain.SegmentPrimary, &InitiatePaymentRequest{
		PlanID: "lifetime",
		Phone:  "0712345678",
	})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, appErr.Code)
	require.Zero(t, fx.gw.initiated())
}

func TestPaymentService_InitiateStartsPollSession(t *testing.T) {
	fx := newPaymentFixture(t)

	res, err := fx.svc.Initiate(context.Background(), "u1", domain.SegmentSecondary, &InitiatePaymentRequest{
		PlanID: "monthly",
		Phone:  "0712345678",
		Email:  "u1@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "order-1", res.OrderID)
	require.Equal(t, 1, fx.gw.initiated())

	order, err := fx.orders.FindByID(context.Background(), "order-1")
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, "u1", order.UserID)
	require.Equal(t, domain.SubscriptionPending, order.LastKnownStatus)
	require.NotEqual(t, "0712345678", order.Phone, "phone must be stored encrypted")

	snap, ok := fx.poller.Snapshot("order-1")
	require.True(t, ok)
	require.Equal(t, PollAwaiting, snap.State)
}

func TestPaymentService_InitiateMapsGatewayErrors(t *testing.T) {
	cases := []struct {
		gatewayErr error
		wantCode   int
	}{
		{&payment.APIError{StatusCode: http.StatusUnauthorized, Message: "bad key"}, http.StatusUnauthorized},
		{&payment.APIError{StatusCode: http.StatusNotFound, Message: "gone"}, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusBadGateway},
	}
	for _, tc := range cases {
		fx := newPaymentFixture(t)
		fx.gw.initiateErr = tc.gatewayErr

		_, err := fx.svc.Initiate(context.Background(), "u1", domain.SegmentPrimary, &InitiatePaymentRequest{
			PlanID: "monthly",
			Phone:  "0712345678",
		})
		appErr, ok := domain.AsAppError(err)
		require.True(t, ok)
		require.Equal(t, tc.wantCode, appErr.Code)

		_, running := fx.poller.Snapshot("order-1")
		require.False(t, running, "no poll session may start on a failed initiation")
	}
}

func TestPaymentService_WebhookWithoutSessionRecoversFromOrder(t *testing.T) {
	fx := newPaymentFixture(t)

	// An order persisted before a restart: no live poll session exists.
	require.NoError(t, fx.orders.Create(context.Background(), &domain.PaymentOrder{
		OrderID:         "order-9",
		UserID:          "u1",
		PlanID:          "yearly",
		LastKnownStatus: domain.SubscriptionPending,
	}))

	err := fx.svc.HandleWebhook(context.Background(), "order-9", &payment.StatusResponse{ZenoPayStatus: "COMPLETED"})
	require.NoError(t, err)

	rec := fx.store.Get("u1")
	require.NotNil(t, rec)
	require.Equal(t, "yearly", rec.PlanID)
	require.Equal(t, domain.SubscriptionActive, rec.Status)

	order, _ := fx.orders.FindByID(context.Background(), "order-9")
	require.Equal(t, domain.PaymentPaid, order.LastKnownStatus)

	// Segment recovered from the user's level: the cache holds secondary.
	_, ok := fx.subs.cache.Get(context.Background(), "u1", domain.SegmentSecondary)
	require.True(t, ok)
}

func TestPaymentService_WebhookIgnoresNonSuccessPayloads(t *testing.T) {
	fx := newPaymentFixture(t)
	require.NoError(t, fx.orders.Create(context.Background(), &domain.PaymentOrder{
		OrderID:         "order-9",
		UserID:          "u1",
		PlanID:          "yearly",
		LastKnownStatus: domain.SubscriptionPending,
	}))

	err := fx.svc.HandleWebhook(context.Background(), "order-9", &payment.StatusResponse{Status: "pending"})
	require.NoError(t, err)
	require.Nil(t, fx.store.Get("u1"))
}

func TestPaymentService_WebhookAlreadyPaidIsIdempotent(t *testing.T) {
	fx := newPaymentFixture(t)
	require.NoError(t, fx.orders.Create(context.Background(), &domain.PaymentOrder{
		OrderID:         "order-9",
		UserID:          "u1",
		PlanID:          "yearly",
		LastKnownStatus: domain.PaymentPaid,
	}))

	err := fx.svc.HandleWebhook(context.Background(), "order-9", &payment.StatusResponse{ZenoPayStatus: "COMPLETED"})
	require.NoError(t, err)
	require.Zero(t, fx.repo.upserts, "an already-paid order must not be re-applied")
}

func TestPaymentService_WebhookUnknownOrder(t *testing.T) {
	fx := newPaymentFixture(t)
	err := fx.svc.HandleWebhook(context.Background(), "ghost", &payment.StatusResponse{ZenoPayStatus: "COMPLETED"})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, appErr.Code)
}

func TestPaymentService_PollingOutlivesInitiateRequest(t *testing.T) {
	gw := &fakeGateway{respond: func(int) (*payment.StatusResponse, error) {
		return &payment.StatusResponse{PaymentStatus: domain.PaymentPaid, Status: domain.SubscriptionActive}, nil
	}}
	orders := newFakeOrderRepo()
	repo := newFakeRecordRepo()
	store := NewStateStore()
	subs := NewSubscriptionService(repo, orders, cache.NewMemory(), store)
	poller := NewPoller(context.Background(), gw, subs, testPollConfig())
	events := collectEvents(poller)
	enc, err := crypto.NewEncryptor("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	svc := NewPaymentService(gw, orders, &fakeUserFinder{}, subs, poller, enc)

	// The HTTP server cancels the request context the moment the initiate
	// handler returns; confirmation must keep polling regardless.
	reqCtx, cancel := context.WithCancel(context.Background())
	res, err := svc.Initiate(reqCtx, "u1", domain.SegmentPrimary, &InitiatePaymentRequest{
		PlanID: "monthly",
		Phone:  "0712345678",
	})
	require.NoError(t, err)
	cancel()

	waitForState(t, events, PollConfirmed)
	rec := store.Get("u1")
	require.NotNil(t, rec)
	require.Equal(t, domain.PaymentPaid, rec.PaymentStatus)

	snap, ok := poller.Snapshot(res.OrderID)
	require.True(t, ok)
	require.Equal(t, PollConfirmed, snap.State)
}

func TestPaymentService_Simulate(t *testing.T) {
	fx := newPaymentFixture(t)
	require.NoError(t, fx.svc.Simulate(context.Background(), "u1", domain.SegmentAdvance, "quarterly"))

	rec := fx.store.Get("u1")
	require.NotNil(t, rec)
	require.Equal(t, "quarterly", rec.PlanID)
	require.Equal(t, domain.PaymentPaid, rec.PaymentStatus)

	err := fx.svc.Simulate(context.Background(), "u1", domain.SegmentAdvance, "lifetime")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, appErr.Code)
}
