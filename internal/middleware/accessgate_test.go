package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuleplus/backend/internal/contextkeys"
	"github.com/shuleplus/backend/internal/domain"
)

type fakeRecordSource struct {
	rec *domain.SubscriptionRecord
	err error
}

func (f *fakeRecordSource) Current(ctx context.Context, userID string, segment domain.Segment) (*domain.SubscriptionRecord, error) {
	return f.rec, f.err
}

func gateRequest(t *testing.T, records *fakeRecordSource, path, role string) *httptest.ResponseRecorder {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx := context.WithValue(req.Context(), contextkeys.UserID, "u1")
	ctx = context.WithValue(ctx, contextkeys.UserRole, role)
	ctx = context.WithValue(ctx, contextkeys.UserLevel, string(domain.SegmentPrimary))
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	AccessGate(records)(next).ServeHTTP(rr, req)
	return rr
}

func activeGateRecord() *domain.SubscriptionRecord {
	return &domain.SubscriptionRecord{
		PlanID:        "monthly",
		Status:        domain.SubscriptionActive,
		PaymentStatus: domain.PaymentPaid,
		EndDate:       time.Now().AddDate(0, 1, 0),
	}
}

func TestAccessGate_AllowsActiveSubscription(t *testing.T) {
	rr := gateRequest(t, &fakeRecordSource{rec: activeGateRecord()}, "/api/quizzes", "student")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAccessGate_BlocksExpiredSubscription(t *testing.T) {
	rec := activeGateRecord()
	rec.EndDate = time.Now().AddDate(0, 0, -2)

	rr := gateRequest(t, &fakeRecordSource{rec: rec}, "/api/quizzes", "student")
	require.Equal(t, http.StatusPaymentRequired, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, domain.SubscriptionPath, body["redirect"])
}

func TestAccessGate_BlocksWhenNoRecord(t *testing.T) {
	rr := gateRequest(t, &fakeRecordSource{}, "/api/quizzes", "student")
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
}

func TestAccessGate_LoadFailureRedirectsInsteadOfErroring(t *testing.T) {
	rr := gateRequest(t, &fakeRecordSource{err: context.DeadlineExceeded}, "/api/quizzes", "student")
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
}

func TestAccessGate_AdminBypassesGate(t *testing.T) {
	rr := gateRequest(t, &fakeRecordSource{}, "/api/quizzes", "admin")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAccessGate_AllowListedPathsPassWithoutSubscription(t *testing.T) {
	for _, path := range []string{"/api/subscription", "/api/plans", "/api/payments", "/subscription"} {
		rr := gateRequest(t, &fakeRecordSource{}, path, "student")
		require.Equal(t, http.StatusOK, rr.Code, "path %s must bypass the gate", path)
	}
}
