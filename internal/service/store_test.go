package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuleplus/backend/internal/domain"
)

func storeRecord(planID string) *domain.SubscriptionRecord {
	return &domain.SubscriptionRecord{
		PlanID:        planID,
		Status:        domain.SubscriptionActive,
		PaymentStatus: domain.PaymentPaid,
		EndDate:       time.Now().AddDate(0, 1, 0),
	}
}

func TestStateStore_SetGetClear(t *testing.T) {
	store := NewStateStore()
	require.Nil(t, store.Get("u1"))

	store.Set("u1", storeRecord("monthly"))
	rec := store.Get("u1")
	require.NotNil(t, rec)
	require.Equal(t, "monthly", rec.PlanID)

	store.Clear("u1")
	require.Nil(t, store.Get("u1"))
}

func TestStateStore_SetReplaces(t *testing.T) {
	store := NewStateStore()
	store.Set("u1", storeRecord("monthly"))
	store.Set("u1", storeRecord("yearly"))
	require.Equal(t, "yearly", store.Get("u1").PlanID)
}

func TestStateStore_NotifiesSynchronously(t *testing.T) {
	store := NewStateStore()

	var gotUser string
	var gotPlan string
	store.Subscribe(func(userID string, rec *domain.SubscriptionRecord) {
		gotUser = userID
		gotPlan = rec.PlanID
		// Subscribers may read back during notification.
		require.Equal(t, rec, store.Get(userID))
	})

	store.Set("u1", storeRecord("quarterly"))
	require.Equal(t, "u1", gotUser)
	require.Equal(t, "quarterly", gotPlan)
}
