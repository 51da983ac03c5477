package domain

import "time"

// IsExpired decides whether access should be denied for a subscription
// record at the given instant. Absent record, absent end date, unpaid or
// non-active records all count as expired. The end date is compared at day
// granularity: a subscription expires at the end of its last calendar day,
// regardless of time-of-day on either side.
func IsExpired(rec *SubscriptionRecord, now time.Time) bool {
	if rec == nil {
		return true
	}
	if rec.EndDate.IsZero() {
		return true
	}
	if rec.PaymentStatus != PaymentPaid {
		return true
	}
	if rec.Status != SubscriptionActive {
		return true
	}
	return dateOf(rec.EndDate).Before(dateOf(now))
}

// dateOf truncates a time to its calendar date in UTC.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
