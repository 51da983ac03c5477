package domain

import (
	"strings"
	"time"
)

// SubscriptionPath is where users with an expired subscription are sent.
const SubscriptionPath = "/subscription"

// accessAllowList holds path prefixes reachable regardless of subscription
// expiry: the subscription/payment flow itself, plan browsing, profile and
// logout. Locking these out would trap an expired user with no way to renew.
var accessAllowList = []string{
	"/subscription",
	"/profile",
	"/logout",
	"/api/subscription",
	"/api/plans",
	"/api/payments",
	"/api/auth",
}

// AccessDecision is the outcome of an access-gate check.
type AccessDecision struct {
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
}

// DecideAccess gates a path on the current subscription record. Admins and
// allow-listed paths always pass; everything else requires a non-expired
// record.
func DecideAccess(path string, rec *SubscriptionRecord, isAdmin bool, now time.Time) AccessDecision {
	if isAdmin {
		return AccessDecision{Allow: true}
	}
	for _, prefix := range accessAllowList {
		if strings.HasPrefix(path, prefix) {
			return AccessDecision{Allow: true}
		}
	}
	if !IsExpired(rec, now) {
		return AccessDecision{Allow: true}
	}
	return AccessDecision{Allow: false, Redirect: SubscriptionPath}
}
