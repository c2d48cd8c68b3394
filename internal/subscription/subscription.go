// Package subscription holds the pure lifecycle rules for subscription
// rows. Nothing here touches the database; stores and handlers call
// Reconcile on every read path so status is always derived from the
// stored period against the clock, with no background expiry job.
package subscription

import (
	"time"

	"github.com/dukerupert/homeguard/internal/model"
)

// TrialLength is how long a free trial runs once the first device activates it.
const TrialLength = 7 * 24 * time.Hour

// PaidPeriod is the length of one paid billing period. Periods are
// stamped from the invoice time rather than read back from Stripe.
const PaidPeriod = 30 * 24 * time.Hour

// Reconcile returns the status a subscription should have at the given
// instant. A trial past its end becomes incomplete; a paid subscription
// past its end becomes past due. Canceled and incomplete rows, and rows
// with no period yet, are returned unchanged.
func Reconcile(sub *model.Subscription, now time.Time) string {
	if sub == nil {
		return ""
	}
	if sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Before(now) {
		return sub.Status
	}

	switch sub.Status {
	case model.SubStatusTrialing:
		return model.SubStatusIncomplete
	case model.SubStatusActive:
		return model.SubStatusPastDue
	default:
		return sub.Status
	}
}

// Usable reports whether the subscription grants access to the product
// at the given instant, after reconciling against the clock.
func Usable(sub *model.Subscription, now time.Time) bool {
	switch Reconcile(sub, now) {
	case model.SubStatusTrialing, model.SubStatusActive:
		return true
	default:
		return false
	}
}

// TrialWindow returns the period a trial activated at the given instant
// should cover.
func TrialWindow(now time.Time) (start, end time.Time) {
	return now, now.Add(TrialLength)
}

// PaidWindow returns the period a paid invoice at the given instant
// should cover.
func PaidWindow(now time.Time) (start, end time.Time) {
	return now, now.Add(PaidPeriod)
}
