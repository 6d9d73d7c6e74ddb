// Package pricing computes the fair selling/asking discount for a loan
// part. The same policy prices primary-market bids and secondary-market
// sales, so both sides of the book agree on what "fair" means.
package pricing

import (
	"math"

	"investhor/internal/models"
)

// TargetDiscount maps loan attributes to a target discount rate, integer
// percent, always >= 1. The base is tiered on interest and monotonic
// within each tier; a verification bonus is added on top: +2 for a fully
// verified borrower (tier 4), +1 for a partially verified one (tiers 2-3).
func TargetDiscount(interest float64, verificationTier int) int {
	var discount int
	switch {
	case interest > 100:
		discount = int(math.Floor(interest / 20))
	case interest > 50:
		discount = int(math.Floor(interest / 15))
	default:
		discount = int(math.Floor(interest / 10))
		if discount < 1 {
			discount = 1
		}
	}
	switch {
	case verificationTier == 4:
		discount += 2
	case verificationTier > 1:
		discount++
	}
	return discount
}

// Score attaches the target discount and the gain over the asking
// discount to an offer. The asking rate enters the gain un-truncated:
// a seller asking 0.5% really is half a point more expensive than one
// asking 0%.
func Score(offer models.LoanOffer) models.ScoredCandidate {
	target := TargetDiscount(offer.Interest, offer.VerificationTier)
	return models.ScoredCandidate{
		Offer:          offer,
		TargetDiscount: target,
		Gain:           float64(target) - offer.DesiredDiscountRate,
	}
}

// RatePolicy decides the listing rate for a held loan part. The computed
// policy asks TargetDiscount; a fixed policy overrides it, e.g. 0% for
// stale liquidation.
type RatePolicy interface {
	Rate(offer models.LoanOffer) int
}

type computedPolicy struct{}

func (computedPolicy) Rate(offer models.LoanOffer) int {
	return TargetDiscount(offer.Interest, offer.VerificationTier)
}

// Computed returns the policy that prices each part from its attributes.
func Computed() RatePolicy { return computedPolicy{} }

type fixedPolicy int

func (p fixedPolicy) Rate(models.LoanOffer) int { return int(p) }

// Fixed returns a policy that lists every part at the given rate.
func Fixed(rate int) RatePolicy { return fixedPolicy(rate) }
