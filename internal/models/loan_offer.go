package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LoanOffer is an immutable snapshot of one loan part or auction as seen
// during a single poll cycle. It is built from a market fetch and discarded
// when the cycle ends.
type LoanOffer struct {
	// ID is the marketplace identifier of the item: the auction id on the
	// primary market, the listing id on the secondary market.
	ID string

	LoanPartID       string
	AuctionNumber    int
	AuctionBidNumber int

	UserName string
	Rating   string

	// Interest is the annual interest rate of the loan as a percentage.
	Interest float64

	// VerificationTier is the borrower income verification status:
	// 4 fully verified, 2-3 partially verified, <=1 unverified.
	VerificationTier int

	// DesiredDiscountRate is the discount the seller is asking for.
	// Zero for primary auctions, which carry no resale discount.
	DesiredDiscountRate float64

	NextPaymentNr   int
	NextPaymentDate time.Time

	// Amount is the principal on offer for this part.
	Amount decimal.Decimal

	// UserBidAmount is what this account has already invested in the loan.
	UserBidAmount decimal.Decimal
}

// InvestmentURL points at the marketplace page for the underlying investment.
func (o LoanOffer) InvestmentURL() string {
	return fmt.Sprintf(
		"https://www.bondora.com/en/investments?search=search&InvestmentSearch.InvestmentNumberOnly=%d-%d",
		o.AuctionNumber, o.AuctionBidNumber,
	)
}

// ScoredCandidate is a LoanOffer with its policy target discount and the
// gain over the asking discount. Gain is meaningful only once the target
// has been computed; callers filter on it before ranking.
type ScoredCandidate struct {
	Offer          LoanOffer
	TargetDiscount int
	Gain           float64
}
