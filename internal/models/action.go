package models

import "github.com/shopspring/decimal"

type ActionKind string

const (
	ActionBid    ActionKind = "bid"
	ActionBuy    ActionKind = "buy"
	ActionSell   ActionKind = "sell"
	ActionCancel ActionKind = "cancel"
)

// Action is one order to submit to the market gateway. Produced by the
// selector and the reconciler, consumed by the gateway, never persisted.
type Action struct {
	Kind ActionKind

	// TargetID is the auction id for bids, the listing id for buys and
	// cancels, the loan part id for sells.
	TargetID string

	// Rate is the desired discount rate for sells, integer percent.
	Rate int

	// Amount and MinAmount size a bid. Unused for other kinds.
	Amount    decimal.Decimal
	MinAmount decimal.Decimal

	// URL links the summary line for this action to the marketplace.
	URL string
}
