package models

import "github.com/shopspring/decimal"

// UserExposure tracks cumulative invested amount per borrower across one
// run. It grows monotonically as candidates are accepted and is discarded
// at run end; nothing leaks across runs.
type UserExposure struct {
	invested map[string]decimal.Decimal
}

func NewUserExposure() *UserExposure {
	return &UserExposure{invested: map[string]decimal.Decimal{}}
}

// Total returns what has been attributed to the user so far this run.
func (e *UserExposure) Total(user string) decimal.Decimal {
	if e == nil || e.invested == nil {
		return decimal.Zero
	}
	return e.invested[user]
}

// Add records an accepted amount for the user and returns the new total.
func (e *UserExposure) Add(user string, amount decimal.Decimal) decimal.Decimal {
	if e.invested == nil {
		e.invested = map[string]decimal.Decimal{}
	}
	next := e.invested[user].Add(amount)
	e.invested[user] = next
	return next
}
