// Package reconcile makes the secondary-market listing for an account
// match the pricing policy exactly, with minimum churn.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"investhor/internal/models"
	"investhor/internal/pricing"
)

// Plan is the minimal cancel/sell set that brings the live listings in
// line with policy. Building a plan from listings that already match
// yields an empty plan; reconciliation is idempotent.
type Plan struct {
	Cancels []models.Action
	Sells   []models.Action
}

func (p Plan) Empty() bool {
	return len(p.Cancels) == 0 && len(p.Sells) == 0
}

type Options struct {
	// CancelOnly cancels mispriced listings without re-listing them,
	// for liquidation policies that only want to pull stale offers.
	CancelOnly bool
}

// BuildPlan diffs held loan parts against the account's live listings.
// Parts not listed are sold at the policy rate; parts listed at a
// different rate (whole-percent comparison) are cancelled and re-listed;
// parts listed correctly produce no action.
func BuildPlan(held, listed []models.LoanOffer, policy pricing.RatePolicy, opts Options) Plan {
	byPart := make(map[string]models.LoanOffer, len(listed))
	for _, l := range listed {
		byPart[l.LoanPartID] = l
	}

	var plan Plan
	for _, part := range held {
		want := policy.Rate(part)
		sell := models.Action{
			Kind:     models.ActionSell,
			TargetID: part.LoanPartID,
			Rate:     want,
			URL:      part.InvestmentURL(),
		}
		live, ok := byPart[part.LoanPartID]
		if !ok {
			plan.Sells = append(plan.Sells, sell)
			continue
		}
		if int(live.DesiredDiscountRate) == want {
			continue
		}
		plan.Cancels = append(plan.Cancels, models.Action{
			Kind:     models.ActionCancel,
			TargetID: live.ID,
			URL:      live.InvestmentURL(),
		})
		if !opts.CancelOnly {
			plan.Sells = append(plan.Sells, sell)
		}
	}
	return plan
}

// Gateway is the slice of the market gateway the submitter needs.
type Gateway interface {
	Sell(ctx context.Context, sells []models.Action) error
	CancelMultiple(ctx context.Context, listingIDs []string) error
}

// BatchError records one failed batch for caller-level retry/reporting.
type BatchError struct {
	Kind  models.ActionKind
	Index int
	Size  int
	Err   error
}

// Result separates what went through from what did not. A failed batch
// never blocks its siblings.
type Result struct {
	Submitted []models.Action
	Failed    []BatchError
}

// Submitter chunks a plan into gateway-sized batches and spaces them out
// to respect rate limits. The delay is cancellable: a run-level timeout
// aborts the remaining batches and leaves submitted ones committed.
type Submitter struct {
	Gateway Gateway
	Logger  *zap.Logger

	BatchSize int // default 100
	// BatchDelay defaults to 3s when zero; negative disables the wait.
	BatchDelay time.Duration
}

func (s *Submitter) Submit(ctx context.Context, plan Plan) (Result, error) {
	size := s.BatchSize
	if size <= 0 {
		size = 100
	}
	delay := s.BatchDelay
	if delay == 0 {
		delay = 3 * time.Second
	}

	var res Result
	cancelBatches := chunk(plan.Cancels, size)
	sellBatches := chunk(plan.Sells, size)
	total := len(cancelBatches) + len(sellBatches)
	submitted := 0

	submit := func(kind models.ActionKind, index int, batch []models.Action) error {
		var err error
		switch kind {
		case models.ActionCancel:
			ids := make([]string, len(batch))
			for i, a := range batch {
				ids[i] = a.TargetID
			}
			err = s.Gateway.CancelMultiple(ctx, ids)
		default:
			err = s.Gateway.Sell(ctx, batch)
		}
		if err != nil {
			res.Failed = append(res.Failed, BatchError{Kind: kind, Index: index, Size: len(batch), Err: err})
			if s.Logger != nil {
				s.Logger.Warn("reconcile: batch submission failed",
					zap.String("kind", string(kind)),
					zap.Int("batch", index),
					zap.Int("size", len(batch)),
					zap.Error(err),
				)
			}
			return nil
		}
		res.Submitted = append(res.Submitted, batch...)
		return nil
	}

	for i, batch := range cancelBatches {
		if err := submit(models.ActionCancel, i, batch); err != nil {
			return res, err
		}
		submitted++
		if submitted < total {
			if err := wait(ctx, delay); err != nil {
				return res, err
			}
		}
	}
	for i, batch := range sellBatches {
		if err := submit(models.ActionSell, i, batch); err != nil {
			return res, err
		}
		submitted++
		if submitted < total {
			if err := wait(ctx, delay); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func chunk(actions []models.Action, size int) [][]models.Action {
	var out [][]models.Action
	for i := 0; i < len(actions); i += size {
		end := i + size
		if end > len(actions) {
			end = len(actions)
		}
		out = append(out, actions[i:end])
	}
	return out
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
