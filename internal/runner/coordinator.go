// Package runner drives one policy run end to end: fetch, score,
// select, reconcile, submit, report, snapshot the config.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"investhor/internal/client/bondora"
	"investhor/internal/config"
	"investhor/internal/models"
	"investhor/internal/notify"
	"investhor/internal/pricing"
	"investhor/internal/reconcile"
	"investhor/internal/selector"
)

// Gateway is the slice of the market client a run needs.
type Gateway interface {
	GetAuctions(ctx context.Context, f bondora.Filters) ([]models.LoanOffer, error)
	GetSecondaryMarket(ctx context.Context, f bondora.Filters) ([]models.LoanOffer, error)
	GetInvestments(ctx context.Context, f bondora.Filters) ([]models.LoanOffer, error)
	MakeBids(ctx context.Context, bids []models.Action) error
	Buy(ctx context.Context, listingIDs []string) error
	Sell(ctx context.Context, sells []models.Action) error
	CancelMultiple(ctx context.Context, listingIDs []string) error
}

// Summary is the machine-readable outcome of one run, kept for the
// daemon's last-run endpoint and rendered into the mail report.
type Summary struct {
	Policy    string
	StartedAt time.Time
	Duration  time.Duration
	Actions   []models.Action
	Failed    []reconcile.BatchError
}

// Runner holds the collaborators shared by every policy run.
type Runner struct {
	Gateway Gateway
	Sink    notify.Sink
	Logger  *zap.Logger

	BatchSize int
	// BatchDelay spaces out write batches; zero means the 3s default.
	BatchDelay time.Duration

	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) sink() notify.Sink {
	if r.Sink != nil {
		return r.Sink
	}
	return notify.Nop{}
}

// RunPrimary bids on primary-market auctions that clear the thresholds.
func (r *Runner) RunPrimary(ctx context.Context, cfg config.RunConfig, cfgPath string) (sum Summary, err error) {
	sum = Summary{Policy: "invest_primary", StartedAt: r.now()}
	defer func() { sum.Duration = time.Since(sum.StartedAt) }()

	offers, err := r.Gateway.GetAuctions(ctx, r.filters(cfg, false))
	if err != nil {
		return sum, classifyFetch("auctions", err)
	}
	sel := &selector.Selector{Config: cfg, Logger: r.Logger}
	bids := sel.SelectBids(offers, models.NewUserExposure())
	r.logSelected(sum.Policy, len(offers), len(bids))
	if len(bids) == 0 {
		return sum, r.snapshot(cfg, cfgPath)
	}

	sum.Actions = bids
	sum.Failed = r.submitChunked(ctx, models.ActionBid, bids, func(batch []models.Action) error {
		return r.Gateway.MakeBids(ctx, batch)
	})
	r.report(ctx, &sum, "Primary market bids")
	return sum, r.snapshot(cfg, cfgPath)
}

// RunSecondary buys secondary-market listings that clear the thresholds.
func (r *Runner) RunSecondary(ctx context.Context, cfg config.RunConfig, cfgPath string) (sum Summary, err error) {
	sum = Summary{Policy: "invest_secondary", StartedAt: r.now()}
	defer func() { sum.Duration = time.Since(sum.StartedAt) }()

	offers, err := r.Gateway.GetSecondaryMarket(ctx, r.filters(cfg, false))
	if err != nil {
		return sum, classifyFetch("secondary market", err)
	}
	sel := &selector.Selector{Config: cfg, Logger: r.Logger}
	buys := sel.SelectBuys(offers, models.NewUserExposure())
	r.logSelected(sum.Policy, len(offers), len(buys))
	if len(buys) == 0 {
		return sum, r.snapshot(cfg, cfgPath)
	}

	sum.Actions = buys
	sum.Failed = r.submitChunked(ctx, models.ActionBuy, buys, func(batch []models.Action) error {
		ids := make([]string, len(batch))
		for i, a := range batch {
			ids[i] = a.TargetID
		}
		return r.Gateway.Buy(ctx, ids)
	})
	r.report(ctx, &sum, "Secondary market purchases")
	return sum, r.snapshot(cfg, cfgPath)
}

// RunSell reconciles held loan parts against the account's live
// listings. With named tiers configured it makes one pass per tier at
// that tier's rate and day window; without tiers every held part is
// listed at its computed target discount.
func (r *Runner) RunSell(ctx context.Context, cfg config.RunConfig, cfgPath string) (sum Summary, err error) {
	sum = Summary{Policy: "sell", StartedAt: r.now()}
	defer func() { sum.Duration = time.Since(sum.StartedAt) }()

	listed, err := r.Gateway.GetSecondaryMarket(ctx, r.filters(config.RunConfig{}, true))
	if err != nil {
		return sum, classifyFetch("own listings", err)
	}

	var plan reconcile.Plan
	if len(cfg.Tiers) == 0 {
		held, err := r.Gateway.GetInvestments(ctx, r.heldFilters(cfg, 0))
		if err != nil {
			return sum, classifyFetch("investments", err)
		}
		plan = reconcile.BuildPlan(held, listed, pricing.Computed(), reconcile.Options{})
	} else {
		plan, err = r.tieredPlan(ctx, cfg, listed)
		if err != nil {
			return sum, err
		}
	}
	return r.finishReconcile(ctx, cfg, cfgPath, sum, plan, "Secondary market listings")
}

// RunSellStale pulls every held part onto the market at 0% discount,
// cancelling listings that sit at any other rate.
func (r *Runner) RunSellStale(ctx context.Context, cfg config.RunConfig, cfgPath string) (sum Summary, err error) {
	sum = Summary{Policy: "sell_stale", StartedAt: r.now()}
	defer func() { sum.Duration = time.Since(sum.StartedAt) }()

	held, err := r.Gateway.GetInvestments(ctx, r.heldFilters(cfg, bondora.SalesStatusNotOnSale))
	if err != nil {
		return sum, classifyFetch("investments", err)
	}
	listed, err := r.Gateway.GetSecondaryMarket(ctx, r.filters(config.RunConfig{}, true))
	if err != nil {
		return sum, classifyFetch("own listings", err)
	}
	// The investments fetch excludes on-sale parts; mispriced live
	// listings enter the plan through the listed set. Dedupe by part so
	// a gateway that ignores the sales-status filter cannot double-plan.
	parts := make([]models.LoanOffer, 0, len(held)+len(listed))
	seen := make(map[string]bool, len(held)+len(listed))
	for _, part := range append(held, listed...) {
		if seen[part.LoanPartID] {
			continue
		}
		seen[part.LoanPartID] = true
		parts = append(parts, part)
	}
	plan := reconcile.BuildPlan(parts, listed, pricing.Fixed(0), reconcile.Options{})
	return r.finishReconcile(ctx, cfg, cfgPath, sum, plan, "Stale part liquidation")
}

// tieredPlan fetches held parts once per tier window and plans each
// batch at the tier's fixed rate. A part caught by an earlier (cheaper)
// tier is not re-planned by a later one.
func (r *Runner) tieredPlan(ctx context.Context, cfg config.RunConfig, listed []models.LoanOffer) (reconcile.Plan, error) {
	var plan reconcile.Plan
	planned := map[string]bool{}
	for _, tier := range cfg.Tiers {
		tcfg := cfg.WithTierWindow(tier)
		held, err := r.Gateway.GetInvestments(ctx, r.heldFilters(tcfg, 0))
		if err != nil {
			return plan, classifyFetch("investments ("+tier.Name+")", err)
		}
		fresh := held[:0:0]
		for _, part := range held {
			if planned[part.LoanPartID] {
				continue
			}
			planned[part.LoanPartID] = true
			fresh = append(fresh, part)
		}
		tp := reconcile.BuildPlan(fresh, listed, pricing.Fixed(tier.Rate()), reconcile.Options{})
		plan.Cancels = append(plan.Cancels, tp.Cancels...)
		plan.Sells = append(plan.Sells, tp.Sells...)
	}
	return plan, nil
}

func (r *Runner) finishReconcile(ctx context.Context, cfg config.RunConfig, cfgPath string, sum Summary, plan reconcile.Plan, subject string) (Summary, error) {
	if plan.Empty() {
		r.logSelected(sum.Policy, 0, 0)
		return sum, r.snapshot(cfg, cfgPath)
	}
	sub := &reconcile.Submitter{
		Gateway:    r.Gateway,
		Logger:     r.Logger,
		BatchSize:  r.BatchSize,
		BatchDelay: r.BatchDelay,
	}
	res, err := sub.Submit(ctx, plan)
	sum.Actions = res.Submitted
	sum.Failed = res.Failed
	if err != nil {
		return sum, &SubmissionError{Op: sum.Policy, Err: err}
	}
	r.report(ctx, &sum, subject)
	return sum, r.snapshot(cfg, cfgPath)
}

// submitChunked sends write actions in gateway-sized batches with the
// inter-batch delay, recording failed batches without aborting siblings.
func (r *Runner) submitChunked(ctx context.Context, kind models.ActionKind, actions []models.Action, send func([]models.Action) error) []reconcile.BatchError {
	size := r.BatchSize
	if size <= 0 {
		size = 100
	}
	delay := r.BatchDelay
	if delay == 0 {
		delay = 3 * time.Second
	}
	var failed []reconcile.BatchError
	for i, start := 0, 0; start < len(actions); i, start = i+1, start+size {
		end := start + size
		if end > len(actions) {
			end = len(actions)
		}
		batch := actions[start:end]
		if err := send(batch); err != nil {
			failed = append(failed, reconcile.BatchError{Kind: kind, Index: i, Size: len(batch), Err: err})
			if r.Logger != nil {
				r.Logger.Warn("runner: batch submission failed",
					zap.String("kind", string(kind)),
					zap.Int("batch", i),
					zap.Int("size", len(batch)),
					zap.Error(err),
				)
			}
		}
		if end < len(actions) && delay > 0 {
			select {
			case <-ctx.Done():
				return failed
			case <-time.After(delay):
			}
		}
	}
	return failed
}

// report mails the run outcome. A sink failure is logged and dropped;
// the submitted orders stand regardless.
func (r *Runner) report(ctx context.Context, sum *Summary, subject string) {
	body := renderReport(sum)
	if err := r.sink().Send(ctx, subject, body); err != nil {
		nerr := &NotificationError{Err: err}
		if r.Logger != nil {
			r.Logger.Warn("runner: report delivery failed",
				zap.String("policy", sum.Policy),
				zap.Error(nerr),
			)
		}
	}
}

func renderReport(sum *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d action(s)\n\n", sum.Policy, len(sum.Actions))
	for _, a := range sum.Actions {
		switch a.Kind {
		case models.ActionBid, models.ActionBuy:
			fmt.Fprintf(&b, "%s %s for %s\n%s\n\n", a.Kind, a.TargetID, a.Amount.StringFixed(2), a.URL)
		case models.ActionSell:
			fmt.Fprintf(&b, "%s %s at %d%%\n%s\n\n", a.Kind, a.TargetID, a.Rate, a.URL)
		default:
			fmt.Fprintf(&b, "%s %s\n%s\n\n", a.Kind, a.TargetID, a.URL)
		}
	}
	for _, f := range sum.Failed {
		fmt.Fprintf(&b, "FAILED: %s batch %d (%d items): %v\n", f.Kind, f.Index, f.Size, f.Err)
	}
	return b.String()
}

func (r *Runner) snapshot(cfg config.RunConfig, path string) error {
	if path == "" {
		return nil
	}
	if err := cfg.Snapshot(path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	return nil
}

func (r *Runner) logSelected(policy string, fetched, selected int) {
	if r.Logger == nil {
		return
	}
	r.Logger.Info("runner: selection complete",
		zap.String("policy", policy),
		zap.Int("fetched", fetched),
		zap.Int("selected", selected),
	)
}

// filters builds the gateway filter set for one fetch: absolute
// next-payment bounds resolved now, plus the request_* passthroughs.
func (r *Runner) filters(cfg config.RunConfig, ownListings bool) bondora.Filters {
	from, to := cfg.DayWindow(r.now())
	return bondora.Filters{
		MinVerificationTier: cfg.MinVerificationTier,
		NextPaymentDateFrom: from,
		NextPaymentDateTo:   to,
		ShowMyItems:         ownListings,
		Extra:               cfg.Request,
	}
}

// heldFilters is the filter set for account-investment fetches: only
// current loans may be listed for sale, plus an optional sales-status
// restriction.
func (r *Runner) heldFilters(cfg config.RunConfig, salesStatus int) bondora.Filters {
	f := r.filters(cfg, false)
	f.LoanStatusCode = bondora.LoanStatusCurrent
	f.SalesStatus = salesStatus
	return f
}

func classifyFetch(op string, err error) error {
	var apiErr *bondora.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			return &AuthError{Err: err}
		}
	}
	return &FetchError{Op: op, Err: err}
}
