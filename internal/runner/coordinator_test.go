package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"investhor/internal/client/bondora"
	"investhor/internal/config"
	"investhor/internal/models"
)

type stubGateway struct {
	auctions    []models.LoanOffer
	secondary   []models.LoanOffer
	ownListings []models.LoanOffer
	investments []models.LoanOffer

	fetchErr error

	bidBatches    [][]models.Action
	buyBatches    [][]string
	sellBatches   [][]models.Action
	cancelBatches [][]string
	bidErr        error

	investmentCalls []bondora.Filters
}

func (g *stubGateway) GetAuctions(_ context.Context, _ bondora.Filters) ([]models.LoanOffer, error) {
	return g.auctions, g.fetchErr
}

func (g *stubGateway) GetSecondaryMarket(_ context.Context, f bondora.Filters) ([]models.LoanOffer, error) {
	if f.ShowMyItems {
		return g.ownListings, g.fetchErr
	}
	return g.secondary, g.fetchErr
}

func (g *stubGateway) GetInvestments(_ context.Context, f bondora.Filters) ([]models.LoanOffer, error) {
	g.investmentCalls = append(g.investmentCalls, f)
	return g.investments, g.fetchErr
}

func (g *stubGateway) MakeBids(_ context.Context, bids []models.Action) error {
	g.bidBatches = append(g.bidBatches, bids)
	return g.bidErr
}

func (g *stubGateway) Buy(_ context.Context, ids []string) error {
	g.buyBatches = append(g.buyBatches, ids)
	return nil
}

func (g *stubGateway) Sell(_ context.Context, sells []models.Action) error {
	g.sellBatches = append(g.sellBatches, sells)
	return nil
}

func (g *stubGateway) CancelMultiple(_ context.Context, ids []string) error {
	g.cancelBatches = append(g.cancelBatches, ids)
	return nil
}

type recordingSink struct {
	subjects []string
	bodies   []string
	err      error
}

func (s *recordingSink) Send(_ context.Context, subject, body string) error {
	s.subjects = append(s.subjects, subject)
	s.bodies = append(s.bodies, body)
	return s.err
}

func testRunConfig() config.RunConfig {
	return config.RunConfig{
		MaxBid:               decimal.NewFromInt(20),
		MinBid:               decimal.NewFromInt(1),
		MaxInvestmentPerLoan: decimal.NewFromInt(50),
		MinGain:              5,
	}
}

func auction(id, user string, interest float64, tier int) models.LoanOffer {
	return models.LoanOffer{ID: id, UserName: user, Interest: interest, VerificationTier: tier}
}

func TestRunPrimary_BidsAndReports(t *testing.T) {
	gw := &stubGateway{auctions: []models.LoanOffer{
		auction("a1", "BO1", 120, 4), // target 8, gain 8
		auction("a2", "BO2", 20, 1),  // target 2, gain below minimum
	}}
	sink := &recordingSink{}
	r := &Runner{Gateway: gw, Sink: sink, BatchDelay: -1}

	sum, err := r.RunPrimary(context.Background(), testRunConfig(), "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(sum.Actions) != 1 || sum.Actions[0].TargetID != "a1" {
		t.Fatalf("actions=%+v want one bid on a1", sum.Actions)
	}
	if len(gw.bidBatches) != 1 || len(gw.bidBatches[0]) != 1 {
		t.Fatalf("bidBatches=%+v", gw.bidBatches)
	}
	if len(sink.subjects) != 1 {
		t.Fatalf("mails=%d want=1", len(sink.subjects))
	}
	if !strings.Contains(sink.bodies[0], "a1") {
		t.Fatalf("body=%q missing action id", sink.bodies[0])
	}
}

func TestRunPrimary_EmptySelectionNoMail(t *testing.T) {
	gw := &stubGateway{auctions: []models.LoanOffer{auction("a1", "BO1", 20, 1)}}
	sink := &recordingSink{}
	r := &Runner{Gateway: gw, Sink: sink, BatchDelay: -1}

	sum, err := r.RunPrimary(context.Background(), testRunConfig(), "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(sum.Actions) != 0 || len(gw.bidBatches) != 0 {
		t.Fatalf("no-op run submitted actions: %+v", sum.Actions)
	}
	if len(sink.subjects) != 0 {
		t.Fatal("no-op run must not send mail")
	}
}

func TestRunPrimary_FetchFailureClassified(t *testing.T) {
	gw := &stubGateway{fetchErr: errors.New("connection refused")}
	r := &Runner{Gateway: gw, BatchDelay: -1}
	_, err := r.RunPrimary(context.Background(), testRunConfig(), "")
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("err=%v want FetchError", err)
	}

	gw.fetchErr = &bondora.APIError{Status: http.StatusUnauthorized, Body: "expired"}
	_, err = r.RunPrimary(context.Background(), testRunConfig(), "")
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("err=%v want AuthError for 401", err)
	}
}

func TestRunPrimary_FailedBatchInReport(t *testing.T) {
	gw := &stubGateway{
		auctions: []models.LoanOffer{auction("a1", "BO1", 120, 4)},
		bidErr:   errors.New("gateway unavailable"),
	}
	sink := &recordingSink{}
	r := &Runner{Gateway: gw, Sink: sink, BatchDelay: -1}

	sum, err := r.RunPrimary(context.Background(), testRunConfig(), "")
	if err != nil {
		t.Fatalf("err=%v, batch failure must not abort the run", err)
	}
	if len(sum.Failed) != 1 {
		t.Fatalf("failed=%+v want one batch", sum.Failed)
	}
	if len(sink.bodies) != 1 || !strings.Contains(sink.bodies[0], "FAILED") {
		t.Fatalf("report must mention the failed batch, got %q", sink.bodies)
	}
}

func TestRunSecondary_BuysWithinCaps(t *testing.T) {
	offer := auction("s1", "BO1", 120, 4)
	offer.Amount = decimal.NewFromInt(30)
	gw := &stubGateway{secondary: []models.LoanOffer{offer}}
	sink := &recordingSink{}
	r := &Runner{Gateway: gw, Sink: sink, BatchDelay: -1}

	sum, err := r.RunSecondary(context.Background(), testRunConfig(), "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(sum.Actions) != 1 || len(gw.buyBatches) != 1 || gw.buyBatches[0][0] != "s1" {
		t.Fatalf("buys=%+v", gw.buyBatches)
	}
}

func TestRunSellStale_RelistsAtZero(t *testing.T) {
	gw := &stubGateway{
		investments: []models.LoanOffer{{LoanPartID: "p1", Interest: 120, VerificationTier: 4}},
		ownListings: []models.LoanOffer{{ID: "l1", LoanPartID: "p1", DesiredDiscountRate: 8}},
	}
	sink := &recordingSink{}
	r := &Runner{Gateway: gw, Sink: sink, BatchDelay: -1}

	sum, err := r.RunSellStale(context.Background(), testRunConfig(), "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.cancelBatches) != 1 || gw.cancelBatches[0][0] != "l1" {
		t.Fatalf("cancels=%v want listing l1 pulled", gw.cancelBatches)
	}
	if len(gw.sellBatches) != 1 || gw.sellBatches[0][0].Rate != 0 {
		t.Fatalf("sells=%+v want re-list at 0", gw.sellBatches)
	}
	if len(sum.Actions) != 2 {
		t.Fatalf("actions=%d want cancel+sell", len(sum.Actions))
	}
}

func TestRunSell_TieredPassesAndDedupe(t *testing.T) {
	gw := &stubGateway{
		investments: []models.LoanOffer{{LoanPartID: "p1", Interest: 120, VerificationTier: 4}},
	}
	r := &Runner{Gateway: gw, Sink: &recordingSink{}, BatchDelay: -1}
	ten, thirty := 10, 30
	cfg := testRunConfig()
	cfg.Tiers = []config.DiscountTier{
		{Name: "no_discount", Discount: 0, MaxDays: &ten},
		{Name: "low_discount", Discount: 0.05, MaxDays: &thirty},
	}

	_, err := r.RunSell(context.Background(), cfg, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.investmentCalls) != 2 {
		t.Fatalf("investment fetches=%d want one per tier", len(gw.investmentCalls))
	}
	// Same part returned for both tier windows: only the first (cheaper)
	// tier may list it.
	if len(gw.sellBatches) != 1 || len(gw.sellBatches[0]) != 1 {
		t.Fatalf("sells=%+v want a single listing", gw.sellBatches)
	}
	if got := gw.sellBatches[0][0].Rate; got != 0 {
		t.Fatalf("rate=%d want=0 from the first tier", got)
	}
}

func TestHeldFetches_RestrictedToCurrentLoans(t *testing.T) {
	gw := &stubGateway{}
	r := &Runner{Gateway: gw, Sink: &recordingSink{}, BatchDelay: -1}

	if _, err := r.RunSell(context.Background(), testRunConfig(), ""); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := r.RunSellStale(context.Background(), testRunConfig(), ""); err != nil {
		t.Fatalf("err=%v", err)
	}
	ten := 10
	tiered := testRunConfig()
	tiered.Tiers = []config.DiscountTier{{Name: "no_discount", Discount: 0, MaxDays: &ten}}
	if _, err := r.RunSell(context.Background(), tiered, ""); err != nil {
		t.Fatalf("err=%v", err)
	}

	if len(gw.investmentCalls) != 3 {
		t.Fatalf("investment fetches=%d want=3", len(gw.investmentCalls))
	}
	for i, f := range gw.investmentCalls {
		if f.LoanStatusCode != bondora.LoanStatusCurrent {
			t.Fatalf("fetch %d: loan status=%d, must be restricted to current loans", i, f.LoanStatusCode)
		}
	}
	if gw.investmentCalls[1].SalesStatus != bondora.SalesStatusNotOnSale {
		t.Fatalf("stale fetch sales status=%d want not-on-sale", gw.investmentCalls[1].SalesStatus)
	}
	if gw.investmentCalls[0].SalesStatus != 0 || gw.investmentCalls[2].SalesStatus != 0 {
		t.Fatal("sell runs must not filter by sales status")
	}
}

func TestRunSellStale_MispricedListingWithoutHeldEntry(t *testing.T) {
	// The investments fetch excludes on-sale parts, so a mispriced
	// listing must be repriced from the listed set alone.
	gw := &stubGateway{
		ownListings: []models.LoanOffer{{ID: "l1", LoanPartID: "p1", DesiredDiscountRate: 8}},
	}
	r := &Runner{Gateway: gw, Sink: &recordingSink{}, BatchDelay: -1}

	if _, err := r.RunSellStale(context.Background(), testRunConfig(), ""); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.cancelBatches) != 1 || gw.cancelBatches[0][0] != "l1" {
		t.Fatalf("cancels=%v want listing l1 pulled", gw.cancelBatches)
	}
	if len(gw.sellBatches) != 1 || gw.sellBatches[0][0].Rate != 0 {
		t.Fatalf("sells=%+v want re-list at 0", gw.sellBatches)
	}
}

func TestRunSellStale_PartInBothSetsPlannedOnce(t *testing.T) {
	gw := &stubGateway{
		investments: []models.LoanOffer{{LoanPartID: "p1", Interest: 120, VerificationTier: 4}},
		ownListings: []models.LoanOffer{{ID: "l1", LoanPartID: "p1", DesiredDiscountRate: 8}},
	}
	r := &Runner{Gateway: gw, Sink: &recordingSink{}, BatchDelay: -1}

	sum, err := r.RunSellStale(context.Background(), testRunConfig(), "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.sellBatches) != 1 || len(gw.sellBatches[0]) != 1 {
		t.Fatalf("sells=%+v want exactly one listing for p1", gw.sellBatches)
	}
	if len(sum.Actions) != 2 {
		t.Fatalf("actions=%d want cancel+sell", len(sum.Actions))
	}
}

func TestRunSell_ComputedWithoutTiers(t *testing.T) {
	gw := &stubGateway{
		investments: []models.LoanOffer{{LoanPartID: "p1", Interest: 120, VerificationTier: 4}},
	}
	r := &Runner{Gateway: gw, Sink: &recordingSink{}, BatchDelay: -1}

	_, err := r.RunSell(context.Background(), testRunConfig(), "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.sellBatches) != 1 || gw.sellBatches[0][0].Rate != 8 {
		t.Fatalf("sells=%+v want listing at computed 8", gw.sellBatches)
	}
}

func TestReport_SinkFailureDoesNotFailRun(t *testing.T) {
	gw := &stubGateway{auctions: []models.LoanOffer{auction("a1", "BO1", 120, 4)}}
	sink := &recordingSink{err: fmt.Errorf("smtp down")}
	r := &Runner{Gateway: gw, Sink: sink, BatchDelay: -1}

	if _, err := r.RunPrimary(context.Background(), testRunConfig(), ""); err != nil {
		t.Fatalf("err=%v, sink failure must not invalidate the run", err)
	}
	if len(gw.bidBatches) != 1 {
		t.Fatal("bids must be submitted before the report")
	}
}
