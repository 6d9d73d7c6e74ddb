package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"investhor/internal/client/bondora"
	"investhor/internal/models"
	"investhor/internal/runner"
)

type idleGateway struct{}

func (idleGateway) GetAuctions(context.Context, bondora.Filters) ([]models.LoanOffer, error) {
	return nil, nil
}
func (idleGateway) GetSecondaryMarket(context.Context, bondora.Filters) ([]models.LoanOffer, error) {
	return nil, nil
}
func (idleGateway) GetInvestments(context.Context, bondora.Filters) ([]models.LoanOffer, error) {
	return nil, nil
}
func (idleGateway) MakeBids(context.Context, []models.Action) error { return nil }
func (idleGateway) Buy(context.Context, []string) error             { return nil }
func (idleGateway) Sell(context.Context, []models.Action) error     { return nil }
func (idleGateway) CancelMultiple(context.Context, []string) error  { return nil }

func newTestService(t *testing.T) *RunService {
	t.Helper()
	dir := t.TempDir()
	for _, p := range Policies {
		if err := os.WriteFile(filepath.Join(dir, p+".json"), []byte(`{}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &RunService{
		Runner:    &runner.Runner{Gateway: idleGateway{}, BatchDelay: -1},
		ConfigDir: dir,
	}
}

func TestTrigger_UnknownPolicy(t *testing.T) {
	s := newTestService(t)
	_, err := s.Trigger(context.Background(), "nonsense")
	if !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("err=%v want ErrUnknownPolicy", err)
	}
}

func TestTrigger_MissingConfigIsConfigError(t *testing.T) {
	s := newTestService(t)
	if err := os.Remove(filepath.Join(s.ConfigDir, "sell.json")); err != nil {
		t.Fatal(err)
	}
	_, err := s.Trigger(context.Background(), PolicySell)
	var cerr *runner.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err=%v want ConfigError", err)
	}
}

func TestTrigger_RecordsLastRunPerPolicy(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Trigger(context.Background(), PolicyInvestPrimary); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.Trigger(context.Background(), PolicySellStale); err != nil {
		t.Fatalf("err=%v", err)
	}
	last := s.Last()
	if len(last) != 2 {
		t.Fatalf("records=%d want=2", len(last))
	}
	// Policies order, not trigger order.
	if last[0].Policy != PolicyInvestPrimary || last[1].Policy != PolicySellStale {
		t.Fatalf("order=%v", last)
	}
}

func TestTrigger_SnapshotRewritesConfig(t *testing.T) {
	s := newTestService(t)
	path := filepath.Join(s.ConfigDir, "invest_primary.json")
	if err := os.WriteFile(path, []byte(`{"max_bid": 25, "request_next_payment_date_from": "x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Trigger(context.Background(), PolicyInvestPrimary); err != nil {
		t.Fatalf("err=%v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(raw)
	if !strings.Contains(got, `"max_bid"`) {
		t.Fatalf("snapshot lost max_bid: %s", got)
	}
	if strings.Contains(got, "request_next_payment_date_from") {
		t.Fatalf("transient key survived snapshot: %s", got)
	}
}
