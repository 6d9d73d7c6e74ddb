package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// TierNames are the recognized named discount tiers, cheapest first. Each
// tier key holds a fractional discount (0.05 = 5%) and may carry its own
// day-window overrides, e.g. max_days_till_next_payment_low_discount.
var TierNames = []string{
	"no_discount",
	"low_discount",
	"medium_discount",
	"high_discount",
	"crazy_discount",
	"total_discount",
}

// RunConfig is the tunable threshold set for one policy run. It is loaded
// once per run from a flat JSON document and treated as immutable until
// the normalized end-of-run snapshot.
type RunConfig struct {
	MaxBid               decimal.Decimal
	MinBid               decimal.Decimal
	MaxInvestmentPerLoan decimal.Decimal

	// MinGain is the minimum acceptable target-minus-asking discount.
	// The document may spell it min_gain or min_percentage_overhead.
	MinGain int

	// MinVerificationTier rejects candidates verified below this tier.
	// Zero disables the floor.
	MinVerificationTier int

	// RequireFirstPayment limits secondary buys to loans whose first
	// payment is still pending.
	RequireFirstPayment bool

	MinDaysTillNextPayment *int
	MaxDaysTillNextPayment *int

	Tiers []DiscountTier

	// Request carries request_* passthrough filters verbatim.
	Request map[string]string

	raw map[string]any
}

// DiscountTier is one named liquidation tier with optional day-window
// overrides replacing the document-level bounds for that pass.
type DiscountTier struct {
	Name     string
	Discount float64
	MinDays  *int
	MaxDays  *int
}

// Rate is the tier's discount as an integer percentage.
func (t DiscountTier) Rate() int {
	return int(t.Discount * 100)
}

// LoadRun reads a flat JSON run config document.
func LoadRun(path string) (RunConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("max_bid", 20)
	v.SetDefault("min_bid", 1)
	v.SetDefault("max_investment_per_loan", 50)
	v.SetDefault("min_gain", 5)
	if err := v.ReadInConfig(); err != nil {
		return RunConfig{}, fmt.Errorf("read run config %s: %w", path, err)
	}
	raw := v.AllSettings()

	cfg := RunConfig{
		MaxBid:               decimal.NewFromFloat(v.GetFloat64("max_bid")),
		MinBid:               decimal.NewFromFloat(v.GetFloat64("min_bid")),
		MaxInvestmentPerLoan: decimal.NewFromFloat(v.GetFloat64("max_investment_per_loan")),
		MinGain:              v.GetInt("min_gain"),
		MinVerificationTier:  v.GetInt("min_verification_tier"),
		RequireFirstPayment:  v.GetBool("require_first_payment"),
		Request:              map[string]string{},
		raw:                  raw,
	}
	if v.InConfig("min_percentage_overhead") && !v.InConfig("min_gain") {
		cfg.MinGain = v.GetInt("min_percentage_overhead")
		raw["min_gain"] = cfg.MinGain
	}
	delete(raw, "min_percentage_overhead")
	cfg.MinDaysTillNextPayment = intIfSet(v, "min_days_till_next_payment")
	cfg.MaxDaysTillNextPayment = intIfSet(v, "max_days_till_next_payment")

	for _, name := range TierNames {
		if !v.IsSet(name) {
			continue
		}
		cfg.Tiers = append(cfg.Tiers, DiscountTier{
			Name:     name,
			Discount: v.GetFloat64(name),
			MinDays:  intIfSet(v, "min_days_till_next_payment_"+name),
			MaxDays:  intIfSet(v, "max_days_till_next_payment_"+name),
		})
	}

	for key := range raw {
		if strings.HasPrefix(key, "request_") {
			cfg.Request[key] = v.GetString(key)
		}
	}

	if err := cfg.validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

func (c RunConfig) validate() error {
	if c.MaxBid.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("max_bid must be positive, got %s", c.MaxBid)
	}
	if c.MinBid.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("min_bid must be positive, got %s", c.MinBid)
	}
	if c.MinBid.GreaterThan(c.MaxBid) {
		return fmt.Errorf("min_bid %s exceeds max_bid %s", c.MinBid, c.MaxBid)
	}
	if c.MaxInvestmentPerLoan.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("max_investment_per_loan must be positive, got %s", c.MaxInvestmentPerLoan)
	}
	return nil
}

// DayWindow converts the relative day bounds to absolute timestamps at
// call time, for the gateway's next-payment date filter.
func (c RunConfig) DayWindow(now time.Time) (from, to *time.Time) {
	if c.MinDaysTillNextPayment != nil {
		t := now.AddDate(0, 0, *c.MinDaysTillNextPayment)
		from = &t
	}
	if c.MaxDaysTillNextPayment != nil {
		t := now.AddDate(0, 0, *c.MaxDaysTillNextPayment)
		to = &t
	}
	return from, to
}

// WithTierWindow returns a copy whose document-level day bounds are
// replaced by the tier's overrides (cleared when the tier has none).
func (c RunConfig) WithTierWindow(tier DiscountTier) RunConfig {
	next := c
	next.MinDaysTillNextPayment = tier.MinDays
	next.MaxDaysTillNextPayment = tier.MaxDays
	return next
}

// Snapshot rewrites the document normalized: keys sorted, indented, with
// any transient keys injected during the run stripped.
func (c RunConfig) Snapshot(path string, strip ...string) error {
	doc := map[string]any{}
	for k, val := range c.raw {
		doc[k] = val
	}
	for _, k := range strip {
		delete(doc, k)
	}
	delete(doc, "request_next_payment_date_from")
	delete(doc, "request_next_payment_date_to")
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

func intIfSet(v *viper.Viper, key string) *int {
	if !v.IsSet(key) {
		return nil
	}
	val := v.GetInt(key)
	return &val
}
