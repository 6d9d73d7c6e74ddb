// Package selector filters and ranks candidate loan parts against the
// configured buy/sell thresholds and the per-user, per-loan caps.
package selector

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"investhor/internal/config"
	"investhor/internal/models"
	"investhor/internal/pricing"
)

type Selector struct {
	Config config.RunConfig
	Logger *zap.Logger
}

// SelectBids picks primary-market auctions to bid on. Each accepted
// candidate is sized min(max_bid, cap - already invested); candidates
// whose remaining headroom falls under min_bid are dropped rather than
// clamped up, so an emitted amount never exceeds the headroom.
func (s *Selector) SelectBids(offers []models.LoanOffer, exp *models.UserExposure) []models.Action {
	var out []models.Action
	for _, sc := range s.rank(offers) {
		remaining, ok := s.admit(sc, exp)
		if !ok {
			continue
		}
		amount := decimal.Min(s.Config.MaxBid, remaining)
		if amount.LessThan(s.Config.MinBid) {
			s.reject(sc, "below_min_bid")
			continue
		}
		exp.Add(sc.Offer.UserName, amount)
		out = append(out, models.Action{
			Kind:      models.ActionBid,
			TargetID:  sc.Offer.ID,
			Amount:    amount,
			MinAmount: s.Config.MinBid,
			URL:       sc.Offer.InvestmentURL(),
		})
		s.accept(sc, amount)
	}
	return out
}

// SelectBuys picks secondary-market listings to buy outright. The part
// price is fixed, so a part that would push the user over the per-loan
// cap is rejected instead of resized.
func (s *Selector) SelectBuys(offers []models.LoanOffer, exp *models.UserExposure) []models.Action {
	var out []models.Action
	for _, sc := range s.rank(offers) {
		remaining, ok := s.admit(sc, exp)
		if !ok {
			continue
		}
		if sc.Offer.Amount.GreaterThan(remaining) {
			s.reject(sc, "exceeds_loan_cap")
			continue
		}
		exp.Add(sc.Offer.UserName, sc.Offer.Amount)
		out = append(out, models.Action{
			Kind:     models.ActionBuy,
			TargetID: sc.Offer.ID,
			Amount:   sc.Offer.Amount,
			URL:      sc.Offer.InvestmentURL(),
		})
		s.accept(sc, sc.Offer.Amount)
	}
	return out
}

// SelectSells asks for every held loan part to be listed at its policy
// target discount. No caps apply on the sell side.
func (s *Selector) SelectSells(held []models.LoanOffer) []models.Action {
	out := make([]models.Action, 0, len(held))
	for _, offer := range held {
		out = append(out, models.Action{
			Kind:     models.ActionSell,
			TargetID: offer.LoanPartID,
			Rate:     pricing.TargetDiscount(offer.Interest, offer.VerificationTier),
			URL:      offer.InvestmentURL(),
		})
	}
	return out
}

// rank scores the candidates and orders them ascending by yield, then by
// asking discount, so the safest and cheapest offers are admitted first
// when caps force partial admission.
func (s *Selector) rank(offers []models.LoanOffer) []models.ScoredCandidate {
	scored := make([]models.ScoredCandidate, 0, len(offers))
	for _, offer := range offers {
		scored = append(scored, pricing.Score(offer))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Offer.Interest != scored[j].Offer.Interest {
			return scored[i].Offer.Interest < scored[j].Offer.Interest
		}
		return scored[i].Offer.DesiredDiscountRate < scored[j].Offer.DesiredDiscountRate
	})
	return scored
}

// admit applies the shared buy-side gates and returns the remaining
// per-loan headroom for the candidate's user.
func (s *Selector) admit(sc models.ScoredCandidate, exp *models.UserExposure) (decimal.Decimal, bool) {
	cfg := s.Config
	if sc.Gain < float64(cfg.MinGain) {
		s.reject(sc, "gain_below_minimum")
		return decimal.Zero, false
	}
	if cfg.MinVerificationTier > 0 && sc.Offer.VerificationTier < cfg.MinVerificationTier {
		s.reject(sc, "verification_below_floor")
		return decimal.Zero, false
	}
	if cfg.RequireFirstPayment && sc.Offer.NextPaymentNr > 1 {
		s.reject(sc, "loan_mid_schedule")
		return decimal.Zero, false
	}
	invested := sc.Offer.UserBidAmount.Add(exp.Total(sc.Offer.UserName))
	if invested.GreaterThanOrEqual(cfg.MaxInvestmentPerLoan) {
		s.reject(sc, "loan_cap_reached")
		return decimal.Zero, false
	}
	return cfg.MaxInvestmentPerLoan.Sub(invested), true
}

func (s *Selector) reject(sc models.ScoredCandidate, reason string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info("selector: rejected candidate",
		zap.String("id", sc.Offer.ID),
		zap.String("user", sc.Offer.UserName),
		zap.String("reason", reason),
		zap.Int("target_discount", sc.TargetDiscount),
		zap.Float64("gain", sc.Gain),
	)
}

func (s *Selector) accept(sc models.ScoredCandidate, amount decimal.Decimal) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info("selector: accepted candidate",
		zap.String("id", sc.Offer.ID),
		zap.String("user", sc.Offer.UserName),
		zap.String("amount", amount.StringFixed(2)),
		zap.Int("target_discount", sc.TargetDiscount),
		zap.Float64("gain", sc.Gain),
	)
}
