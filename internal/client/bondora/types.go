package bondora

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"investhor/internal/models"
)

// envelope is the marketplace response wrapper.
type envelope struct {
	Payload json.RawMessage `json:"Payload"`
	Success bool            `json:"Success"`
	Errors  []struct {
		Code    int    `json:"Code"`
		Message string `json:"Message"`
	} `json:"Errors"`
}

func decodePayload(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Success {
		if len(env.Errors) > 0 {
			return fmt.Errorf("gateway rejected request: %s", env.Errors[0].Message)
		}
		return fmt.Errorf("gateway rejected request")
	}
	if out == nil || len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, out)
}

// wireItem is the shared shape of auctions, secondary-market listings and
// account holdings. Auctions report the verification tier as
// VerificationType, secondary items as IncomeVerificationStatus.
type wireItem struct {
	ID                       string  `json:"Id"`
	AuctionID                string  `json:"AuctionId"`
	LoanPartID               string  `json:"LoanPartId"`
	AuctionNumber            int     `json:"AuctionNumber"`
	AuctionBidNumber         int     `json:"AuctionBidNumber"`
	UserName                 string  `json:"UserName"`
	Rating                   string  `json:"Rating"`
	Interest                 float64 `json:"Interest"`
	IncomeVerificationStatus int     `json:"IncomeVerificationStatus"`
	VerificationType         int     `json:"VerificationType"`
	DesiredDiscountRate      float64 `json:"DesiredDiscountRate"`
	NextPaymentNr            int     `json:"NextPaymentNr"`
	NextPaymentDate          string  `json:"NextPaymentDate"`
	Amount                   float64 `json:"Amount"`
	UserBidAmount            float64 `json:"UserBidAmount"`
}

func (w wireItem) toOffer() models.LoanOffer {
	id := w.ID
	if id == "" {
		id = w.AuctionID
	}
	tier := w.IncomeVerificationStatus
	if tier == 0 {
		tier = w.VerificationType
	}
	offer := models.LoanOffer{
		ID:                  id,
		LoanPartID:          w.LoanPartID,
		AuctionNumber:       w.AuctionNumber,
		AuctionBidNumber:    w.AuctionBidNumber,
		UserName:            w.UserName,
		Rating:              w.Rating,
		Interest:            w.Interest,
		VerificationTier:    tier,
		DesiredDiscountRate: w.DesiredDiscountRate,
		NextPaymentNr:       w.NextPaymentNr,
		Amount:              decimal.NewFromFloat(w.Amount),
		UserBidAmount:       decimal.NewFromFloat(w.UserBidAmount),
	}
	if w.NextPaymentDate != "" {
		if ts, err := time.Parse(time.RFC3339, w.NextPaymentDate); err == nil {
			offer.NextPaymentDate = ts
		}
	}
	return offer
}

func toOffers(items []wireItem) []models.LoanOffer {
	out := make([]models.LoanOffer, 0, len(items))
	for _, it := range items {
		out = append(out, it.toOffer())
	}
	return out
}

// Account-investment filter codes from the marketplace API.
const (
	// LoanStatusCurrent selects loans that are being repaid on schedule.
	LoanStatusCurrent = 2
	// SalesStatusNotOnSale selects held parts with no live listing.
	SalesStatusNotOnSale = 3
)

// Filters narrow a market fetch. Relative day windows must already be
// resolved to absolute timestamps by the caller.
type Filters struct {
	MinVerificationTier int
	NextPaymentDateFrom *time.Time
	NextPaymentDateTo   *time.Time

	// ShowMyItems restricts the secondary market to this account's own
	// listings.
	ShowMyItems bool

	// SalesStatus and LoanStatusCode filter account investments. Zero
	// leaves the dimension unfiltered.
	SalesStatus    int
	LoanStatusCode int

	// Extra carries request_* passthrough keys from the run config.
	Extra map[string]string
}

func (f Filters) query() url.Values {
	q := url.Values{}
	if f.MinVerificationTier > 0 {
		q.Set("IncomeVerificationStatus", strconv.Itoa(f.MinVerificationTier))
	}
	if f.NextPaymentDateFrom != nil {
		q.Set("NextPaymentDateFrom", f.NextPaymentDateFrom.UTC().Format(time.RFC3339))
	}
	if f.NextPaymentDateTo != nil {
		q.Set("NextPaymentDateTo", f.NextPaymentDateTo.UTC().Format(time.RFC3339))
	}
	if f.ShowMyItems {
		q.Set("ShowMyItems", "true")
	}
	if f.SalesStatus > 0 {
		q.Set("SalesStatus", strconv.Itoa(f.SalesStatus))
	}
	if f.LoanStatusCode > 0 {
		q.Set("LoanStatusCode", strconv.Itoa(f.LoanStatusCode))
	}
	for key, val := range f.Extra {
		q.Set(pascalize(strings.TrimPrefix(key, "request_")), val)
	}
	return q
}

// pascalize turns a snake_case config key into the API's parameter case.
func pascalize(key string) string {
	parts := strings.Split(key, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// Wire shapes for submissions.

type bidItem struct {
	AuctionID string  `json:"AuctionId"`
	Amount    float64 `json:"Amount"`
	MinAmount float64 `json:"MinAmount"`
}

type bidRequest struct {
	Bids []bidItem `json:"Bids"`
}

type buyRequest struct {
	ItemIDs []string `json:"ItemIds"`
}

type sellItem struct {
	LoanPartID          string `json:"LoanPartId"`
	DesiredDiscountRate int    `json:"DesiredDiscountRate"`
}

type sellRequest struct {
	Items []sellItem `json:"Items"`
}

type cancelRequest struct {
	ItemIDs []string `json:"ItemIds"`
}
