package bondora

import (
	"context"

	"investhor/internal/models"
)

// GetAuctions lists the active primary-market auctions.
func (c *Client) GetAuctions(ctx context.Context, f Filters) ([]models.LoanOffer, error) {
	raw, err := c.doGet(ctx, "/api/v1/auctions", f.query())
	if err != nil {
		return nil, err
	}
	var items []wireItem
	if err := decodePayload(raw, &items); err != nil {
		return nil, err
	}
	return toOffers(items), nil
}

// GetSecondaryMarket lists active secondary-market listings, optionally
// restricted to this account's own via Filters.ShowMyItems.
func (c *Client) GetSecondaryMarket(ctx context.Context, f Filters) ([]models.LoanOffer, error) {
	raw, err := c.doGet(ctx, "/api/v1/secondarymarket", f.query())
	if err != nil {
		return nil, err
	}
	var items []wireItem
	if err := decodePayload(raw, &items); err != nil {
		return nil, err
	}
	return toOffers(items), nil
}

// GetInvestments lists the account's held loan parts.
func (c *Client) GetInvestments(ctx context.Context, f Filters) ([]models.LoanOffer, error) {
	raw, err := c.doGet(ctx, "/api/v1/account/investments", f.query())
	if err != nil {
		return nil, err
	}
	var items []wireItem
	if err := decodePayload(raw, &items); err != nil {
		return nil, err
	}
	return toOffers(items), nil
}

// MakeBids submits primary-market bids in one request.
func (c *Client) MakeBids(ctx context.Context, bids []models.Action) error {
	req := bidRequest{Bids: make([]bidItem, 0, len(bids))}
	for _, b := range bids {
		amount, _ := b.Amount.Float64()
		minAmount, _ := b.MinAmount.Float64()
		req.Bids = append(req.Bids, bidItem{
			AuctionID: b.TargetID,
			Amount:    amount,
			MinAmount: minAmount,
		})
	}
	raw, err := c.doPost(ctx, "/api/v1/bid", req)
	if err != nil {
		return err
	}
	return decodePayload(raw, nil)
}

// Buy purchases secondary-market listings by id.
func (c *Client) Buy(ctx context.Context, listingIDs []string) error {
	raw, err := c.doPost(ctx, "/api/v1/secondarymarket/buy", buyRequest{ItemIDs: listingIDs})
	if err != nil {
		return err
	}
	return decodePayload(raw, nil)
}

// Sell lists loan parts for sale at their desired discount rates.
func (c *Client) Sell(ctx context.Context, sells []models.Action) error {
	req := sellRequest{Items: make([]sellItem, 0, len(sells))}
	for _, s := range sells {
		req.Items = append(req.Items, sellItem{
			LoanPartID:          s.TargetID,
			DesiredDiscountRate: s.Rate,
		})
	}
	raw, err := c.doPost(ctx, "/api/v1/secondarymarket/sell", req)
	if err != nil {
		return err
	}
	return decodePayload(raw, nil)
}

// CancelMultiple withdraws this account's secondary-market listings.
func (c *Client) CancelMultiple(ctx context.Context, listingIDs []string) error {
	raw, err := c.doPost(ctx, "/api/v1/secondarymarket/cancel", cancelRequest{ItemIDs: listingIDs})
	if err != nil {
		return err
	}
	return decodePayload(raw, nil)
}
