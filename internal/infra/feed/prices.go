package feed

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

// PriceClient implements PriceFeed over HTTP.
type PriceClient struct {
	client *Client
	now    func() time.Time
}

func NewPriceClient(client *Client) *PriceClient {
	return &PriceClient{client: client, now: time.Now}
}

// GetTokenInfo looks up price, market cap, liquidity and display metadata for token.
func (p *PriceClient) GetTokenInfo(ctx context.Context, token string) (*domain.TokenInfo, error) {
	var info PriceInfo
	if err := p.client.GetJSON(ctx, "/tokens/"+url.PathEscape(token), nil, &info); err != nil {
		return nil, fmt.Errorf("token info %s: %w", token, err)
	}
	if info.Address == "" {
		info.Address = token
	}
	if info.Address != token {
		return nil, fmt.Errorf("token info %s: %w: address mismatch %s", token, ErrMalformed, info.Address)
	}
	return &domain.TokenInfo{
		Address:      info.Address,
		Name:         info.Name,
		Symbol:       info.Symbol,
		Decimals:     info.Decimals,
		PriceUSD:     info.PriceUSD,
		MarketCapUSD: info.MarketCapUSD,
		LiquidityUSD: info.LiquidityUSD,
		ImageURL:     info.ImageURL,
		FetchedAt:    p.now(),
	}, nil
}
