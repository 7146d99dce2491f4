package domain

import "context"

// QuoteCache 报价缓存，未命中返回 nil, nil
type QuoteCache interface {
	Get(ctx context.Context, p MarketParameters) (*Quote, error)
	Set(ctx context.Context, q Quote) error
}
