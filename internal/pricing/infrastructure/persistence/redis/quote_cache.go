package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/cache"
)

const quoteKeyPrefix = "quote:"

// QuoteCache 基于 Redis 的报价缓存，key 由五个市场参数的精确文本组成
type QuoteCache struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewQuoteCache 创建报价缓存
func NewQuoteCache(c *cache.RedisCache, ttl time.Duration) *QuoteCache {
	return &QuoteCache{cache: c, ttl: ttl}
}

var _ domain.QuoteCache = (*QuoteCache)(nil)

func (c *QuoteCache) Get(ctx context.Context, p domain.MarketParameters) (*domain.Quote, error) {
	var q domain.Quote
	ok, err := c.cache.GetJSON(ctx, QuoteKey(p), &q)
	if err != nil || !ok {
		return nil, err
	}
	return &q, nil
}

func (c *QuoteCache) Set(ctx context.Context, q domain.Quote) error {
	return c.cache.SetJSON(ctx, QuoteKey(q.Params), q, c.ttl)
}

// QuoteKey 例如 quote:100:100:0.05:1:0.2
func QuoteKey(p domain.MarketParameters) string {
	var b strings.Builder
	b.WriteString(quoteKeyPrefix)
	for i, f := range domain.Fields {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strconv.FormatFloat(p.Get(f), 'g', -1, 64))
	}
	return b.String()
}
