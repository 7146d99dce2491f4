package application

import (
	"context"
	"strings"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/metrics"
	"github.com/wyfcoding/blackscholes/pkg/utils"
)

// PricingQueryService 处理所有定价相关的查询操作（Queries），不产生写入与事件
type PricingQueryService struct {
	repo domain.PricingRepository
	eval *quoteEvaluator
}

// NewPricingQueryService 构造函数。
func NewPricingQueryService(repo domain.PricingRepository, cache domain.QuoteCache, m *metrics.Metrics) *PricingQueryService {
	return &PricingQueryService{
		repo: repo,
		eval: &quoteEvaluator{cache: cache, metrics: m},
	}
}

// Quote 同时计算看涨与看跌的价格和希腊字母
func (q *PricingQueryService) Quote(ctx context.Context, p domain.MarketParameters) (*QuoteDTO, error) {
	if err := q.eval.validate(p); err != nil {
		return nil, err
	}
	quote, cached, err := q.eval.evaluate(ctx, p)
	if err != nil {
		return nil, err
	}
	return toQuoteDTO(quote, cached), nil
}

// GetGreeks 计算指定期权类型的希腊字母
func (q *PricingQueryService) GetGreeks(ctx context.Context, optionType string, p domain.MarketParameters) (*GreeksDTO, error) {
	ot, err := domain.ParseOptionType(optionType)
	if err != nil {
		return nil, err
	}
	if err := q.eval.validate(p); err != nil {
		return nil, err
	}
	quote, _, err := q.eval.evaluate(ctx, p)
	if err != nil {
		return nil, err
	}
	g := toGreeksDTO(quote.GreeksFor(ot))
	return &g, nil
}

// GetLatestResult 获取最新定价结果，无记录时返回 nil, nil
func (q *PricingQueryService) GetLatestResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, ErrSymbolRequired
	}
	if q.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	return q.repo.GetLatest(ctx, symbol)
}

// GetHistory 获取定价历史，按计算时间倒序
func (q *PricingQueryService) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, ErrSymbolRequired
	}
	if q.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	return q.repo.GetHistory(ctx, symbol, utils.ClampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
}
