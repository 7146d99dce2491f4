package application

import (
	"context"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/logger"
	"github.com/wyfcoding/blackscholes/pkg/metrics"
)

// nonFiniteKind 非有限结果在校验失败指标中的类别
const nonFiniteKind = "NonFiniteResult"

// quoteEvaluator 带缓存的报价计算，缓存故障只记录日志不影响定价
type quoteEvaluator struct {
	cache   domain.QuoteCache
	metrics *metrics.Metrics
}

// evaluate 调用方须先完成参数校验；第二个返回值表示是否命中缓存。
// 结果含非有限值时返回 ErrNonFiniteResult，且不写入缓存。
func (e *quoteEvaluator) evaluate(ctx context.Context, p domain.MarketParameters) (domain.Quote, bool, error) {
	if e.cache != nil {
		cached, err := e.cache.Get(ctx, p)
		if err != nil {
			logger.Warn(ctx, "quote cache lookup failed", "error", err)
		}
		if cached != nil {
			e.metrics.RecordCache(true)
			return *cached, true, nil
		}
		e.metrics.RecordCache(false)
	}

	q := domain.Evaluate(p)
	if err := q.CheckFinite(); err != nil {
		e.metrics.RecordValidationFailure(nonFiniteKind)
		return domain.Quote{}, false, err
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, q); err != nil {
			logger.Warn(ctx, "quote cache store failed", "error", err)
		}
	}
	return q, false, nil
}

// validate 校验参数并按错误类型计数
func (e *quoteEvaluator) validate(p domain.MarketParameters) error {
	if err := domain.Validate(p); err != nil {
		if pe, ok := domain.AsParameterError(err); ok {
			e.metrics.RecordValidationFailure(string(pe.Kind))
		}
		return err
	}
	return nil
}
