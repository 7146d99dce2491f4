package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/logger"
	"github.com/wyfcoding/blackscholes/pkg/metrics"
	"github.com/wyfcoding/blackscholes/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Options 应用层参数
type Options struct {
	// 单批最大合约数
	MaxBatchSize int
	// 批量与热力图的并发数
	Workers int
	// 时钟，测试时可替换
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = defaultMaxBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// PricingCommandService 处理定价相关的命令操作
// repo 为空时不落库；publisher 为空时不发布事件。
type PricingCommandService struct {
	repo      domain.PricingRepository
	publisher domain.EventPublisher
	eval      *quoteEvaluator
	metrics   *metrics.Metrics
	opts      Options
}

// NewPricingCommandService 创建新的 PricingCommandService 实例
func NewPricingCommandService(repo domain.PricingRepository, cache domain.QuoteCache, publisher domain.EventPublisher, m *metrics.Metrics, opts Options) *PricingCommandService {
	return &PricingCommandService{
		repo:      repo,
		publisher: publisher,
		eval:      &quoteEvaluator{cache: cache, metrics: m},
		metrics:   m,
		opts:      opts.withDefaults(),
	}
}

// pricedContract 一次成功的单合约计算
type pricedContract struct {
	symbol     string
	optionType domain.OptionType
	quote      domain.Quote
	cached     bool
	result     *domain.PricingResult
}

func (pc *pricedContract) dto() *PricingResultDTO {
	g := pc.quote.GreeksFor(pc.optionType)
	return &PricingResultDTO{
		ID:           pc.result.ID,
		Symbol:       pc.symbol,
		OptionType:   pc.optionType,
		Params:       pc.quote.Params,
		D1:           pc.quote.D1,
		D2:           pc.quote.D2,
		OptionPrice:  pc.quote.PriceFor(pc.optionType),
		Greeks:       toGreeksDTO(g),
		PricingModel: pc.result.PricingModel,
		CalculatedAt: pc.result.CalculatedAt,
		Cached:       pc.cached,
	}
}

func (pc *pricedContract) event(now time.Time) domain.OptionPricedEvent {
	return domain.OptionPricedEvent{
		Symbol:       pc.symbol,
		OptionType:   pc.optionType,
		Params:       pc.quote.Params,
		OptionPrice:  pc.quote.PriceFor(pc.optionType),
		Greeks:       pc.quote.GreeksFor(pc.optionType),
		PricingModel: domain.PricingModelBlackScholes,
		CalculatedAt: pc.result.CalculatedAt,
		OccurredOn:   now,
	}
}

// resolve 解析命令中的期权类型、模型与到期时间，得到待校验的市场参数
func (c *PricingCommandService) resolve(cmd PriceOptionCommand) (domain.OptionType, domain.MarketParameters, error) {
	if strings.TrimSpace(cmd.Symbol) == "" {
		return "", domain.MarketParameters{}, ErrSymbolRequired
	}
	if cmd.PricingModel != "" && !strings.EqualFold(cmd.PricingModel, domain.PricingModelBlackScholes) {
		return "", domain.MarketParameters{}, fmt.Errorf("%w: %q", ErrUnsupportedModel, cmd.PricingModel)
	}
	optionType, err := domain.ParseOptionType(cmd.OptionType)
	if err != nil {
		return "", domain.MarketParameters{}, err
	}

	t := cmd.TimeToExpiry
	if t == 0 && cmd.ExpiryDate != 0 {
		t = float64(cmd.ExpiryDate-c.opts.Now().UnixMilli()) / millisecondsPerYear
	}

	return optionType, domain.MarketParameters{
		S:     cmd.UnderlyingPrice,
		K:     cmd.StrikePrice,
		R:     cmd.RiskFreeRate,
		T:     t,
		Sigma: cmd.Volatility,
	}, nil
}

// price 校验并计算单个合约，不落库
func (c *PricingCommandService) price(ctx context.Context, cmd PriceOptionCommand) (*pricedContract, error) {
	optionType, params, err := c.resolve(cmd)
	if err != nil {
		return nil, err
	}
	if err := c.eval.validate(params); err != nil {
		c.publishRejected(ctx, cmd.Symbol, optionType, params, err)
		return nil, err
	}

	q, cached, err := c.eval.evaluate(ctx, params)
	if err != nil {
		logger.Info(ctx, "market parameters produce a non-finite quote", "symbol", cmd.Symbol, "error", err)
		return nil, err
	}
	c.metrics.RecordQuote(string(optionType))
	return &pricedContract{
		symbol:     cmd.Symbol,
		optionType: optionType,
		quote:      q,
		cached:     cached,
		result:     domain.NewPricingResult(cmd.Symbol, optionType, q, c.opts.Now()),
	}, nil
}

// PriceOption 期权定价：校验、计算、保存结果并发布 OptionPriced 事件
func (c *PricingCommandService) PriceOption(ctx context.Context, cmd PriceOptionCommand) (*PricingResultDTO, error) {
	ctx, span := tracing.StartSpan(ctx, "PricingCommandService.PriceOption",
		trace.WithAttributes(attribute.String("symbol", cmd.Symbol), attribute.String("option_type", cmd.OptionType)))
	defer span.End()

	pc, err := c.price(ctx, cmd)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}

	if err := c.persist(ctx, []*pricedContract{pc}, nil); err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}

	logger.Debug(ctx, "option priced", "symbol", pc.symbol, "option_type", pc.optionType, "price", pc.quote.PriceFor(pc.optionType), "cached", pc.cached)
	return pc.dto(), nil
}

// persist 在同一事务内保存结果并发布事件；没有仓储时仅发布事件，发布失败只记录日志
func (c *PricingCommandService) persist(ctx context.Context, priced []*pricedContract, batchEvent *domain.BatchPricingCompletedEvent) error {
	now := c.opts.Now()
	publishAll := func(ctx context.Context) error {
		for _, pc := range priced {
			if err := c.publish(ctx, domain.OptionPricedEventType, pc.symbol, pc.event(now)); err != nil {
				return err
			}
		}
		if batchEvent != nil {
			return c.publish(ctx, domain.BatchPricingCompletedEventType, batchEvent.BatchID, *batchEvent)
		}
		return nil
	}

	if c.repo == nil {
		if err := publishAll(ctx); err != nil {
			logger.Error(ctx, "failed to publish pricing events", "error", err)
		}
		return nil
	}

	results := make([]*domain.PricingResult, len(priced))
	for i, pc := range priced {
		results[i] = pc.result
	}
	return c.repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if len(results) == 1 {
			err = c.repo.Save(txCtx, results[0])
		} else if len(results) > 1 {
			err = c.repo.SaveBatch(txCtx, results)
		}
		if err != nil {
			return fmt.Errorf("failed to save pricing results: %w", err)
		}
		return publishAll(txCtx)
	})
}

func (c *PricingCommandService) publish(ctx context.Context, eventType, key string, event any) error {
	if c.publisher == nil {
		return nil
	}
	err := c.publisher.Publish(ctx, eventType, key, event)
	c.metrics.RecordEvent(eventType, err)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

// publishRejected 发布参数校验失败事件，失败只记录日志
func (c *PricingCommandService) publishRejected(ctx context.Context, symbol string, optionType domain.OptionType, p domain.MarketParameters, cause error) {
	pe, ok := domain.AsParameterError(cause)
	if !ok {
		return
	}
	logger.Info(ctx, "market parameters rejected", "symbol", symbol, "kind", pe.Kind, "field", pe.Field)
	event := domain.PricingRejectedEvent{
		Symbol:     symbol,
		OptionType: optionType,
		Params:     p.Describe(),
		Kind:       pe.Kind,
		Field:      pe.Field,
		Error:      pe.Reason(),
		OccurredOn: c.opts.Now(),
	}
	if err := c.publish(ctx, domain.PricingRejectedEventType, symbol, event); err != nil {
		logger.Warn(ctx, "failed to publish rejection event", "error", err)
	}
}

// BatchPriceOptions 批量定价：并发计算，结果顺序与输入一致，单项失败不影响其他合约
func (c *PricingCommandService) BatchPriceOptions(ctx context.Context, cmd BatchPriceOptionsCommand) (*BatchPricingResultDTO, error) {
	n := len(cmd.Contracts)
	if n == 0 {
		return nil, ErrEmptyBatch
	}
	if n > c.opts.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, c.opts.MaxBatchSize)
	}
	batchID := cmd.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	ctx, span := tracing.StartSpan(ctx, "PricingCommandService.BatchPriceOptions",
		trace.WithAttributes(attribute.String("batch_id", batchID), attribute.Int("contracts", n)))
	defer span.End()

	start := time.Now()
	c.metrics.RecordBatch(n)

	priced := make([]*pricedContract, n)
	failures := make([]error, n)

	p := pool.New().WithMaxGoroutines(c.opts.Workers)
	for i, contract := range cmd.Contracts {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				failures[i] = err
				return
			}
			priced[i], failures[i] = c.price(ctx, contract)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &BatchPricingResultDTO{BatchID: batchID, Items: make([]BatchItemDTO, n)}
	ok := make([]*pricedContract, 0, n)
	symbolSet := make(map[string]struct{})
	symbols := make([]string, 0)
	for i := range cmd.Contracts {
		item := BatchItemDTO{Index: i, Symbol: cmd.Contracts[i].Symbol}
		if err := failures[i]; err != nil {
			item.Error = err.Error()
			if pe, isParam := domain.AsParameterError(err); isParam {
				item.Kind, item.Field, item.Error = pe.Kind, pe.Field, pe.Reason()
			}
			out.FailureCount++
		} else {
			ok = append(ok, priced[i])
			out.SuccessCount++
			if _, seen := symbolSet[priced[i].symbol]; !seen {
				symbolSet[priced[i].symbol] = struct{}{}
				symbols = append(symbols, priced[i].symbol)
			}
		}
		out.Items[i] = item
	}
	out.ElapsedMillis = time.Since(start).Milliseconds()

	batchEvent := &domain.BatchPricingCompletedEvent{
		BatchID:        batchID,
		Symbols:        symbols,
		TotalContracts: n,
		SuccessCount:   out.SuccessCount,
		FailureCount:   out.FailureCount,
		ElapsedMillis:  out.ElapsedMillis,
		CompletedAt:    c.opts.Now().UnixMilli(),
		OccurredOn:     c.opts.Now(),
	}
	if err := c.persist(ctx, ok, batchEvent); err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}

	// 落库后才有 ID
	for i := range out.Items {
		if failures[i] == nil {
			out.Items[i].Result = priced[i].dto()
		}
	}

	logger.Info(ctx, "batch priced", "batch_id", batchID, "contracts", n, "success", out.SuccessCount, "failure", out.FailureCount)
	return out, nil
}

// BuildHeatmap 现价 × 波动率 网格定价，按行并发计算
func (c *PricingCommandService) BuildHeatmap(ctx context.Context, cmd HeatmapCommand) (*HeatmapDTO, error) {
	ctx, span := tracing.StartSpan(ctx, "PricingCommandService.BuildHeatmap")
	defer span.End()

	if err := c.eval.validate(cmd.Params); err != nil {
		return nil, err
	}
	spec := domain.DefaultHeatmapSpec(cmd.Params)
	if cmd.Spec != nil {
		spec = *cmd.Spec
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	h := domain.NewHeatmap(spec)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i := range h.Vols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h.FillRow(cmd.Params, i)
			return h.CheckRow(i)
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrNonFiniteResult) {
			c.metrics.RecordValidationFailure(nonFiniteKind)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.metrics.RecordHeatmap(spec.SpotSteps * spec.VolSteps)
	return &HeatmapDTO{Params: cmd.Params, Spec: spec, Heatmap: h}, nil
}

// IsClientError 判断错误是否由请求参数导致
func IsClientError(err error) bool {
	if _, ok := domain.AsParameterError(err); ok {
		return true
	}
	return errors.Is(err, ErrSymbolRequired) ||
		errors.Is(err, ErrUnsupportedModel) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, domain.ErrInvalidHeatmap) ||
		errors.Is(err, domain.ErrNonFiniteResult) ||
		errors.Is(err, domain.ErrInvalidOptionType)
}
