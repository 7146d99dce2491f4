package application

import (
	"context"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/metrics"
)

// PricingService 定价门面服务。
type PricingService struct {
	Command *PricingCommandService
	Query   *PricingQueryService
}

// NewPricingService 构造函数。repo、cache、publisher、m 均可为 nil。
func NewPricingService(repo domain.PricingRepository, cache domain.QuoteCache, publisher domain.EventPublisher, m *metrics.Metrics, opts Options) *PricingService {
	return &PricingService{
		Command: NewPricingCommandService(repo, cache, publisher, m, opts),
		Query:   NewPricingQueryService(repo, cache, m),
	}
}

// --- Command Facade ---

func (s *PricingService) PriceOption(ctx context.Context, cmd PriceOptionCommand) (*PricingResultDTO, error) {
	return s.Command.PriceOption(ctx, cmd)
}

func (s *PricingService) BatchPriceOptions(ctx context.Context, cmd BatchPriceOptionsCommand) (*BatchPricingResultDTO, error) {
	return s.Command.BatchPriceOptions(ctx, cmd)
}

func (s *PricingService) BuildHeatmap(ctx context.Context, cmd HeatmapCommand) (*HeatmapDTO, error) {
	return s.Command.BuildHeatmap(ctx, cmd)
}

// --- Query Facade ---

func (s *PricingService) Quote(ctx context.Context, p domain.MarketParameters) (*QuoteDTO, error) {
	return s.Query.Quote(ctx, p)
}

func (s *PricingService) GetGreeks(ctx context.Context, optionType string, p domain.MarketParameters) (*GreeksDTO, error) {
	return s.Query.GetGreeks(ctx, optionType, p)
}

func (s *PricingService) GetLatestResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	return s.Query.GetLatestResult(ctx, symbol)
}

func (s *PricingService) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	return s.Query.GetHistory(ctx, symbol, limit)
}
