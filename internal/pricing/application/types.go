package application

import (
	"errors"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
)

var (
	ErrSymbolRequired      = errors.New("symbol is required")
	ErrUnsupportedModel    = errors.New("unsupported pricing model: only BlackScholes is available")
	ErrEmptyBatch          = errors.New("batch contains no contracts")
	ErrBatchTooLarge       = errors.New("batch exceeds the maximum number of contracts")
	ErrPersistenceDisabled = errors.New("pricing history is not available: no database configured")
)

const (
	millisecondsPerYear = 365 * 24 * 3600 * 1000.0
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	defaultMaxBatchSize = 500
	defaultWorkers      = 8
)

// PriceOptionCommand 期权定价命令
type PriceOptionCommand struct {
	Symbol          string  `json:"symbol"`
	OptionType      string  `json:"option_type"`
	UnderlyingPrice float64 `json:"underlying_price"`
	StrikePrice     float64 `json:"strike_price"`
	RiskFreeRate    float64 `json:"risk_free_rate"`
	// TimeToExpiry 以年计；为 0 时由 ExpiryDate 推算
	TimeToExpiry float64 `json:"time_to_expiry"`
	// ExpiryDate 到期时间戳（毫秒）
	ExpiryDate   int64   `json:"expiry_date"`
	Volatility   float64 `json:"volatility"`
	PricingModel string  `json:"pricing_model"`
}

// BatchPriceOptionsCommand 批量定价命令
type BatchPriceOptionsCommand struct {
	BatchID   string               `json:"batch_id"`
	Contracts []PriceOptionCommand `json:"contracts"`
}

// HeatmapCommand 热力图命令；Spec 为空时使用默认网格
type HeatmapCommand struct {
	Params domain.MarketParameters `json:"params"`
	Spec   *domain.HeatmapSpec     `json:"spec,omitempty"`
}

// GreeksDTO 希腊字母
type GreeksDTO struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

func toGreeksDTO(g domain.Greeks) GreeksDTO {
	return GreeksDTO{Delta: g.Delta, Gamma: g.Gamma, Vega: g.Vega, Theta: g.Theta, Rho: g.Rho}
}

// PricingResultDTO 单个合约的定价结果
type PricingResultDTO struct {
	ID           uint                    `json:"id,omitempty"`
	Symbol       string                  `json:"symbol"`
	OptionType   domain.OptionType       `json:"option_type"`
	Params       domain.MarketParameters `json:"params"`
	D1           float64                 `json:"d1"`
	D2           float64                 `json:"d2"`
	OptionPrice  float64                 `json:"option_price"`
	Greeks       GreeksDTO               `json:"greeks"`
	PricingModel string                  `json:"pricing_model"`
	CalculatedAt int64                   `json:"calculated_at"`
	Cached       bool                    `json:"cached"`
}

// QuoteDTO 看涨与看跌的完整报价
type QuoteDTO struct {
	Params     domain.MarketParameters `json:"params"`
	D1         float64                 `json:"d1"`
	D2         float64                 `json:"d2"`
	CallPrice  float64                 `json:"call_price"`
	PutPrice   float64                 `json:"put_price"`
	CallGreeks GreeksDTO               `json:"call_greeks"`
	PutGreeks  GreeksDTO               `json:"put_greeks"`
	Cached     bool                    `json:"cached"`
}

func toQuoteDTO(q domain.Quote, cached bool) *QuoteDTO {
	return &QuoteDTO{
		Params:     q.Params,
		D1:         q.D1,
		D2:         q.D2,
		CallPrice:  q.CallPrice,
		PutPrice:   q.PutPrice,
		CallGreeks: toGreeksDTO(q.Call),
		PutGreeks:  toGreeksDTO(q.Put),
		Cached:     cached,
	}
}

// BatchItemDTO 批量中的单项结果，Result 与 Error 二选一
type BatchItemDTO struct {
	Index  int               `json:"index"`
	Symbol string            `json:"symbol"`
	Result *PricingResultDTO `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Kind   domain.ErrorKind  `json:"kind,omitempty"`
	Field  domain.Field      `json:"field,omitempty"`
}

// BatchPricingResultDTO 批量定价结果，Items 与输入顺序一致
type BatchPricingResultDTO struct {
	BatchID       string         `json:"batch_id"`
	Items         []BatchItemDTO `json:"items"`
	SuccessCount  int            `json:"success_count"`
	FailureCount  int            `json:"failure_count"`
	ElapsedMillis int64          `json:"elapsed_millis"`
}

// HeatmapDTO 热力图结果
type HeatmapDTO struct {
	Params domain.MarketParameters `json:"params"`
	Spec   domain.HeatmapSpec      `json:"spec"`
	*domain.Heatmap
}
