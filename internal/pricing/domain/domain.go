// Package domain 定价服务的领域模型：Black-Scholes 欧式期权定价与希腊字母
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall OptionType = "CALL" // 看涨期权
	OptionTypePut  OptionType = "PUT"  // 看跌期权
)

// PricingModelBlackScholes 当前唯一支持的定价模型
const PricingModelBlackScholes = "BlackScholes"

// ErrInvalidOptionType 无法识别的期权类型
var ErrInvalidOptionType = errors.New("invalid option type: supported types are CALL, PUT")

// ParseOptionType 解析期权类型，大小写不敏感
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return OptionTypeCall, nil
	case "PUT", "P":
		return OptionTypePut, nil
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidOptionType, s)
}

// PricingResult 定价结果实体
type PricingResult struct {
	ID              uint            `json:"id"`
	Symbol          string          `json:"symbol"`
	OptionType      OptionType      `json:"option_type"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	StrikePrice     decimal.Decimal `json:"strike_price"`
	RiskFreeRate    decimal.Decimal `json:"risk_free_rate"`
	TimeToExpiry    decimal.Decimal `json:"time_to_expiry"`
	Volatility      decimal.Decimal `json:"volatility"`
	OptionPrice     decimal.Decimal `json:"option_price"`
	Delta           decimal.Decimal `json:"delta"`
	Gamma           decimal.Decimal `json:"gamma"`
	Vega            decimal.Decimal `json:"vega"`
	Theta           decimal.Decimal `json:"theta"`
	Rho             decimal.Decimal `json:"rho"`
	PricingModel    string          `json:"pricing_model"`
	CalculatedAt    int64           `json:"calculated_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewPricingResult 由报价生成指定期权类型的定价记录
func NewPricingResult(symbol string, optionType OptionType, q Quote, calculatedAt time.Time) *PricingResult {
	g := q.GreeksFor(optionType)
	return &PricingResult{
		Symbol:          symbol,
		OptionType:      optionType,
		UnderlyingPrice: decimal.NewFromFloat(q.Params.S),
		StrikePrice:     decimal.NewFromFloat(q.Params.K),
		RiskFreeRate:    decimal.NewFromFloat(q.Params.R),
		TimeToExpiry:    decimal.NewFromFloat(q.Params.T),
		Volatility:      decimal.NewFromFloat(q.Params.Sigma),
		OptionPrice:     decimal.NewFromFloat(q.PriceFor(optionType)),
		Delta:           decimal.NewFromFloat(g.Delta),
		Gamma:           decimal.NewFromFloat(g.Gamma),
		Vega:            decimal.NewFromFloat(g.Vega),
		Theta:           decimal.NewFromFloat(g.Theta),
		Rho:             decimal.NewFromFloat(g.Rho),
		PricingModel:    PricingModelBlackScholes,
		CalculatedAt:    calculatedAt.UnixMilli(),
	}
}
