package domain

import "time"

const (
	OptionPricedEventType          = "OptionPriced"
	PricingRejectedEventType       = "PricingRejected"
	BatchPricingCompletedEventType = "BatchPricingCompleted"
)

// OptionPricedEvent 期权定价完成事件
type OptionPricedEvent struct {
	Symbol       string           `json:"symbol"`
	OptionType   OptionType       `json:"option_type"`
	Params       MarketParameters `json:"params"`
	OptionPrice  float64          `json:"option_price"`
	Greeks       Greeks           `json:"greeks"`
	PricingModel string           `json:"pricing_model"`
	CalculatedAt int64            `json:"calculated_at"`
	OccurredOn   time.Time        `json:"occurred_on"`
}

// PricingRejectedEvent 参数校验未通过事件
type PricingRejectedEvent struct {
	Symbol     string           `json:"symbol"`
	OptionType OptionType       `json:"option_type"`
	Params     map[Field]string `json:"params"`
	Kind       ErrorKind        `json:"kind"`
	Field      Field            `json:"field"`
	Error      string           `json:"error"`
	OccurredOn time.Time        `json:"occurred_on"`
}

// BatchPricingCompletedEvent 批量定价完成事件
type BatchPricingCompletedEvent struct {
	BatchID        string    `json:"batch_id"`
	Symbols        []string  `json:"symbols"`
	TotalContracts int       `json:"total_contracts"`
	SuccessCount   int       `json:"success_count"`
	FailureCount   int       `json:"failure_count"`
	ElapsedMillis  int64     `json:"elapsed_millis"`
	CompletedAt    int64     `json:"completed_at"`
	OccurredOn     time.Time `json:"occurred_on"`
}
