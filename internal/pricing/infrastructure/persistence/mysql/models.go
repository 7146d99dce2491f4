package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Amount 定价数值列：mysql/postgres 使用 decimal(32,18)，sqlite 使用 TEXT 以免按 REAL 取整
type Amount struct {
	decimal.Decimal
}

// GormDBDataType 按方言选择列类型
func (Amount) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "sqlite" {
		return "text"
	}
	return "decimal(32,18)"
}

// PricingResultModel 定价结果数据库模型
type PricingResultModel struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	Symbol          string    `gorm:"column:symbol;type:varchar(32);index:idx_symbol_calc,priority:1;not null"`
	OptionType      string    `gorm:"column:option_type;type:varchar(8);not null"`
	UnderlyingPrice Amount    `gorm:"column:underlying_price;not null"`
	StrikePrice     Amount    `gorm:"column:strike_price;not null"`
	RiskFreeRate    Amount    `gorm:"column:risk_free_rate;not null"`
	TimeToExpiry    Amount    `gorm:"column:time_to_expiry;not null"`
	Volatility      Amount    `gorm:"column:volatility;not null"`
	OptionPrice     Amount    `gorm:"column:option_price;not null"`
	Delta           Amount    `gorm:"column:delta"`
	Gamma           Amount    `gorm:"column:gamma"`
	Vega            Amount    `gorm:"column:vega"`
	Theta           Amount    `gorm:"column:theta"`
	Rho             Amount    `gorm:"column:rho"`
	PricingModel    string    `gorm:"column:pricing_model;type:varchar(32)"`
	CalculatedAt    int64     `gorm:"column:calculated_at;type:bigint;index:idx_symbol_calc,priority:2;not null"`
}

func (PricingResultModel) TableName() string { return "pricing_results" }

// AutoMigrate 创建或更新定价结果表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&PricingResultModel{})
}

func toPricingResultModel(res *domain.PricingResult) *PricingResultModel {
	if res == nil {
		return nil
	}
	return &PricingResultModel{
		ID:              res.ID,
		CreatedAt:       res.CreatedAt,
		Symbol:          res.Symbol,
		OptionType:      string(res.OptionType),
		UnderlyingPrice: Amount{res.UnderlyingPrice},
		StrikePrice:     Amount{res.StrikePrice},
		RiskFreeRate:    Amount{res.RiskFreeRate},
		TimeToExpiry:    Amount{res.TimeToExpiry},
		Volatility:      Amount{res.Volatility},
		OptionPrice:     Amount{res.OptionPrice},
		Delta:           Amount{res.Delta},
		Gamma:           Amount{res.Gamma},
		Vega:            Amount{res.Vega},
		Theta:           Amount{res.Theta},
		Rho:             Amount{res.Rho},
		PricingModel:    res.PricingModel,
		CalculatedAt:    res.CalculatedAt,
	}
}

func toPricingResult(m *PricingResultModel) *domain.PricingResult {
	if m == nil {
		return nil
	}
	return &domain.PricingResult{
		ID:              m.ID,
		CreatedAt:       m.CreatedAt,
		Symbol:          m.Symbol,
		OptionType:      domain.OptionType(m.OptionType),
		UnderlyingPrice: m.UnderlyingPrice.Decimal,
		StrikePrice:     m.StrikePrice.Decimal,
		RiskFreeRate:    m.RiskFreeRate.Decimal,
		TimeToExpiry:    m.TimeToExpiry.Decimal,
		Volatility:      m.Volatility.Decimal,
		OptionPrice:     m.OptionPrice.Decimal,
		Delta:           m.Delta.Decimal,
		Gamma:           m.Gamma.Decimal,
		Vega:            m.Vega.Decimal,
		Theta:           m.Theta.Decimal,
		Rho:             m.Rho.Decimal,
		PricingModel:    m.PricingModel,
		CalculatedAt:    m.CalculatedAt,
	}
}
