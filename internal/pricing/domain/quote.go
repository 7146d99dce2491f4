package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFiniteResult 参数通过校验但计算下溢或溢出，结果不是有限值
var ErrNonFiniteResult = errors.New("market parameters produce a non-finite result")

// Quote 一组市场参数下的完整报价：两种期权的价格与希腊字母
type Quote struct {
	Params    MarketParameters `json:"params"`
	D1        float64          `json:"d1"`
	D2        float64          `json:"d2"`
	CallPrice float64          `json:"call_price"`
	PutPrice  float64          `json:"put_price"`
	Call      Greeks           `json:"call_greeks"`
	Put       Greeks           `json:"put_greeks"`
}

// Evaluate 只计算一次 d1/d2，结果与逐个调用各定价函数完全一致
func Evaluate(p MarketParameters) Quote {
	d := ComputeD1D2(p)
	df := discountFactor(p)
	return Quote{
		Params:    p,
		D1:        d.D1,
		D2:        d.D2,
		CallPrice: p.S*NormCDF(d.D1) - p.K*df*NormCDF(d.D2),
		PutPrice:  p.K*df*NormCDF(-d.D2) - p.S*NormCDF(-d.D1),
		Call:      callGreeksFrom(p, d),
		Put:       putGreeksFrom(p, d),
	}
}

// PriceFor 按期权类型取价格
func (q Quote) PriceFor(optionType OptionType) float64 {
	if optionType == OptionTypePut {
		return q.PutPrice
	}
	return q.CallPrice
}

// GreeksFor 按期权类型取希腊字母
func (q Quote) GreeksFor(optionType OptionType) Greeks {
	if optionType == OptionTypePut {
		return q.Put
	}
	return q.Call
}

// CheckFinite 任一价格、d1/d2 或希腊字母为 NaN/±Inf 时返回 ErrNonFiniteResult
func (q Quote) CheckFinite() error {
	values := []struct {
		name string
		v    float64
	}{
		{"d1", q.D1}, {"d2", q.D2},
		{"call_price", q.CallPrice}, {"put_price", q.PutPrice},
		{"call.delta", q.Call.Delta}, {"call.gamma", q.Call.Gamma}, {"call.vega", q.Call.Vega},
		{"call.theta", q.Call.Theta}, {"call.rho", q.Call.Rho},
		{"put.delta", q.Put.Delta}, {"put.gamma", q.Put.Gamma}, {"put.vega", q.Put.Vega},
		{"put.theta", q.Put.Theta}, {"put.rho", q.Put.Rho},
	}
	for _, x := range values {
		if !isFinite(x.v) {
			return fmt.Errorf("%w: %s is %v", ErrNonFiniteResult, x.name, x.v)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
