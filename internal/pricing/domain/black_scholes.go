package domain

import "math"

// MarketParameters Black-Scholes 模型输入
// 调用方需先通过 Validate 校验；本包的定价函数不做任何校验。
type MarketParameters struct {
	S     float64 `json:"underlying_price"` // 标的资产现价
	K     float64 `json:"strike_price"`     // 执行价格
	R     float64 `json:"risk_free_rate"`   // 无风险利率 (年化，连续复利)
	T     float64 `json:"time_to_expiry"`   // 到期时间 (年)
	Sigma float64 `json:"volatility"`       // 波动率 (年化)
}

// D1D2 Black-Scholes 中间变量
type D1D2 struct {
	D1 float64 `json:"d1"`
	D2 float64 `json:"d2"`
}

// ComputeD1D2 计算 d1、d2
//
//	d1 = (ln(S/K) + (r + σ²/2)T) / (σ√T)
//	d2 = d1 - σ√T
//
// S、K、T、σ 非正时返回 NaN 或 ±Inf，不会报错。
func ComputeD1D2(p MarketParameters) D1D2 {
	volSqrtT := p.Sigma * math.Sqrt(p.T)
	d1 := (math.Log(p.S/p.K) + (p.R+0.5*p.Sigma*p.Sigma)*p.T) / volSqrtT
	return D1D2{D1: d1, D2: d1 - volSqrtT}
}

// discountFactor e^{-rT}
func discountFactor(p MarketParameters) float64 {
	return math.Exp(-p.R * p.T)
}

// CallPrice 欧式看涨期权价格: S·N(d1) - K·e^{-rT}·N(d2)
func CallPrice(p MarketParameters) float64 {
	d := ComputeD1D2(p)
	return p.S*NormCDF(d.D1) - p.K*discountFactor(p)*NormCDF(d.D2)
}

// PutPrice 欧式看跌期权价格: K·e^{-rT}·N(-d2) - S·N(-d1)
func PutPrice(p MarketParameters) float64 {
	d := ComputeD1D2(p)
	return p.K*discountFactor(p)*NormCDF(-d.D2) - p.S*NormCDF(-d.D1)
}

// Price 按期权类型定价
func Price(optionType OptionType, p MarketParameters) float64 {
	if optionType == OptionTypePut {
		return PutPrice(p)
	}
	return CallPrice(p)
}
