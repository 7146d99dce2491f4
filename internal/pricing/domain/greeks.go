package domain

import "math"

// Greeks 希腊字母
// Vega 以波动率变动 1.00 计，Theta 以年计，Rho 以利率变动 1.00 计。
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

// DeltaCall N(d1)
func DeltaCall(p MarketParameters) float64 {
	return NormCDF(ComputeD1D2(p).D1)
}

// DeltaPut N(d1) - 1
func DeltaPut(p MarketParameters) float64 {
	return NormCDF(ComputeD1D2(p).D1) - 1
}

// Gamma n(d1) / (S·σ·√T)，看涨看跌相同
func Gamma(p MarketParameters) float64 {
	return gammaFrom(p, ComputeD1D2(p))
}

// GammaCall 看涨期权 Gamma
func GammaCall(p MarketParameters) float64 { return Gamma(p) }

// GammaPut 看跌期权 Gamma
func GammaPut(p MarketParameters) float64 { return Gamma(p) }

// Vega S·n(d1)·√T，看涨看跌相同
func Vega(p MarketParameters) float64 {
	return vegaFrom(p, ComputeD1D2(p))
}

// VegaCall 看涨期权 Vega
func VegaCall(p MarketParameters) float64 { return Vega(p) }

// VegaPut 看跌期权 Vega
func VegaPut(p MarketParameters) float64 { return Vega(p) }

// ThetaCall -(S·n(d1)·σ)/(2√T) - r·K·e^{-rT}·N(d2)
func ThetaCall(p MarketParameters) float64 {
	return thetaCallFrom(p, ComputeD1D2(p))
}

// ThetaPut -(S·n(d1)·σ)/(2√T) + r·K·e^{-rT}·N(-d2)
func ThetaPut(p MarketParameters) float64 {
	return thetaPutFrom(p, ComputeD1D2(p))
}

// RhoCall K·T·e^{-rT}·N(d2)
func RhoCall(p MarketParameters) float64 {
	return rhoCallFrom(p, ComputeD1D2(p))
}

// RhoPut -K·T·e^{-rT}·N(-d2)
func RhoPut(p MarketParameters) float64 {
	return rhoPutFrom(p, ComputeD1D2(p))
}

// CallGreeks 看涨期权的全部希腊字母
func CallGreeks(p MarketParameters) Greeks {
	return callGreeksFrom(p, ComputeD1D2(p))
}

// PutGreeks 看跌期权的全部希腊字母
func PutGreeks(p MarketParameters) Greeks {
	return putGreeksFrom(p, ComputeD1D2(p))
}

// GreeksFor 按期权类型计算希腊字母
func GreeksFor(optionType OptionType, p MarketParameters) Greeks {
	if optionType == OptionTypePut {
		return PutGreeks(p)
	}
	return CallGreeks(p)
}

// 以下 *From 函数复用已算好的 d1/d2，供 Evaluate 一次性计算全部结果。

func gammaFrom(p MarketParameters, d D1D2) float64 {
	return NormPDF(d.D1) / (p.S * p.Sigma * math.Sqrt(p.T))
}

func vegaFrom(p MarketParameters, d D1D2) float64 {
	return p.S * NormPDF(d.D1) * math.Sqrt(p.T)
}

// timeDecay 两种期权 theta 共有的第一项
func timeDecay(p MarketParameters, d D1D2) float64 {
	return -(p.S * NormPDF(d.D1) * p.Sigma) / (2 * math.Sqrt(p.T))
}

func thetaCallFrom(p MarketParameters, d D1D2) float64 {
	return timeDecay(p, d) - p.R*p.K*discountFactor(p)*NormCDF(d.D2)
}

func thetaPutFrom(p MarketParameters, d D1D2) float64 {
	return timeDecay(p, d) + p.R*p.K*discountFactor(p)*NormCDF(-d.D2)
}

func rhoCallFrom(p MarketParameters, d D1D2) float64 {
	return p.K * p.T * discountFactor(p) * NormCDF(d.D2)
}

func rhoPutFrom(p MarketParameters, d D1D2) float64 {
	return -p.K * p.T * discountFactor(p) * NormCDF(-d.D2)
}

func callGreeksFrom(p MarketParameters, d D1D2) Greeks {
	return Greeks{
		Delta: NormCDF(d.D1),
		Gamma: gammaFrom(p, d),
		Vega:  vegaFrom(p, d),
		Theta: thetaCallFrom(p, d),
		Rho:   rhoCallFrom(p, d),
	}
}

func putGreeksFrom(p MarketParameters, d D1D2) Greeks {
	return Greeks{
		Delta: NormCDF(d.D1) - 1,
		Gamma: gammaFrom(p, d),
		Vega:  vegaFrom(p, d),
		Theta: thetaPutFrom(p, d),
		Rho:   rhoPutFrom(p, d),
	}
}
