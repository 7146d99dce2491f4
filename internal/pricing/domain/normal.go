package domain

import "math"

// Abramowitz & Stegun 7.1.26 系数，最大绝对误差约 1.5e-7
const (
	asA1 = 0.254829592
	asA2 = -0.284496736
	asA3 = 1.421413741
	asA4 = -1.453152027
	asA5 = 1.061405429
	asP  = 0.3275911
)

// invSqrt2Pi 1/sqrt(2π)
var invSqrt2Pi = 1 / math.Sqrt(2*math.Pi)

// NormCDF 标准正态分布累积分布函数
// 使用 A&S 7.1.26 有理逼近 erf，x=0 按非负处理，结果落在 [0,1]。
func NormCDF(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	ax := math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + asP*ax)
	y := 1.0 - (((((asA5*t+asA4)*t)+asA3)*t+asA2)*t+asA1)*t*math.Exp(-ax*ax)

	return 0.5 * (1.0 + sign*y)
}

// NormPDF 标准正态分布概率密度函数
func NormPDF(x float64) float64 {
	return invSqrt2Pi * math.Exp(-0.5*x*x)
}
