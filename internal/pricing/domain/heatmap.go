package domain

import (
	"errors"
	"fmt"
	"math"
)

// MaxHeatmapSteps 每个维度的最大网格数
const MaxHeatmapSteps = 50

// ErrInvalidHeatmap 热力图参数非法
var ErrInvalidHeatmap = errors.New("invalid heatmap spec")

// HeatmapSpec 现价 × 波动率 网格定义
type HeatmapSpec struct {
	SpotMin   float64 `json:"spot_min"`
	SpotMax   float64 `json:"spot_max"`
	VolMin    float64 `json:"vol_min"`
	VolMax    float64 `json:"vol_max"`
	SpotSteps int     `json:"spot_steps"`
	VolSteps  int     `json:"vol_steps"`
}

// Heatmap 看涨/看跌价格矩阵，行对应波动率，列对应现价
type Heatmap struct {
	Spots []float64   `json:"spots"`
	Vols  []float64   `json:"vols"`
	Call  [][]float64 `json:"call"`
	Put   [][]float64 `json:"put"`
}

// DefaultHeatmapSpec 现价 ±20%，波动率 50%~150%，10×10
func DefaultHeatmapSpec(p MarketParameters) HeatmapSpec {
	return HeatmapSpec{
		SpotMin:   p.S * 0.8,
		SpotMax:   p.S * 1.2,
		VolMin:    p.Sigma * 0.5,
		VolMax:    p.Sigma * 1.5,
		SpotSteps: 10,
		VolSteps:  10,
	}
}

// Validate 校验网格参数
func (s HeatmapSpec) Validate() error {
	if err := checkRange("spot", s.SpotMin, s.SpotMax); err != nil {
		return err
	}
	if err := checkRange("vol", s.VolMin, s.VolMax); err != nil {
		return err
	}
	if s.SpotSteps < 1 || s.SpotSteps > MaxHeatmapSteps {
		return fmt.Errorf("%w: spot_steps must be in [1, %d], got %d", ErrInvalidHeatmap, MaxHeatmapSteps, s.SpotSteps)
	}
	if s.VolSteps < 1 || s.VolSteps > MaxHeatmapSteps {
		return fmt.Errorf("%w: vol_steps must be in [1, %d], got %d", ErrInvalidHeatmap, MaxHeatmapSteps, s.VolSteps)
	}
	return nil
}

func checkRange(name string, lo, hi float64) error {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return fmt.Errorf("%w: %s range must be finite", ErrInvalidHeatmap, name)
	}
	if lo <= 0 {
		return fmt.Errorf("%w: %s_min must be positive, got %v", ErrInvalidHeatmap, name, lo)
	}
	if hi < lo {
		return fmt.Errorf("%w: %s_max %v is below %s_min %v", ErrInvalidHeatmap, name, hi, name, lo)
	}
	return nil
}

// Linspace 闭区间 [lo, hi] 上的 n 个等距点
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// NewHeatmap 分配网格坐标与空矩阵
func NewHeatmap(spec HeatmapSpec) *Heatmap {
	h := &Heatmap{
		Spots: Linspace(spec.SpotMin, spec.SpotMax, spec.SpotSteps),
		Vols:  Linspace(spec.VolMin, spec.VolMax, spec.VolSteps),
		Call:  make([][]float64, spec.VolSteps),
		Put:   make([][]float64, spec.VolSteps),
	}
	return h
}

// FillRow 计算第 i 行（固定波动率 Vols[i]），各行互不共享写入区域，可并发调用
func (h *Heatmap) FillRow(base MarketParameters, i int) {
	call := make([]float64, len(h.Spots))
	put := make([]float64, len(h.Spots))
	p := base
	p.Sigma = h.Vols[i]
	for j, spot := range h.Spots {
		p.S = spot
		q := Evaluate(p)
		call[j] = q.CallPrice
		put[j] = q.PutPrice
	}
	h.Call[i] = call
	h.Put[i] = put
}

// CheckRow 第 i 行存在非有限价格时返回 ErrNonFiniteResult
func (h *Heatmap) CheckRow(i int) error {
	for j := range h.Spots {
		if !isFinite(h.Call[i][j]) || !isFinite(h.Put[i][j]) {
			return fmt.Errorf("%w: spot %v, volatility %v", ErrNonFiniteResult, h.Spots[j], h.Vols[i])
		}
	}
	return nil
}

// BuildHeatmap 顺序计算整个网格；base 中的 S 与 σ 被网格坐标覆盖
func BuildHeatmap(base MarketParameters, spec HeatmapSpec) *Heatmap {
	h := NewHeatmap(spec)
	for i := range h.Vols {
		h.FillRow(base, i)
	}
	return h
}
