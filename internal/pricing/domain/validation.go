package domain

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
)

// ErrorKind 参数校验失败的类别
type ErrorKind string

const (
	KindInvalidStockPrice       ErrorKind = "InvalidStockPrice"
	KindInvalidStrikePrice      ErrorKind = "InvalidStrikePrice"
	KindInvalidRate             ErrorKind = "InvalidRate"
	KindInvalidTimeToExpiration ErrorKind = "InvalidTimeToExpiration"
	KindInvalidVolatility       ErrorKind = "InvalidVolatility"
)

// Field 市场参数字段
type Field string

const (
	FieldStockPrice  Field = "S"
	FieldStrikePrice Field = "K"
	FieldRate        Field = "r"
	FieldTime        Field = "T"
	FieldVolatility  Field = "sigma"
)

// Fields 按校验与录入顺序排列
var Fields = []Field{FieldStockPrice, FieldStrikePrice, FieldRate, FieldTime, FieldVolatility}

// 哨兵错误，配合 errors.Is 使用
var (
	ErrInvalidStockPrice       = errors.New("stock price must be a positive number")
	ErrInvalidStrikePrice      = errors.New("strike price must be a positive number")
	ErrInvalidRate             = errors.New("interest rate cannot be a negative number")
	ErrInvalidTimeToExpiration = errors.New("time to expiration must be a positive number")
	ErrInvalidVolatility       = errors.New("volatility must be a positive number")
)

type fieldRule struct {
	kind     ErrorKind
	sentinel error
	// allowZero r 允许为 0，其余字段必须严格为正
	allowZero bool
}

var fieldRules = map[Field]fieldRule{
	FieldStockPrice:  {kind: KindInvalidStockPrice, sentinel: ErrInvalidStockPrice},
	FieldStrikePrice: {kind: KindInvalidStrikePrice, sentinel: ErrInvalidStrikePrice},
	FieldRate:        {kind: KindInvalidRate, sentinel: ErrInvalidRate, allowZero: true},
	FieldTime:        {kind: KindInvalidTimeToExpiration, sentinel: ErrInvalidTimeToExpiration},
	FieldVolatility:  {kind: KindInvalidVolatility, sentinel: ErrInvalidVolatility},
}

// ParameterError 单个参数校验失败
type ParameterError struct {
	Kind  ErrorKind `json:"kind"`
	Field Field     `json:"field"`
	Value float64   `json:"-"`
	cause error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s=%v: %v", e.Kind, e.Field, e.Value, e.cause)
}

// Unwrap 返回对应的哨兵错误
func (e *ParameterError) Unwrap() error {
	return e.cause
}

// HTTPStatus 参数错误统一映射为 400
func (e *ParameterError) HTTPStatus() int {
	return http.StatusBadRequest
}

// Reason 面向用户的说明
func (e *ParameterError) Reason() string {
	return e.cause.Error()
}

// ValidateField 校验单个字段，NaN 与 ±Inf 一律视为非法
func ValidateField(field Field, v float64) error {
	rule, ok := fieldRules[field]
	if !ok {
		return fmt.Errorf("unknown market parameter %q", field)
	}

	valid := !math.IsNaN(v) && !math.IsInf(v, 0)
	if rule.allowZero {
		valid = valid && v >= 0
	} else {
		valid = valid && v > 0
	}
	if valid {
		return nil
	}
	return &ParameterError{Kind: rule.kind, Field: field, Value: v, cause: rule.sentinel}
}

// Validate 按 S、K、r、T、σ 顺序校验，返回第一个失败的字段
func Validate(p MarketParameters) error {
	for _, f := range Fields {
		if err := ValidateField(f, p.Get(f)); err != nil {
			return err
		}
	}
	return nil
}

// Get 按字段取值
func (p MarketParameters) Get(f Field) float64 {
	switch f {
	case FieldStockPrice:
		return p.S
	case FieldStrikePrice:
		return p.K
	case FieldRate:
		return p.R
	case FieldTime:
		return p.T
	case FieldVolatility:
		return p.Sigma
	}
	return math.NaN()
}

// Set 按字段赋值
func (p *MarketParameters) Set(f Field, v float64) {
	switch f {
	case FieldStockPrice:
		p.S = v
	case FieldStrikePrice:
		p.K = v
	case FieldRate:
		p.R = v
	case FieldTime:
		p.T = v
	case FieldVolatility:
		p.Sigma = v
	}
}

// Describe 各字段的文本形式，NaN 与 ±Inf 也能安全序列化
func (p MarketParameters) Describe() map[Field]string {
	out := make(map[Field]string, len(Fields))
	for _, f := range Fields {
		out[f] = strconv.FormatFloat(p.Get(f), 'g', -1, 64)
	}
	return out
}

// AsParameterError 提取 *ParameterError
func AsParameterError(err error) (*ParameterError, bool) {
	var pe *ParameterError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
