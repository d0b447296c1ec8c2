// Package money 统一金额精度处理
// 所有持久化金额字段在落库边界量化一次，中间计算保留全精度
package money

import (
	"github.com/shopspring/decimal"
)

// Scale 持久化金额的小数位数
const Scale = 2

// Quantize 量化到持久化精度 (四舍五入)
// 每个持久化字段只在写入前调用一次
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Min 返回两个金额中较小者
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThanOrEqual(b) {
		return a
	}
	return b
}
