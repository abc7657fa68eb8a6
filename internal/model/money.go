package model

import (
	"github.com/shopspring/decimal"
)

// MoneyScale 金额统一保留两位小数
const MoneyScale = 2

// MoneyEpsilon 多次部分付款后残留的尾差在该容差内视为 0
var MoneyEpsilon = decimal.New(1, -MoneyScale)

// IsMoneyPrecision 金额最多两位小数
func IsMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// ValidAmount 金额必须为正且不超过两位小数
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && IsMoneyPrecision(d)
}

// NearlyZero |d| <= 0.01
func NearlyZero(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(MoneyEpsilon)
}

// RoundMoney 聚合查询的结果在 SQLite 上是浮点数，读出后统一取整到分
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}
