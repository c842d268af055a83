package model

import "github.com/shopspring/decimal"

// FormatCost renders a cost the way the storefront displays it: "$" followed
// by the exact amount. Integral costs print without a fractional part.
// Examples: 100 → "$100", 12.5 → "$12.5"
func FormatCost(d decimal.Decimal) string {
	return "$" + d.String()
}

// LineCost returns cost × quantity without rounding.
func LineCost(cost decimal.Decimal, quantity int) decimal.Decimal {
	return cost.Mul(decimal.NewFromInt(int64(quantity)))
}
