package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an expense total aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// MonthBucket is the cash movement of one calendar month. NetCumulative is
// the running balance at the end of the month, opening balance included.
type MonthBucket struct {
	Year          int
	Month         int // 1-12
	Income        decimal.Decimal
	Expense       decimal.Decimal
	NetCumulative decimal.Decimal
}

// Net is the month's own contribution to the balance.
func (b MonthBucket) Net() decimal.Decimal {
	return b.Income.Sub(b.Expense)
}
