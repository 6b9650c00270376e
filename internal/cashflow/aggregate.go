// Package cashflow holds the read-only cash computations: monthly buckets,
// the live cash balance, the expense breakdown by category, runway
// projection and milestone evaluation. Every function is pure and takes the
// evaluation instant as a parameter.
package cashflow

import (
	"cajaclaro/internal/core"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Totals is the gross movement of a set of transactions.
type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Net returns Income - Expense.
func (t Totals) Net() decimal.Decimal {
	return t.Income.Sub(t.Expense)
}

// Sum adds up income and expense separately.
func Sum(txs []core.Transaction) Totals {
	var out Totals
	for _, tx := range txs {
		switch tx.Tipo {
		case core.Ingreso:
			out.Income = out.Income.Add(tx.Monto)
		case core.Gasto:
			out.Expense = out.Expense.Add(tx.Monto)
		}
	}
	return out
}

// CurrentCashBalance is the opening balance plus all income minus all
// expense ("Caja Viva").
func CurrentCashBalance(txs []core.Transaction, opening decimal.Decimal) decimal.Decimal {
	return opening.Add(Sum(txs).Net())
}

type monthKey struct {
	year  int
	month time.Month
}

// MonthlyBuckets groups transactions by the calendar month of CreatedAt as
// seen in loc and returns the buckets in ascending order, each carrying the
// running balance including opening.
func MonthlyBuckets(txs []core.Transaction, opening decimal.Decimal, loc *time.Location) []core.MonthBucket {
	if loc == nil {
		loc = time.UTC
	}
	groups := make(map[monthKey]*Totals)
	for _, tx := range txs {
		y, m, _ := tx.CreatedAt.In(loc).Date()
		k := monthKey{y, m}
		g, ok := groups[k]
		if !ok {
			g = &Totals{}
			groups[k] = g
		}
		switch tx.Tipo {
		case core.Ingreso:
			g.Income = g.Income.Add(tx.Monto)
		case core.Gasto:
			g.Expense = g.Expense.Add(tx.Monto)
		}
	}

	keys := make([]monthKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	buckets := make([]core.MonthBucket, 0, len(keys))
	running := opening
	for _, k := range keys {
		g := groups[k]
		running = running.Add(g.Net())
		buckets = append(buckets, core.MonthBucket{
			Year:          k.year,
			Month:         int(k.month),
			Income:        g.Income,
			Expense:       g.Expense,
			NetCumulative: running,
		})
	}
	return buckets
}

// CategoryDistribution sums expenses per category, largest first. Ties keep
// the order in which categories were first seen. Blank categories are
// reported as core.CategoriaOtros.
func CategoryDistribution(txs []core.Transaction) []core.CategoryAmount {
	index := make(map[string]int)
	var out []core.CategoryAmount
	for _, tx := range txs {
		if tx.Tipo != core.Gasto {
			continue
		}
		name := strings.TrimSpace(tx.Categoria)
		if name == "" {
			name = core.CategoriaOtros
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, core.CategoryAmount{Name: name})
		}
		out[i].Amount = out[i].Amount.Add(tx.Monto)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	return out
}
