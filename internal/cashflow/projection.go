package cashflow

import (
	"cajaclaro/internal/core"
	"time"

	"github.com/shopspring/decimal"
)

// WindowMonths is the length of the trailing history used for averages.
const WindowMonths = 6

// MinHistory is the number of transactions below which the account's static
// estimates are used instead of its history.
const MinHistory = 2

// criticalRunway is the runway, in months, under which the tier is critical.
var criticalRunway = decimal.NewFromInt(3)

var hundred = decimal.NewFromInt(100)

type RiskTier string

const (
	TierSafe     RiskTier = "safe"
	TierWarning  RiskTier = "warning"
	TierCritical RiskTier = "critical"
)

// Fallback holds the monthly estimates declared during onboarding.
type Fallback struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// FallbackFor reads the static estimates of an account.
func FallbackFor(a core.Account) Fallback {
	return Fallback{Income: a.IngresosMensuales, Expense: a.MonthlyExpenseEstimate()}
}

type RunwayInput struct {
	Transactions   []core.Transaction
	OpeningBalance decimal.Decimal
	Fallback       Fallback
	ShockPercent   decimal.Decimal // 0..100, applied to average income
	Now            time.Time
	Location       *time.Location
}

type Projection struct {
	MonthsAnalyzed      int
	IncomeAvg           decimal.Decimal
	ExpenseAvg          decimal.Decimal
	ShockedIncome       decimal.Decimal
	NetMonthlyFlow      decimal.Decimal
	Unbounded           bool            // surplus: cash never runs out
	RunwayMonths        decimal.Decimal // floored at zero, meaningless when Unbounded
	// RawRunwayMonths is the unclamped value. With a negative opening
	// balance it is negative and moves toward zero as the shock grows, so
	// unlike RunwayMonths it is not monotonic in the shock.
	RawRunwayMonths     decimal.Decimal
	RiskTier            RiskTier
	EsBasadoEnHistorial bool
	ShockPercent        decimal.Decimal
	OpeningBalance      decimal.Decimal
}

// ProjectRunway estimates how many months the opening balance lasts under the
// trailing average flow with income reduced by ShockPercent.
func ProjectRunway(in RunwayInput) (Projection, error) {
	if in.ShockPercent.IsNegative() || in.ShockPercent.GreaterThan(hundred) {
		return Projection{}, core.ErrInvalidShock
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	p := Projection{
		ShockPercent:   in.ShockPercent,
		OpeningBalance: in.OpeningBalance,
	}

	window := TrailingWindow(in.Transactions, in.Now, WindowMonths, loc)
	if len(window) < MinHistory {
		p.IncomeAvg = in.Fallback.Income
		p.ExpenseAvg = in.Fallback.Expense
	} else {
		months := distinctMonths(window, loc)
		totals := Sum(window)
		n := decimal.NewFromInt(int64(months))
		p.MonthsAnalyzed = months
		p.IncomeAvg = totals.Income.Div(n).Round(core.MoneyScale)
		p.ExpenseAvg = totals.Expense.Div(n).Round(core.MoneyScale)
		p.EsBasadoEnHistorial = true
	}

	keep := hundred.Sub(in.ShockPercent).Div(hundred)
	p.ShockedIncome = p.IncomeAvg.Mul(keep).Round(core.MoneyScale)
	p.NetMonthlyFlow = p.ShockedIncome.Sub(p.ExpenseAvg)

	if !p.NetMonthlyFlow.IsNegative() {
		p.Unbounded = true
		p.RiskTier = TierSafe
		return p, nil
	}

	p.RawRunwayMonths = in.OpeningBalance.Div(p.NetMonthlyFlow.Abs()).Round(1)
	p.RunwayMonths = decimal.Max(p.RawRunwayMonths, decimal.Zero)
	if p.RunwayMonths.LessThan(criticalRunway) {
		p.RiskTier = TierCritical
	} else {
		p.RiskTier = TierWarning
	}
	return p, nil
}

// TrailingWindow keeps the transactions whose business date in loc falls in
// (today - months, today]. Anything dated today counts regardless of the
// hour now has reached.
func TrailingWindow(txs []core.Transaction, now time.Time, months int, loc *time.Location) []core.Transaction {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := core.DateOf(local, loc)
	start := core.DateOf(addMonthsClamped(local, -months), loc)
	var out []core.Transaction
	for _, tx := range txs {
		d := core.DateOf(tx.CreatedAt, loc)
		if d.After(start) && d.NotAfter(today) {
			out = append(out, tx)
		}
	}
	return out
}

func distinctMonths(txs []core.Transaction, loc *time.Location) int {
	seen := make(map[monthKey]struct{})
	for _, tx := range txs {
		y, m, _ := tx.CreatedAt.In(loc).Date()
		seen[monthKey{y, m}] = struct{}{}
	}
	return len(seen)
}

// addMonthsClamped shifts t by n calendar months keeping the clock, landing
// on the last day of the month when the day does not exist there.
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := min(d, core.DaysIn(first.Year(), first.Month()))
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// BalancePoint is one step of a projected balance curve.
type BalancePoint struct {
	Year    int
	Month   int
	Balance decimal.Decimal
}

// ProjectBalance extends the current balance month by month using the
// projection's net flow. The first point is the month after now.
func ProjectBalance(p Projection, balance decimal.Decimal, now time.Time, months int) []BalancePoint {
	if months <= 0 {
		return nil
	}
	out := make([]BalancePoint, 0, months)
	running := balance
	for i := 1; i <= months; i++ {
		running = running.Add(p.NetMonthlyFlow)
		at := addMonthsClamped(now, i)
		out = append(out, BalancePoint{Year: at.Year(), Month: int(at.Month()), Balance: running})
	}
	return out
}
