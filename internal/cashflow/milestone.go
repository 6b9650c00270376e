package cashflow

import (
	"cajaclaro/internal/core"

	"github.com/shopspring/decimal"
)

// MilestoneStatus is the affordability of a milestone against a balance. It
// is derived on every read and never stored.
type MilestoneStatus struct {
	Milestone     core.Milestone
	Shortfall     decimal.Decimal
	MonthsToReach *int64 // nil when already affordable or when Ahorro is zero
	Affordable    bool
	Progress      decimal.Decimal // percent of Costo covered, 0..100
}

func EvaluateMilestone(m core.Milestone, balance decimal.Decimal) MilestoneStatus {
	st := MilestoneStatus{
		Milestone: m,
		Shortfall: decimal.Max(m.Costo.Sub(balance), decimal.Zero),
	}
	st.Affordable = st.Shortfall.IsZero()

	if st.Shortfall.IsPositive() && m.Ahorro.IsPositive() {
		q, r := st.Shortfall.QuoRem(m.Ahorro, 0)
		months := q.IntPart()
		if !r.IsZero() {
			months++
		}
		st.MonthsToReach = &months
	}

	if m.Costo.IsPositive() {
		progress := balance.Div(m.Costo).Mul(hundred)
		st.Progress = decimal.Min(decimal.Max(progress, decimal.Zero), hundred).Round(1)
	}
	return st
}

// EvaluateMilestones evaluates each milestone against the same balance.
func EvaluateMilestones(ms []core.Milestone, balance decimal.Decimal) []MilestoneStatus {
	out := make([]MilestoneStatus, 0, len(ms))
	for _, m := range ms {
		out = append(out, EvaluateMilestone(m, balance))
	}
	return out
}
