package cashflow

import (
	"cajaclaro/internal/core"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func tx(tipo core.Tipo, monto int64, categoria string, y, m, d int) core.Transaction {
	return core.Transaction{
		ID:          uuid.New(),
		Tipo:        tipo,
		Monto:       dec(monto),
		Descripcion: fmt.Sprintf("%s %d", tipo, monto),
		Categoria:   categoria,
		CreatedAt:   core.NewDate(y, m, d).At(time.UTC),
	}
}

// Opening 100000, two months of activity.
func scenario() []core.Transaction {
	return []core.Transaction{
		tx(core.Ingreso, 50000, "Ventas", 2025, 1, 10),
		tx(core.Gasto, 30000, "Insumos", 2025, 1, 15),
		tx(core.Ingreso, 60000, "Ventas", 2025, 2, 5),
		tx(core.Gasto, 40000, "Arriendo", 2025, 2, 20),
	}
}

func TestScenario(t *testing.T) {
	opening := dec(100000)
	txs := scenario()

	balance := CurrentCashBalance(txs, opening)
	assert.True(t, balance.Equal(dec(140000)), "balance = %s", balance)

	buckets := MonthlyBuckets(txs, opening, time.UTC)
	require.Len(t, buckets, 2)
	assert.Equal(t, 1, buckets[0].Month)
	assert.True(t, buckets[0].Income.Equal(dec(50000)))
	assert.True(t, buckets[0].Expense.Equal(dec(30000)))
	assert.True(t, buckets[0].NetCumulative.Equal(dec(120000)))
	assert.Equal(t, 2, buckets[1].Month)
	assert.True(t, buckets[1].Income.Equal(dec(60000)))
	assert.True(t, buckets[1].Expense.Equal(dec(40000)))
	assert.True(t, buckets[1].NetCumulative.Equal(dec(140000)))

	p, err := ProjectRunway(RunwayInput{
		Transactions:   txs,
		OpeningBalance: balance,
		ShockPercent:   dec(20),
		Now:            time.Date(2025, 2, 28, 18, 0, 0, 0, time.UTC),
		Location:       time.UTC,
	})
	require.NoError(t, err)
	assert.True(t, p.EsBasadoEnHistorial)
	assert.Equal(t, 2, p.MonthsAnalyzed)
	assert.True(t, p.IncomeAvg.Equal(dec(55000)), "incomeAvg = %s", p.IncomeAvg)
	assert.True(t, p.ExpenseAvg.Equal(dec(35000)), "expenseAvg = %s", p.ExpenseAvg)
	assert.True(t, p.ShockedIncome.Equal(dec(44000)), "shocked = %s", p.ShockedIncome)
	assert.True(t, p.NetMonthlyFlow.Equal(dec(9000)), "net = %s", p.NetMonthlyFlow)
	assert.True(t, p.Unbounded)
	assert.Equal(t, TierSafe, p.RiskTier)
}

func TestMonthlyBuckets_SumInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		opening := dec(r.Int63n(200000) - 100000)
		var txs []core.Transaction
		n := r.Intn(40)
		for i := 0; i < n; i++ {
			tipo := core.Ingreso
			if r.Intn(2) == 0 {
				tipo = core.Gasto
			}
			txs = append(txs, tx(tipo, r.Int63n(100000)+1, "", 2024+r.Intn(2), r.Intn(12)+1, r.Intn(28)+1))
		}

		buckets := MonthlyBuckets(txs, opening, time.UTC)
		var income, expense decimal.Decimal
		for i, b := range buckets {
			income = income.Add(b.Income)
			expense = expense.Add(b.Expense)
			if i > 0 {
				prev := buckets[i-1]
				assert.True(t, prev.Year < b.Year || (prev.Year == b.Year && prev.Month < b.Month), "buckets out of order")
			}
		}
		want := CurrentCashBalance(txs, opening).Sub(opening)
		assert.True(t, income.Sub(expense).Equal(want), "round %d: %s != %s", round, income.Sub(expense), want)
		if len(buckets) > 0 {
			assert.True(t, buckets[len(buckets)-1].NetCumulative.Equal(CurrentCashBalance(txs, opening)))
		}
	}
}

func TestMonthlyBuckets_UsesLocation(t *testing.T) {
	scl, err := time.LoadLocation("America/Santiago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 01:00 UTC on Mar 1 is Feb 28 evening in Santiago.
	late := core.Transaction{Tipo: core.Ingreso, Monto: dec(10), CreatedAt: time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)}

	buckets := MonthlyBuckets([]core.Transaction{late}, decimal.Zero, scl)
	require.Len(t, buckets, 1)
	assert.Equal(t, 2, buckets[0].Month)
}

func TestCategoryDistribution(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Gasto, 100, "Luz", 2025, 1, 1),
		tx(core.Gasto, 300, "", 2025, 1, 2),
		tx(core.Ingreso, 9999, "Ventas", 2025, 1, 3),
		tx(core.Gasto, 200, "Agua", 2025, 1, 4),
		tx(core.Gasto, 100, "Agua", 2025, 1, 5),
		tx(core.Gasto, 300, "Gas", 2025, 1, 6),
		tx(core.Gasto, 100, "Internet", 2025, 1, 7),
	}

	got := CategoryDistribution(txs)
	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	// Ties keep first-seen order: Otros before Agua before Gas, Luz before Internet.
	assert.Equal(t, []string{core.CategoriaOtros, "Agua", "Gas", "Luz", "Internet"}, names)
	assert.True(t, got[0].Amount.Equal(dec(300)))
	assert.True(t, got[1].Amount.Equal(dec(300)))
}

func TestProjectRunway_FallbackWhenHistoryIsThin(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	fallback := Fallback{Income: dec(1000000), Expense: dec(1200000)}

	p, err := ProjectRunway(RunwayInput{
		Transactions:   []core.Transaction{tx(core.Ingreso, 5, "", 2025, 6, 1)},
		OpeningBalance: dec(1000000),
		Fallback:       fallback,
		Now:            now,
	})
	require.NoError(t, err)
	assert.False(t, p.EsBasadoEnHistorial)
	assert.Equal(t, 0, p.MonthsAnalyzed)
	assert.True(t, p.NetMonthlyFlow.Equal(dec(-200000)))
	assert.False(t, p.Unbounded)
	assert.Equal(t, "5", p.RunwayMonths.String())
	assert.Equal(t, TierWarning, p.RiskTier)
}

func TestProjectRunway_WindowExcludesOldAndFuture(t *testing.T) {
	now := time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		tx(core.Gasto, 999999, "", 2025, 2, 28), // exactly six months back: excluded
		tx(core.Ingreso, 1000, "", 2025, 3, 1),
		tx(core.Gasto, 4000, "", 2025, 8, 30),
		tx(core.Gasto, 999999, "", 2025, 9, 1), // future dated
	}
	window := TrailingWindow(txs, now, WindowMonths, time.UTC)
	require.Len(t, window, 2)

	p, err := ProjectRunway(RunwayInput{Transactions: txs, OpeningBalance: dec(4500), Now: now})
	require.NoError(t, err)
	assert.Equal(t, 2, p.MonthsAnalyzed)
	assert.True(t, p.IncomeAvg.Equal(dec(500)))
	assert.True(t, p.ExpenseAvg.Equal(dec(2000)))
	assert.Equal(t, "3", p.RawRunwayMonths.String())
	assert.Equal(t, TierWarning, p.RiskTier)
}

func TestProjectRunway_WindowIncludesTodayBeforeNoon(t *testing.T) {
	scl, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, scl)
	txs := []core.Transaction{
		{ID: uuid.New(), Tipo: core.Ingreso, Monto: dec(3000), CreatedAt: core.NewDate(2025, 2, 10).At(scl)},
		{ID: uuid.New(), Tipo: core.Gasto, Monto: dec(1000), CreatedAt: core.NewDate(2025, 3, 10).At(scl)},
	}

	window := TrailingWindow(txs, now, WindowMonths, scl)
	require.Len(t, window, 2)

	p, err := ProjectRunway(RunwayInput{Transactions: txs, OpeningBalance: dec(100), Now: now, Location: scl})
	require.NoError(t, err)
	assert.True(t, p.EsBasadoEnHistorial)
	assert.Equal(t, 2, p.MonthsAnalyzed)
	assert.True(t, p.ExpenseAvg.Equal(dec(500)))
}

func TestProjectRunway_NegativeOpeningRawTracksShock(t *testing.T) {
	now := time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	txs := []core.Transaction{tx(core.Ingreso, 1000, "", 2025, 1, 3), tx(core.Gasto, 3000, "", 2025, 2, 3)}
	want := map[int64]string{0: "-3", 50: "-2.4", 100: "-2"}
	for _, shock := range []int64{0, 50, 100} {
		p, err := ProjectRunway(RunwayInput{
			Transactions:   txs,
			OpeningBalance: dec(-3000),
			ShockPercent:   dec(shock),
			Now:            now,
		})
		require.NoError(t, err)
		assert.Equal(t, want[shock], p.RawRunwayMonths.String(), "shock %d", shock)
		assert.True(t, p.RunwayMonths.IsZero(), "shock %d", shock)
		assert.Equal(t, TierCritical, p.RiskTier)
	}
}

func TestProjectRunway_RoundsToOneDecimal(t *testing.T) {
	p, err := ProjectRunway(RunwayInput{
		OpeningBalance: dec(1000),
		Fallback:       Fallback{Income: dec(0), Expense: dec(300)},
		Now:            time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "3.3", p.RunwayMonths.String())
	assert.Equal(t, TierWarning, p.RiskTier)
}

func TestProjectRunway_NonPositiveOpeningIsCritical(t *testing.T) {
	for _, opening := range []int64{0, -50000} {
		p, err := ProjectRunway(RunwayInput{
			OpeningBalance: dec(opening),
			Fallback:       Fallback{Income: dec(100), Expense: dec(10100)},
			Now:            time.Now(),
		})
		require.NoError(t, err)
		assert.True(t, p.RunwayMonths.IsZero(), "runway must be floored at zero, got %s", p.RunwayMonths)
		assert.False(t, p.RawRunwayMonths.IsPositive())
		assert.Equal(t, TierCritical, p.RiskTier)
	}
	p, _ := ProjectRunway(RunwayInput{
		OpeningBalance: dec(-50000),
		Fallback:       Fallback{Income: dec(100), Expense: dec(10100)},
		Now:            time.Now(),
	})
	assert.Equal(t, "-5", p.RawRunwayMonths.String())
}

func TestProjectRunway_RejectsShockOutOfRange(t *testing.T) {
	for _, shock := range []int64{-1, 101} {
		_, err := ProjectRunway(RunwayInput{ShockPercent: dec(shock), Now: time.Now()})
		assert.ErrorIs(t, err, core.ErrValidation)
	}
}

func TestProjectRunway_MonotonicInShock(t *testing.T) {
	now := time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	inputs := []struct {
		opening int64
		txs     []core.Transaction
	}{
		{100000, scenario()},
		{500000, []core.Transaction{tx(core.Ingreso, 80000, "", 2025, 1, 3), tx(core.Gasto, 90000, "", 2025, 2, 3)}},
		{-2000, []core.Transaction{tx(core.Ingreso, 1000, "", 2025, 1, 3), tx(core.Gasto, 900, "", 2025, 2, 3)}},
	}
	for i, in := range inputs {
		var prev *Projection
		for shock := int64(0); shock <= 100; shock += 5 {
			p, err := ProjectRunway(RunwayInput{
				Transactions:   in.txs,
				OpeningBalance: dec(in.opening),
				ShockPercent:   dec(shock),
				Now:            now,
			})
			require.NoError(t, err)
			if prev != nil {
				switch {
				case p.Unbounded:
					assert.True(t, prev.Unbounded, "input %d: runway became unbounded at shock %d", i, shock)
				case !prev.Unbounded:
					assert.True(t, p.RunwayMonths.LessThanOrEqual(prev.RunwayMonths),
						"input %d: runway grew from %s to %s at shock %d", i, prev.RunwayMonths, p.RunwayMonths, shock)
				}
			}
			prev = &p
		}
	}
}

func TestProjectBalance(t *testing.T) {
	p := Projection{NetMonthlyFlow: dec(-1000)}
	now := time.Date(2025, 11, 30, 12, 0, 0, 0, time.UTC)

	points := ProjectBalance(p, dec(2500), now, 3)
	require.Len(t, points, 3)
	assert.Equal(t, 2025, points[0].Year)
	assert.Equal(t, 12, points[0].Month)
	assert.True(t, points[0].Balance.Equal(dec(1500)))
	assert.Equal(t, 2026, points[2].Year)
	assert.Equal(t, 2, points[2].Month)
	assert.True(t, points[2].Balance.Equal(dec(-500)))
	assert.Nil(t, ProjectBalance(p, dec(1), now, 0))
}

func TestEvaluateMilestone(t *testing.T) {
	m := core.Milestone{Nombre: "Horno industrial", Costo: dec(1000000), Ahorro: dec(150000)}

	st := EvaluateMilestone(m, dec(400000))
	assert.True(t, st.Shortfall.Equal(dec(600000)))
	require.NotNil(t, st.MonthsToReach)
	assert.Equal(t, int64(4), *st.MonthsToReach)
	assert.False(t, st.Affordable)
	assert.Equal(t, "40", st.Progress.String())

	exact := EvaluateMilestone(core.Milestone{Costo: dec(300), Ahorro: dec(100)}, decimal.Zero)
	require.NotNil(t, exact.MonthsToReach)
	assert.Equal(t, int64(3), *exact.MonthsToReach)

	noRate := EvaluateMilestone(core.Milestone{Costo: dec(300)}, dec(100))
	assert.True(t, noRate.Shortfall.Equal(dec(200)))
	assert.Nil(t, noRate.MonthsToReach)

	negative := EvaluateMilestone(core.Milestone{Costo: dec(300), Ahorro: dec(100)}, dec(-100))
	assert.True(t, negative.Shortfall.Equal(dec(400)))
	assert.True(t, negative.Progress.IsZero())
}

func TestEvaluateMilestone_ZeroShortfall(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		costo := dec(r.Int63n(1000000) + 1)
		balance := costo.Add(dec(r.Int63n(1000)))
		st := EvaluateMilestone(core.Milestone{Costo: costo, Ahorro: dec(r.Int63n(5000))}, balance)
		assert.True(t, st.Shortfall.IsZero())
		assert.Nil(t, st.MonthsToReach)
		assert.True(t, st.Affordable)
		assert.Equal(t, "100", st.Progress.String())
	}
}
