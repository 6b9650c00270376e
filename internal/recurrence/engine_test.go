package recurrence

import (
	"cajaclaro/internal/core"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthlyRent(next core.Date) core.RecurringDefinition {
	return core.RecurringDefinition{
		ID:               uuid.New(),
		AccountID:        uuid.New(),
		Descripcion:      "Arriendo local",
		Categoria:        "Arriendo",
		Monto:            decimal.NewFromInt(450000),
		Tipo:             core.Gasto,
		Frecuencia:       core.Mensual,
		ProximaEjecucion: next,
		DiaAncla:         next.Day(),
		Estado:           core.Activo,
	}
}

func TestTick_EmitsDueOccurrences(t *testing.T) {
	e := NewEngine(time.UTC)
	def := monthlyRent(core.NewDate(2025, 1, 5))

	res, err := e.Tick(def, core.NewDate(2025, 1, 5))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)

	tx := res.Transactions[0]
	assert.Equal(t, def.AccountID, tx.AccountID)
	assert.Equal(t, core.Gasto, tx.Tipo)
	assert.True(t, tx.Monto.Equal(def.Monto))
	assert.Equal(t, time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC), tx.CreatedAt)
	require.NotNil(t, tx.RecurrenteID)
	assert.Equal(t, def.ID, *tx.RecurrenteID)
	assert.True(t, tx.Ocurrencia.Equal(core.NewDate(2025, 1, 5)))
	assert.True(t, res.Definition.ProximaEjecucion.Equal(core.NewDate(2025, 2, 5)))
}

func TestTick_NotDueEmitsNothing(t *testing.T) {
	e := NewEngine(time.UTC)
	def := monthlyRent(core.NewDate(2025, 1, 5))

	res, err := e.Tick(def, core.NewDate(2025, 1, 4))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.True(t, res.Definition.ProximaEjecucion.Equal(def.ProximaEjecucion))
}

func TestTick_IsIdempotent(t *testing.T) {
	e := NewEngine(time.UTC)
	asOf := core.NewDate(2025, 6, 30)

	first, err := e.Tick(monthlyRent(core.NewDate(2025, 1, 31)), asOf)
	require.NoError(t, err)
	require.NotEmpty(t, first.Transactions)

	second, err := e.Tick(first.Definition, asOf)
	require.NoError(t, err)
	assert.Empty(t, second.Transactions)
	assert.True(t, second.Definition.ProximaEjecucion.Equal(first.Definition.ProximaEjecucion))
}

func TestTick_CatchUpWeekly(t *testing.T) {
	e := NewEngine(time.UTC)
	def := monthlyRent(core.NewDate(2025, 1, 1))
	def.Frecuencia = core.Semanal

	// 30 days behind: Jan 1, 8, 15, 22, 29.
	res, err := e.Tick(def, core.NewDate(2025, 1, 31))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 5)

	for i, tx := range res.Transactions {
		want := core.NewDate(2025, 1, 1).AddDays(7 * i)
		assert.True(t, tx.Ocurrencia.Equal(want), "occurrence %d = %s, want %s", i, tx.Ocurrencia, want)
		if i > 0 {
			assert.True(t, res.Transactions[i-1].CreatedAt.Before(tx.CreatedAt))
		}
	}
	assert.True(t, res.Definition.ProximaEjecucion.Equal(core.NewDate(2025, 2, 5)))
	assert.True(t, res.Definition.ProximaEjecucion.After(core.NewDate(2025, 1, 31)))
}

func TestTick_MonthEndClamp(t *testing.T) {
	e := NewEngine(time.UTC)
	def := monthlyRent(core.NewDate(2025, 1, 31))

	res, err := e.Tick(def, core.NewDate(2025, 4, 30))
	require.NoError(t, err)

	var got []string
	for _, tx := range res.Transactions {
		got = append(got, tx.Ocurrencia.String())
	}
	assert.Equal(t, []string{"2025-01-31", "2025-02-28", "2025-03-31", "2025-04-30"}, got)
	assert.Equal(t, "2025-05-31", res.Definition.ProximaEjecucion.String())
}

func TestTick_PausedAndDeletedEmitNothing(t *testing.T) {
	e := NewEngine(time.UTC)
	asOf := core.NewDate(2025, 12, 31)

	paused := monthlyRent(core.NewDate(2025, 1, 1))
	paused.Estado = core.Pausado
	res, err := e.Tick(paused, asOf)
	require.NoError(t, err)
	assert.True(t, res.Empty())

	deleted := e.Delete(monthlyRent(core.NewDate(2025, 1, 1)), time.Now())
	res, err = e.Tick(deleted, asOf)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestTick_Overflow(t *testing.T) {
	e := NewEngine(time.UTC)
	def := monthlyRent(core.NewDate(2000, 1, 1))
	def.Frecuencia = core.Semanal

	// Roughly 1300 weeks behind.
	_, err := e.Tick(def, core.NewDate(2025, 1, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrRecurrenceOverflow))

	var overflow *core.RecurrenceOverflowError
	require.True(t, errors.As(err, &overflow))
	assert.Equal(t, def.ID, overflow.DefinitionID)
	assert.Equal(t, MaxIterations, overflow.Iterations)
}

func TestFitsOneTick(t *testing.T) {
	e := NewEngine(time.UTC)
	asOf := core.NewDate(2025, 1, 1)

	weekly := monthlyRent(core.NewDate(2000, 1, 3))
	weekly.Frecuencia = core.Semanal
	ok, err := e.FitsOneTick(weekly, asOf)
	require.NoError(t, err)
	assert.False(t, ok)

	// 1000 weekly occurrences ending exactly on asOf.
	edge := monthlyRent(asOf.AddDays(-7 * (MaxIterations - 1)))
	edge.Frecuencia = core.Semanal
	ok, err = e.FitsOneTick(edge, asOf)
	require.NoError(t, err)
	assert.True(t, ok)
	res, err := e.Tick(edge, asOf)
	require.NoError(t, err)
	assert.Len(t, res.Transactions, MaxIterations)

	older := monthlyRent(edge.ProximaEjecucion.AddDays(-7))
	older.Frecuencia = core.Semanal
	ok, err = e.FitsOneTick(older, asOf)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.FitsOneTick(monthlyRent(core.NewDate(1990, 1, 1)), asOf)
	require.NoError(t, err)
	assert.True(t, ok, "420 monthly periods fit")
}

func TestTick_UnknownFrequency(t *testing.T) {
	e := NewEngine(time.UTC)
	def := monthlyRent(core.NewDate(2025, 1, 1))
	def.Frecuencia = "diaria"

	_, err := e.Tick(def, core.NewDate(2025, 1, 1))
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestTick_AnchorsInBusinessLocation(t *testing.T) {
	scl, err := time.LoadLocation("America/Santiago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	e := NewEngine(scl)
	res, err := e.Tick(monthlyRent(core.NewDate(2025, 3, 1)), core.NewDate(2025, 3, 1))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)

	created := res.Transactions[0].CreatedAt
	assert.Equal(t, 12, created.Hour())
	assert.True(t, core.DateOf(created.UTC(), scl).Equal(core.NewDate(2025, 3, 1)))
}

func TestPauseResume_SkipsMissedOccurrences(t *testing.T) {
	e := NewEngine(time.UTC)
	def := monthlyRent(core.NewDate(2025, 1, 10))

	paused, err := e.Pause(def, time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, core.Pausado, paused.Estado)
	assert.True(t, paused.ProximaEjecucion.Equal(def.ProximaEjecucion))

	resumed, err := e.Resume(paused, time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, core.Activo, resumed.Estado)
	assert.Equal(t, "2025-06-10", resumed.ProximaEjecucion.String())

	// Nothing is owed for the paused months.
	res, err := e.Tick(resumed, core.NewDate(2025, 5, 20))
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestResume_OnOccurrenceDay(t *testing.T) {
	e := NewEngine(time.UTC)
	paused := monthlyRent(core.NewDate(2025, 1, 10))
	paused.Estado = core.Pausado

	resumed, err := e.Resume(paused, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", resumed.ProximaEjecucion.String())
}

func TestPauseResume_Idempotent(t *testing.T) {
	e := NewEngine(time.UTC)
	def := monthlyRent(core.NewDate(2025, 1, 10))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	same, err := e.Resume(def, now)
	require.NoError(t, err)
	assert.Equal(t, def, same)

	def.Estado = core.Pausado
	same, err = e.Pause(def, now)
	require.NoError(t, err)
	assert.Equal(t, def, same)
}

func TestPauseResume_DeletedRejected(t *testing.T) {
	e := NewEngine(time.UTC)
	now := time.Now()
	deleted := e.Delete(monthlyRent(core.NewDate(2025, 1, 10)), now)
	require.NotNil(t, deleted.DeletedAt)

	_, err := e.Pause(deleted, now)
	assert.True(t, errors.Is(err, core.ErrValidation))
	_, err = e.Resume(deleted, now)
	assert.True(t, errors.Is(err, core.ErrValidation))

	again := e.Delete(deleted, now.Add(time.Hour))
	assert.Equal(t, deleted.DeletedAt, again.DeletedAt)
}

func TestNextOccurrences(t *testing.T) {
	e := NewEngine(time.UTC)
	def := monthlyRent(core.NewDate(2025, 1, 31))

	got := e.NextOccurrences(def, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "2025-01-31", got[0].String())
	assert.Equal(t, "2025-02-28", got[1].String())
	assert.Equal(t, "2025-03-31", got[2].String())

	def.Estado = core.Pausado
	assert.Empty(t, e.NextOccurrences(def, 3))
}

func TestWithIDGenerator(t *testing.T) {
	fixed := uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000001")
	e := NewEngine(time.UTC).WithIDGenerator(func() uuid.UUID { return fixed })

	res, err := e.Tick(monthlyRent(core.NewDate(2025, 1, 1)), core.NewDate(2025, 1, 1))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, fixed, res.Transactions[0].ID)
}
