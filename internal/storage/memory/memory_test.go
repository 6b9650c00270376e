package memory

import (
	"context"
	"testing"
	"time"

	"cajaclaro/internal/core"
	"cajaclaro/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) (*Store, core.Account, core.RecurringDefinition) {
	t.Helper()
	s := New()
	ctx := context.Background()
	a := core.Account{ID: uuid.New(), OwnerID: "owner", Nombre: "Kiosco", Plan: core.PlanGratis}
	require.NoError(t, s.CreateAccount(ctx, a))

	def := core.RecurringDefinition{
		ID: uuid.New(), AccountID: a.ID, Descripcion: "Internet", Monto: decimal.NewFromInt(25000),
		Tipo: core.Gasto, Frecuencia: core.Mensual, ProximaEjecucion: core.NewDate(2025, 1, 15),
		DiaAncla: 15, Estado: core.Activo,
	}
	require.NoError(t, s.CreateRecurring(ctx, def))
	return s, a, def
}

func occurrence(def core.RecurringDefinition, d core.Date) core.Transaction {
	rid := def.ID
	return core.Transaction{
		ID: uuid.New(), AccountID: def.AccountID, Tipo: def.Tipo, Monto: def.Monto,
		Descripcion: def.Descripcion, CreatedAt: d.At(time.UTC), RecurrenteID: &rid, Ocurrencia: &d,
	}
}

func TestStore_AccountUniquePerOwner(t *testing.T) {
	s, a, _ := seed(t)
	err := s.CreateAccount(context.Background(), core.Account{ID: uuid.New(), OwnerID: a.OwnerID})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestStore_CommitTickOptimisticCheck(t *testing.T) {
	s, a, def := seed(t)
	ctx := context.Background()

	next := def
	next.ProximaEjecucion = core.NewDate(2025, 2, 15)
	require.NoError(t, s.CommitTick(ctx, def.ProximaEjecucion, next, []core.Transaction{occurrence(def, def.ProximaEjecucion)}))

	err := s.CommitTick(ctx, def.ProximaEjecucion, next, []core.Transaction{occurrence(def, def.ProximaEjecucion)})
	assert.ErrorIs(t, err, core.ErrConcurrentModification)

	txs, err := s.ListTransactions(ctx, a.ID, storage.Range{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	stored, err := s.RecurringByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-15", stored.ProximaEjecucion.String())
}

func TestStore_InsertIsAllOrNothing(t *testing.T) {
	s, a, def := seed(t)
	ctx := context.Background()

	good := occurrence(def, core.NewDate(2025, 1, 15))
	dup := occurrence(def, core.NewDate(2025, 1, 15))
	err := s.InsertTransactions(ctx, []core.Transaction{good, dup})
	assert.ErrorIs(t, err, core.ErrConcurrentModification)

	txs, err := s.ListTransactions(ctx, a.ID, storage.Range{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_PausedDefinitionIsNotDue(t *testing.T) {
	s, _, def := seed(t)
	ctx := context.Background()

	paused := def
	paused.Estado = core.Pausado
	require.NoError(t, s.SaveRecurringState(ctx, paused, def.ProximaEjecucion))

	due, err := s.ListDueRecurring(ctx, core.NewDate(2030, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, due)

	// A tick that read the definition before the pause loses.
	next := def
	next.ProximaEjecucion = core.NewDate(2025, 2, 15)
	err = s.CommitTick(ctx, def.ProximaEjecucion, next, nil)
	assert.ErrorIs(t, err, core.ErrConcurrentModification)
}

func TestStore_PlanPurchaseIdempotent(t *testing.T) {
	s, a, _ := seed(t)
	ctx := context.Background()
	p := storage.PlanPurchase{Gateway: "flow", Token: "abc", AccountID: a.ID, Plan: core.PlanPro}

	applied, err := s.ApplyPlanPurchase(ctx, p)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.ApplyPlanPurchase(ctx, p)
	require.NoError(t, err)
	assert.False(t, applied)
}
