package recurrence

import (
	"cajaclaro/internal/core"
	"time"

	"github.com/google/uuid"
)

// MaxIterations bounds a single tick. A definition that is further than this
// many periods behind is reported instead of materialized.
const MaxIterations = 1000

// TickResult is the outcome of a tick: the transactions to insert and the
// definition with its advanced ProximaEjecucion. Both must be committed
// together.
type TickResult struct {
	Definition   core.RecurringDefinition
	Transactions []core.Transaction
}

// Empty reports whether the tick produced nothing to commit.
func (r TickResult) Empty() bool {
	return len(r.Transactions) == 0
}

// Engine materializes recurring definitions. Occurrence dates are anchored to
// noon in the business location.
type Engine struct {
	loc   *time.Location
	newID func() uuid.UUID
}

// NewEngine creates an engine for the given business location.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc, newID: uuid.New}
}

// WithIDGenerator replaces the transaction id source. Used by tests that need
// deterministic ids.
func (e *Engine) WithIDGenerator(fn func() uuid.UUID) *Engine {
	cp := *e
	cp.newID = fn
	return &cp
}

// Location returns the business location of the engine.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Tick emits one transaction per occurrence with ProximaEjecucion <= asOf and
// advances the definition past asOf. Paused or deleted definitions emit
// nothing. Running Tick again on the result with the same asOf emits nothing.
func (e *Engine) Tick(def core.RecurringDefinition, asOf core.Date) (TickResult, error) {
	if !def.Active() {
		return TickResult{Definition: def}, nil
	}
	sched, err := ScheduleFor(def.Frecuencia)
	if err != nil {
		return TickResult{}, err
	}

	var txs []core.Transaction
	next := def.ProximaEjecucion
	for i := 0; next.NotAfter(asOf); i++ {
		if i >= MaxIterations {
			return TickResult{}, &core.RecurrenceOverflowError{
				DefinitionID:  def.ID,
				AttemptedDate: next,
				Iterations:    i,
			}
		}
		txs = append(txs, e.materialize(def, next))

		advanced := sched.Next(next, def.DiaAncla)
		if !advanced.After(next) {
			return TickResult{}, &core.RecurrenceOverflowError{
				DefinitionID:  def.ID,
				AttemptedDate: next,
				Iterations:    i + 1,
			}
		}
		next = advanced
	}

	def.ProximaEjecucion = next
	return TickResult{Definition: def, Transactions: txs}, nil
}

// FitsOneTick reports whether every occurrence of def up to asOf can be
// materialized by a single Tick, i.e. there are at most MaxIterations of them.
func (e *Engine) FitsOneTick(def core.RecurringDefinition, asOf core.Date) (bool, error) {
	sched, err := ScheduleFor(def.Frecuencia)
	if err != nil {
		return false, err
	}
	next := def.ProximaEjecucion
	for n := 0; next.NotAfter(asOf); n++ {
		if n >= MaxIterations {
			return false, nil
		}
		advanced := sched.Next(next, def.DiaAncla)
		if !advanced.After(next) {
			return false, nil
		}
		next = advanced
	}
	return true, nil
}

func (e *Engine) materialize(def core.RecurringDefinition, occurrence core.Date) core.Transaction {
	recurrenteID := def.ID
	occ := occurrence
	return core.Transaction{
		ID:           e.newID(),
		AccountID:    def.AccountID,
		Tipo:         def.Tipo,
		Monto:        def.Monto,
		Descripcion:  def.Descripcion,
		Categoria:    def.Categoria,
		CreatedAt:    occurrence.At(e.loc),
		RecurrenteID: &recurrenteID,
		Ocurrencia:   &occ,
	}
}

// Pause stops generation. ProximaEjecucion is kept as it was at pause time.
func (e *Engine) Pause(def core.RecurringDefinition, at time.Time) (core.RecurringDefinition, error) {
	if def.Deleted() {
		return def, errDeleted
	}
	if def.Estado == core.Pausado {
		return def, nil
	}
	def.Estado = core.Pausado
	def.UpdatedAt = at
	return def, nil
}

// Resume reactivates a paused definition without catching up: occurrences
// missed while paused are skipped and ProximaEjecucion is re-anchored to the
// first occurrence on or after the resume date.
func (e *Engine) Resume(def core.RecurringDefinition, at time.Time) (core.RecurringDefinition, error) {
	if def.Deleted() {
		return def, errDeleted
	}
	if def.Estado == core.Activo {
		return def, nil
	}
	sched, err := ScheduleFor(def.Frecuencia)
	if err != nil {
		return def, err
	}
	def.ProximaEjecucion = sched.FirstOnOrAfter(def.ProximaEjecucion, def.DiaAncla, core.DateOf(at, e.loc))
	def.Estado = core.Activo
	def.UpdatedAt = at
	return def, nil
}

// Delete logically removes the definition. Transactions it already produced
// are left untouched.
func (e *Engine) Delete(def core.RecurringDefinition, at time.Time) core.RecurringDefinition {
	if def.Deleted() {
		return def
	}
	deletedAt := at
	def.DeletedAt = &deletedAt
	def.UpdatedAt = at
	return def
}

// NextOccurrences previews up to n upcoming occurrences of an active
// definition.
func (e *Engine) NextOccurrences(def core.RecurringDefinition, n int) []core.Date {
	if !def.Active() || n <= 0 {
		return nil
	}
	sched, err := ScheduleFor(def.Frecuencia)
	if err != nil {
		return nil
	}
	out := make([]core.Date, 0, n)
	next := def.ProximaEjecucion
	for range n {
		out = append(out, next)
		next = sched.Next(next, def.DiaAncla)
	}
	return out
}

var errDeleted = &core.ValidationError{Field: "estado", Reason: "recurring definition was deleted"}
