package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/recurrence"
	"cajaclaro/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultSweepConcurrency bounds how many definitions a sweep commits at once.
const DefaultSweepConcurrency = 4

// Failure is a definition that could not be materialized during a sweep.
type Failure struct {
	DefinitionID  uuid.UUID
	AccountID     uuid.UUID
	AttemptedDate core.Date
	Err           error
}

// Report summarizes one sweep.
type Report struct {
	Checked      int
	Materialized int
	Failures     []Failure
}

// RecurringProcessor turns due recurring definitions into transactions.
// Exactly-once materialization rests on the store's conditional commit, so
// any number of processors may run against the same store.
type RecurringProcessor struct {
	store       storage.RecurringStore
	engine      *recurrence.Engine
	logger      *applog.Logger
	concurrency int
	lazy        singleflight.Group
}

func NewRecurringProcessor(store storage.RecurringStore, engine *recurrence.Engine, logger *applog.Logger) *RecurringProcessor {
	if logger == nil {
		logger = applog.ForComponent(applog.ComponentRecurrence)
	}
	return &RecurringProcessor{
		store:       store,
		engine:      engine,
		logger:      logger,
		concurrency: DefaultSweepConcurrency,
	}
}

// WithConcurrency sets the sweep parallelism.
func (p *RecurringProcessor) WithConcurrency(n int) *RecurringProcessor {
	if n > 0 {
		p.concurrency = n
	}
	return p
}

// Engine returns the recurrence engine used by the processor.
func (p *RecurringProcessor) Engine() *recurrence.Engine {
	return p.engine
}

// Materialize ticks def up to asOf and commits the result. A conflicting
// commit is retried once against a fresh read; a second conflict is
// returned to the caller.
func (p *RecurringProcessor) Materialize(ctx context.Context, def core.RecurringDefinition, asOf core.Date) (int, error) {
	n, err := p.commit(ctx, def, asOf)
	if !errors.Is(err, core.ErrConcurrentModification) {
		return n, err
	}

	fresh, rerr := p.store.RecurringByID(ctx, def.ID)
	if rerr != nil {
		return 0, fmt.Errorf("reload recurring %s: %w", def.ID, rerr)
	}
	p.logger.DebugContext(ctx, "Retrying tick after concurrent modification",
		applog.FieldRecurrenteID, def.ID.String(),
		"expected", def.ProximaEjecucion.String(),
		"stored", fresh.ProximaEjecucion.String())
	return p.commit(ctx, fresh, asOf)
}

func (p *RecurringProcessor) commit(ctx context.Context, def core.RecurringDefinition, asOf core.Date) (int, error) {
	res, err := p.engine.Tick(def, asOf)
	if err != nil {
		return 0, err
	}
	if res.Empty() {
		return 0, nil
	}
	if err := p.store.CommitTick(ctx, def.ProximaEjecucion, res.Definition, res.Transactions); err != nil {
		return 0, err
	}
	p.logger.InfoContext(ctx, "Recurring definition materialized",
		applog.FieldRecurrenteID, def.ID.String(),
		applog.FieldAccountID, def.AccountID.String(),
		applog.FieldAsOf, asOf.String(),
		"transactions", len(res.Transactions),
		"proxima_ejecucion", res.Definition.ProximaEjecucion.String())
	return len(res.Transactions), nil
}

// ProcessDue sweeps the due definitions of every account. Individual
// failures are collected in the report and never abort the sweep.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, asOf core.Date) (Report, error) {
	due, err := p.store.ListDueRecurring(ctx, asOf)
	if err != nil {
		return Report{}, fmt.Errorf("list due recurring: %w", err)
	}
	report := p.run(ctx, due, asOf, p.concurrency)

	p.logger.InfoContext(ctx, "Recurring sweep complete",
		applog.FieldAsOf, asOf.String(),
		"checked", report.Checked,
		"materialized", report.Materialized,
		"failures", len(report.Failures))
	return report, nil
}

// ProcessAccount materializes the due definitions of one account. Concurrent
// calls for the same account and date share a single run.
func (p *RecurringProcessor) ProcessAccount(ctx context.Context, accountID uuid.UUID, asOf core.Date) (Report, error) {
	key := accountID.String() + "|" + asOf.String()
	v, err, _ := p.lazy.Do(key, func() (interface{}, error) {
		// Detached so one caller giving up does not fail the callers sharing the run
		runCtx := context.WithoutCancel(ctx)
		due, err := p.store.ListAccountDueRecurring(runCtx, accountID, asOf)
		if err != nil {
			return Report{}, fmt.Errorf("list due recurring for account %s: %w", accountID, err)
		}
		return p.run(runCtx, due, asOf, 1), nil
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (p *RecurringProcessor) run(ctx context.Context, due []core.RecurringDefinition, asOf core.Date, limit int) Report {
	var (
		mu     sync.Mutex
		report = Report{Checked: len(due)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, def := range due {
		g.Go(func() error {
			n, err := p.Materialize(gctx, def, asOf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, p.failure(gctx, def, err))
				return nil
			}
			report.Materialized += n
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (p *RecurringProcessor) failure(ctx context.Context, def core.RecurringDefinition, err error) Failure {
	f := Failure{
		DefinitionID:  def.ID,
		AccountID:     def.AccountID,
		AttemptedDate: def.ProximaEjecucion,
		Err:           err,
	}
	var overflow *core.RecurrenceOverflowError
	if errors.As(err, &overflow) {
		f.AttemptedDate = overflow.AttemptedDate
	}
	p.logger.ErrorContext(ctx, "Failed to materialize recurring definition",
		applog.FieldRecurrenteID, def.ID.String(),
		applog.FieldAccountID, def.AccountID.String(),
		"attempted_date", f.AttemptedDate.String(),
		"retryable", core.IsRetryable(err),
		applog.FieldError, err)
	return f
}

// BusinessDate is the calendar date of now in loc.
func BusinessDate(now time.Time, loc *time.Location) core.Date {
	return core.DateOf(now, loc)
}
