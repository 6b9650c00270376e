package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cajaclaro/internal/cashflow"
	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultHorizonMonths is the length of the simulated balance curve.
const DefaultHorizonMonths = 12

type Overview struct {
	Account    core.Account
	AsOf       core.Date
	Balance    decimal.Decimal
	Totals     cashflow.Totals
	Months     []core.MonthBucket
	Categories []core.CategoryAmount
	Milestones []cashflow.MilestoneStatus
	Projection cashflow.Projection
	// RecurringFailures counts definitions the lazy tick could not
	// materialize; the figures exclude them.
	RecurringFailures int
}

type Simulation struct {
	Projection cashflow.Projection
	Balance    decimal.Decimal
	Curve      []cashflow.BalancePoint
}

type DashboardService struct {
	store     storage.Store
	processor *RecurringProcessor
	loc       *time.Location
	now       func() time.Time
	logger    *applog.Logger
}

func NewDashboardService(store storage.Store, processor *RecurringProcessor, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{
		store:     store,
		processor: processor,
		loc:       loc,
		now:       time.Now,
		logger:    applog.ForComponent(applog.ComponentDashboard),
	}
}

// WithClock replaces the clock used to pick the evaluation instant.
func (s *DashboardService) WithClock(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

// Overview ticks the account's due definitions and returns every figure of
// the dashboard computed over the same snapshot of transactions.
func (s *DashboardService) Overview(ctx context.Context, accountID uuid.UUID) (Overview, error) {
	now := s.now()
	snap, err := s.snapshot(ctx, accountID, now)
	if err != nil {
		return Overview{}, err
	}

	balance := cashflow.CurrentCashBalance(snap.txs, snap.account.SaldoActual)
	projection, err := cashflow.ProjectRunway(cashflow.RunwayInput{
		Transactions:   snap.txs,
		OpeningBalance: balance,
		Fallback:       cashflow.FallbackFor(snap.account),
		ShockPercent:   decimal.Zero,
		Now:            now,
		Location:       s.loc,
	})
	if err != nil {
		return Overview{}, err
	}
	milestones, err := s.store.ListMilestones(ctx, accountID)
	if err != nil {
		return Overview{}, fmt.Errorf("list milestones: %w", err)
	}

	return Overview{
		Account:           snap.account,
		AsOf:              snap.asOf,
		Balance:           balance,
		Totals:            cashflow.Sum(snap.txs),
		Months:            cashflow.MonthlyBuckets(snap.txs, snap.account.SaldoActual, s.loc),
		Categories:        cashflow.CategoryDistribution(snap.txs),
		Milestones:        cashflow.EvaluateMilestones(milestones, balance),
		Projection:        projection,
		RecurringFailures: snap.failures,
	}, nil
}

// Simulate projects the runway with income reduced by shockPercent and the
// resulting balance curve over horizon months.
func (s *DashboardService) Simulate(ctx context.Context, accountID uuid.UUID, shockPercent decimal.Decimal, horizon int) (Simulation, error) {
	if shockPercent.IsNegative() || shockPercent.GreaterThan(decimal.NewFromInt(100)) {
		return Simulation{}, core.ErrInvalidShock
	}
	if horizon <= 0 {
		horizon = DefaultHorizonMonths
	}
	now := s.now()
	snap, err := s.snapshot(ctx, accountID, now)
	if err != nil {
		return Simulation{}, err
	}

	balance := cashflow.CurrentCashBalance(snap.txs, snap.account.SaldoActual)
	p, err := cashflow.ProjectRunway(cashflow.RunwayInput{
		Transactions:   snap.txs,
		OpeningBalance: balance,
		Fallback:       cashflow.FallbackFor(snap.account),
		ShockPercent:   shockPercent,
		Now:            now,
		Location:       s.loc,
	})
	if err != nil {
		return Simulation{}, err
	}

	s.logger.DebugContext(ctx, "Runway simulated",
		applog.FieldAccountID, accountID.String(),
		"shock", shockPercent.String(),
		"tier", string(p.RiskTier),
		"historial", p.EsBasadoEnHistorial)

	return Simulation{
		Projection: p,
		Balance:    balance,
		Curve:      cashflow.ProjectBalance(p, balance, now, horizon),
	}, nil
}

type snapshot struct {
	account  core.Account
	asOf     core.Date
	txs      []core.Transaction
	failures int
}

func (s *DashboardService) snapshot(ctx context.Context, accountID uuid.UUID, now time.Time) (snapshot, error) {
	account, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return snapshot{}, err
	}
	snap := snapshot{account: account, asOf: BusinessDate(now, s.loc)}

	if s.processor != nil {
		report, err := s.processor.ProcessAccount(ctx, accountID, snap.asOf)
		if err != nil {
			return snapshot{}, err
		}
		snap.failures = len(report.Failures)
	}

	snap.txs, err = s.store.ListTransactions(ctx, accountID, storage.Range{})
	if err != nil {
		return snapshot{}, fmt.Errorf("list transactions: %w", err)
	}
	return snap, nil
}

type CreateMilestoneInput struct {
	Nombre string
	Costo  decimal.Decimal
	Ahorro decimal.Decimal
}

// MilestoneService creates and removes hitos. Their affordability is
// evaluated by the dashboard on every read.
type MilestoneService struct {
	store storage.MilestoneStore
	now   func() time.Time
}

func NewMilestoneService(store storage.MilestoneStore) *MilestoneService {
	return &MilestoneService{store: store, now: time.Now}
}

func (s *MilestoneService) Create(ctx context.Context, accountID uuid.UUID, in CreateMilestoneInput) (core.Milestone, error) {
	m := core.Milestone{
		ID:        uuid.New(),
		AccountID: accountID,
		Nombre:    strings.TrimSpace(in.Nombre),
		Costo:     in.Costo.Round(core.MoneyScale),
		Ahorro:    in.Ahorro.Round(core.MoneyScale),
		CreatedAt: s.now(),
	}
	if err := m.Validate(); err != nil {
		return core.Milestone{}, err
	}
	if err := s.store.CreateMilestone(ctx, m); err != nil {
		return core.Milestone{}, fmt.Errorf("create milestone: %w", err)
	}
	return m, nil
}

func (s *MilestoneService) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return s.store.DeleteMilestone(ctx, accountID, id)
}
