// Package storage defines the Ledger Store contracts and their SQLite
// implementation. The in-memory implementation lives in storage/memory.
package storage

import (
	"cajaclaro/internal/core"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a keyed lookup matches nothing, including
	// lookups of rows owned by another account.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness rule would be broken, such as a
	// second account for the same owner.
	ErrConflict = errors.New("conflict")
)

// Range bounds transactions by CreatedAt as [From, To). Zero values leave the
// side open.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// PlanPurchase is a confirmed payment for a plan upgrade. Gateway and Token
// together identify the confirmation.
type PlanPurchase struct {
	Gateway     string
	Token       string
	AccountID   uuid.UUID
	Plan        core.Plan
	Amount      decimal.Decimal
	ConfirmedAt time.Time
}

type AccountStore interface {
	CreateAccount(ctx context.Context, a core.Account) error
	AccountByID(ctx context.Context, id uuid.UUID) (core.Account, error)
	AccountByOwner(ctx context.Context, ownerID string) (core.Account, error)
	UpdateAccount(ctx context.Context, a core.Account) error
}

type LedgerStore interface {
	// InsertTransactions inserts the whole batch or nothing.
	InsertTransactions(ctx context.Context, txs []core.Transaction) error
	// ListTransactions returns the account's transactions ordered by CreatedAt.
	ListTransactions(ctx context.Context, accountID uuid.UUID, r Range) ([]core.Transaction, error)
}

type RecurringStore interface {
	CreateRecurring(ctx context.Context, def core.RecurringDefinition) error
	RecurringByID(ctx context.Context, id uuid.UUID) (core.RecurringDefinition, error)
	// ListRecurring returns the account's definitions that are not deleted.
	ListRecurring(ctx context.Context, accountID uuid.UUID) ([]core.RecurringDefinition, error)
	// ListDueRecurring returns active definitions of every account with
	// ProximaEjecucion <= asOf.
	ListDueRecurring(ctx context.Context, asOf core.Date) ([]core.RecurringDefinition, error)
	ListAccountDueRecurring(ctx context.Context, accountID uuid.UUID, asOf core.Date) ([]core.RecurringDefinition, error)

	// CommitTick advances def to def.ProximaEjecucion and inserts txs in one
	// unit. It fails with core.ErrConcurrentModification, committing nothing,
	// when the stored ProximaEjecucion is no longer expectedNext or the
	// definition stopped being active.
	CommitTick(ctx context.Context, expectedNext core.Date, def core.RecurringDefinition, txs []core.Transaction) error

	// SaveRecurringState persists estado, ProximaEjecucion and DeletedAt with
	// the same optimistic check as CommitTick.
	SaveRecurringState(ctx context.Context, def core.RecurringDefinition, expectedNext core.Date) error
}

type MilestoneStore interface {
	CreateMilestone(ctx context.Context, m core.Milestone) error
	ListMilestones(ctx context.Context, accountID uuid.UUID) ([]core.Milestone, error)
	DeleteMilestone(ctx context.Context, accountID, id uuid.UUID) error
}

type PaymentStore interface {
	// ApplyPlanPurchase records the confirmation and sets the account plan in
	// one unit. A confirmation seen before returns applied=false and changes
	// nothing.
	ApplyPlanPurchase(ctx context.Context, p PlanPurchase) (applied bool, err error)
}

// Store is the full Ledger Store.
type Store interface {
	AccountStore
	LedgerStore
	RecurringStore
	MilestoneStore
	PaymentStore

	Ping(ctx context.Context) error
	Close() error
}
