// Package memory is a mutex-guarded in-memory Ledger Store with the same
// semantics as the SQLite repository, including the optimistic checks.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cajaclaro/internal/core"
	"cajaclaro/internal/storage"

	"github.com/google/uuid"
)

type occurrenceKey struct {
	recurrenteID uuid.UUID
	date         string
}

type paymentKey struct {
	gateway, token string
}

type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	accounts    map[uuid.UUID]core.Account
	owners      map[string]uuid.UUID
	txs         []core.Transaction
	occurrences map[occurrenceKey]struct{}
	recurring   map[uuid.UUID]core.RecurringDefinition
	milestones  []core.Milestone
	payments    map[paymentKey]storage.PlanPurchase
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:         time.Now,
		accounts:    make(map[uuid.UUID]core.Account),
		owners:      make(map[string]uuid.UUID),
		occurrences: make(map[occurrenceKey]struct{}),
		recurring:   make(map[uuid.UUID]core.RecurringDefinition),
		payments:    make(map[paymentKey]storage.PlanPurchase),
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[a.OwnerID]; ok {
		return fmt.Errorf("create account for owner %s: %w", a.OwnerID, storage.ErrConflict)
	}
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("create account %s: %w", a.ID, storage.ErrConflict)
	}
	s.accounts[a.ID] = a
	s.owners[a.OwnerID] = a.ID
	return nil
}

func (s *Store) AccountByID(_ context.Context, id uuid.UUID) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("get account %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) AccountByOwner(_ context.Context, ownerID string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.owners[ownerID]
	if !ok {
		return core.Account{}, fmt.Errorf("get account by owner: %w", storage.ErrNotFound)
	}
	return s.accounts[id], nil
}

func (s *Store) UpdateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[a.ID]
	if !ok {
		return fmt.Errorf("update account %s: %w", a.ID, storage.ErrNotFound)
	}
	// Owner and creation time are immutable
	a.OwnerID = cur.OwnerID
	a.CreatedAt = cur.CreatedAt
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) InsertTransactions(_ context.Context, txs []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInsertable(txs); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	s.appendTransactions(txs)
	return nil
}

// checkInsertable validates the whole batch before anything is written.
func (s *Store) checkInsertable(txs []core.Transaction) error {
	batch := make(map[occurrenceKey]struct{})
	for _, t := range txs {
		if _, ok := s.accounts[t.AccountID]; !ok {
			return fmt.Errorf("account %s: %w", t.AccountID, storage.ErrNotFound)
		}
		if err := t.Validate(); err != nil {
			return err
		}
		if t.RecurrenteID == nil || t.Ocurrencia == nil {
			continue
		}
		k := occurrenceKey{*t.RecurrenteID, t.Ocurrencia.String()}
		if _, ok := s.occurrences[k]; ok {
			return core.ErrConcurrentModification
		}
		if _, ok := batch[k]; ok {
			return core.ErrConcurrentModification
		}
		batch[k] = struct{}{}
	}
	return nil
}

func (s *Store) appendTransactions(txs []core.Transaction) {
	for _, t := range txs {
		if t.RecurrenteID != nil && t.Ocurrencia != nil {
			s.occurrences[occurrenceKey{*t.RecurrenteID, t.Ocurrencia.String()}] = struct{}{}
		}
		s.txs = append(s.txs, t)
	}
}

func (s *Store) ListTransactions(_ context.Context, accountID uuid.UUID, r storage.Range) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.txs {
		if t.AccountID == accountID && r.Contains(t.CreatedAt) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateRecurring(_ context.Context, def core.RecurringDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[def.AccountID]; !ok {
		return fmt.Errorf("create recurring: account %s: %w", def.AccountID, storage.ErrNotFound)
	}
	if _, ok := s.recurring[def.ID]; ok {
		return fmt.Errorf("create recurring %s: %w", def.ID, storage.ErrConflict)
	}
	s.recurring[def.ID] = def
	return nil
}

func (s *Store) RecurringByID(_ context.Context, id uuid.UUID) (core.RecurringDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.recurring[id]
	if !ok {
		return core.RecurringDefinition{}, fmt.Errorf("get recurring %s: %w", id, storage.ErrNotFound)
	}
	return def, nil
}

func (s *Store) ListRecurring(_ context.Context, accountID uuid.UUID) ([]core.RecurringDefinition, error) {
	return s.filterRecurring(func(d core.RecurringDefinition) bool {
		return d.AccountID == accountID && !d.Deleted()
	}), nil
}

func (s *Store) ListDueRecurring(_ context.Context, asOf core.Date) ([]core.RecurringDefinition, error) {
	return s.filterRecurring(func(d core.RecurringDefinition) bool {
		return d.Active() && d.ProximaEjecucion.NotAfter(asOf)
	}), nil
}

func (s *Store) ListAccountDueRecurring(_ context.Context, accountID uuid.UUID, asOf core.Date) ([]core.RecurringDefinition, error) {
	return s.filterRecurring(func(d core.RecurringDefinition) bool {
		return d.AccountID == accountID && d.Active() && d.ProximaEjecucion.NotAfter(asOf)
	}), nil
}

func (s *Store) filterRecurring(keep func(core.RecurringDefinition) bool) []core.RecurringDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringDefinition
	for _, d := range s.recurring {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProximaEjecucion.Equal(out[j].ProximaEjecucion) {
			return out[i].ProximaEjecucion.Before(out[j].ProximaEjecucion)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *Store) CommitTick(_ context.Context, expectedNext core.Date, def core.RecurringDefinition, txs []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.recurring[def.ID]
	if !ok {
		return fmt.Errorf("commit tick %s: %w", def.ID, storage.ErrNotFound)
	}
	if !cur.Active() || !cur.ProximaEjecucion.Equal(expectedNext) {
		return fmt.Errorf("commit tick %s: %w", def.ID, core.ErrConcurrentModification)
	}
	if err := s.checkInsertable(txs); err != nil {
		return fmt.Errorf("commit tick %s: %w", def.ID, err)
	}

	cur.ProximaEjecucion = def.ProximaEjecucion
	cur.UpdatedAt = s.now()
	s.recurring[def.ID] = cur
	s.appendTransactions(txs)
	return nil
}

func (s *Store) SaveRecurringState(_ context.Context, def core.RecurringDefinition, expectedNext core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.recurring[def.ID]
	if !ok {
		return fmt.Errorf("save recurring state %s: %w", def.ID, storage.ErrNotFound)
	}
	if cur.Deleted() || !cur.ProximaEjecucion.Equal(expectedNext) {
		return fmt.Errorf("save recurring state %s: %w", def.ID, core.ErrConcurrentModification)
	}
	cur.Estado = def.Estado
	cur.ProximaEjecucion = def.ProximaEjecucion
	cur.DeletedAt = def.DeletedAt
	cur.UpdatedAt = def.UpdatedAt
	s.recurring[def.ID] = cur
	return nil
}

func (s *Store) CreateMilestone(_ context.Context, m core.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[m.AccountID]; !ok {
		return fmt.Errorf("create milestone: account %s: %w", m.AccountID, storage.ErrNotFound)
	}
	s.milestones = append(s.milestones, m)
	return nil
}

func (s *Store) ListMilestones(_ context.Context, accountID uuid.UUID) ([]core.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Milestone
	for _, m := range s.milestones {
		if m.AccountID == accountID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) DeleteMilestone(_ context.Context, accountID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.milestones {
		if m.ID == id && m.AccountID == accountID {
			s.milestones = append(s.milestones[:i], s.milestones[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete milestone %s: %w", id, storage.ErrNotFound)
}

func (s *Store) ApplyPlanPurchase(_ context.Context, p storage.PlanPurchase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := paymentKey{p.Gateway, p.Token}
	if _, seen := s.payments[k]; seen {
		return false, nil
	}
	a, ok := s.accounts[p.AccountID]
	if !ok {
		return false, fmt.Errorf("apply plan purchase: account %s: %w", p.AccountID, storage.ErrNotFound)
	}
	a.Plan = p.Plan
	a.UpdatedAt = s.now()
	s.accounts[a.ID] = a
	s.payments[k] = p
	return true, nil
}
