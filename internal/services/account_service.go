package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cajaclaro/internal/cache"
	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OnboardInput is the data captured when an owner sets up their business.
type OnboardInput struct {
	Nombre            string
	SaldoActual       decimal.Decimal
	IngresosMensuales decimal.Decimal
	GastosFijos       decimal.Decimal
	GastosVariables   decimal.Decimal
}

type AccountService struct {
	store  storage.AccountStore
	cache  cache.Cache[core.Account]
	now    func() time.Time
	logger *applog.Logger
}

// NewAccountService creates the service. accounts caches owner lookups and
// may be nil.
func NewAccountService(store storage.AccountStore, accounts cache.Cache[core.Account]) *AccountService {
	return &AccountService{
		store:  store,
		cache:  accounts,
		now:    time.Now,
		logger: applog.ForComponent(applog.ComponentLedger),
	}
}

// Onboard creates the owner's single account.
func (s *AccountService) Onboard(ctx context.Context, ownerID string, in OnboardInput) (core.Account, error) {
	if _, err := s.store.AccountByOwner(ctx, ownerID); err == nil {
		return core.Account{}, fmt.Errorf("onboard owner: %w", storage.ErrConflict)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.Account{}, fmt.Errorf("onboard owner: %w", err)
	}

	now := s.now()
	a := core.Account{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Nombre:            strings.TrimSpace(in.Nombre),
		SaldoActual:       in.SaldoActual.Round(core.MoneyScale),
		IngresosMensuales: in.IngresosMensuales.Round(core.MoneyScale),
		GastosFijos:       in.GastosFijos.Round(core.MoneyScale),
		GastosVariables:   in.GastosVariables.Round(core.MoneyScale),
		Plan:              core.PlanGratis,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("onboard owner: %w", err)
	}

	s.remember(a)
	s.logger.InfoContext(ctx, "Account created",
		applog.FieldAccountID, a.ID.String(),
		applog.FieldOwnerID, ownerID)
	return a, nil
}

// ForOwner resolves the account bound to an identity-provider subject.
func (s *AccountService) ForOwner(ctx context.Context, ownerID string) (core.Account, error) {
	if s.cache != nil {
		if a, ok := s.cache.Get(ownerID); ok {
			return a, nil
		}
	}
	a, err := s.store.AccountByOwner(ctx, ownerID)
	if err != nil {
		return core.Account{}, err
	}
	s.remember(a)
	return a, nil
}

func (s *AccountService) ByID(ctx context.Context, id uuid.UUID) (core.Account, error) {
	return s.store.AccountByID(ctx, id)
}

// UpdateSettings replaces the name, opening balance and fallback estimates.
func (s *AccountService) UpdateSettings(ctx context.Context, accountID uuid.UUID, in OnboardInput) (core.Account, error) {
	a, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return core.Account{}, err
	}
	a.Nombre = strings.TrimSpace(in.Nombre)
	a.SaldoActual = in.SaldoActual.Round(core.MoneyScale)
	a.IngresosMensuales = in.IngresosMensuales.Round(core.MoneyScale)
	a.GastosFijos = in.GastosFijos.Round(core.MoneyScale)
	a.GastosVariables = in.GastosVariables.Round(core.MoneyScale)
	a.UpdatedAt = s.now()
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("update account: %w", err)
	}
	s.remember(a)
	return a, nil
}

// Forget drops the cached copy of an account changed elsewhere, for example
// by a plan purchase.
func (s *AccountService) Forget(ctx context.Context, accountID uuid.UUID) {
	if s.cache == nil {
		return
	}
	a, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return
	}
	s.cache.Delete(a.OwnerID)
}

func (s *AccountService) remember(a core.Account) {
	if s.cache != nil {
		s.cache.Set(a.OwnerID, a)
	}
}
