package payments

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Prices are the monthly plan prices in CLP.
var Prices = map[core.Plan]decimal.Decimal{
	core.PlanPro:     decimal.NewFromInt(9_990),
	core.PlanEmpresa: decimal.NewFromInt(29_990),
}

// Result reports what a confirmation did.
type Result struct {
	Confirmation Confirmation
	// Applied is false for unpaid confirmations and for duplicates.
	Applied bool
}

type Service struct {
	store    storage.PaymentStore
	gateways map[string]Gateway
	now      func() time.Time
	logger   *applog.Logger
	// onApplied runs after a plan change commits.
	onApplied func(ctx context.Context, accountID uuid.UUID)
}

func NewService(store storage.PaymentStore, gateways ...Gateway) *Service {
	s := &Service{
		store:    store,
		gateways: make(map[string]Gateway, len(gateways)),
		now:      time.Now,
		logger:   applog.ForComponent(applog.ComponentPayments),
	}
	for _, g := range gateways {
		s.gateways[g.Name()] = g
	}
	return s
}

// OnApplied registers a hook run after each applied purchase.
func (s *Service) OnApplied(fn func(ctx context.Context, accountID uuid.UUID)) {
	s.onApplied = fn
}

// Confirm verifies a gateway callback and applies the purchased plan.
// Replaying the same callback is harmless.
func (s *Service) Confirm(ctx context.Context, gateway string, header http.Header, body []byte) (Result, error) {
	g, ok := s.gateways[gateway]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownGateway, gateway)
	}
	c, err := g.Verify(header, body)
	if err != nil {
		s.logger.WarnContext(ctx, "Rejected payment confirmation",
			applog.FieldGateway, gateway,
			applog.FieldError, err)
		return Result{}, err
	}
	res := Result{Confirmation: c}

	if !c.Paid {
		s.logger.InfoContext(ctx, "Payment not completed",
			applog.FieldGateway, gateway,
			applog.FieldAccountID, c.AccountID.String())
		return res, nil
	}
	if price, ok := Prices[c.Plan]; ok && c.Amount.LessThan(price) {
		return Result{}, &core.ValidationError{Field: "amount", Reason: fmt.Sprintf("%s is below the %s price", c.Amount, c.Plan)}
	}

	applied, err := s.store.ApplyPlanPurchase(ctx, storage.PlanPurchase{
		Gateway:     c.Gateway,
		Token:       c.Token,
		AccountID:   c.AccountID,
		Plan:        c.Plan,
		Amount:      c.Amount,
		ConfirmedAt: s.now(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply plan purchase: %w", err)
	}
	res.Applied = applied

	s.logger.InfoContext(ctx, "Payment confirmation processed",
		applog.FieldGateway, gateway,
		applog.FieldAccountID, c.AccountID.String(),
		applog.FieldPlan, string(c.Plan),
		"applied", applied)

	if applied && s.onApplied != nil {
		s.onApplied(ctx, c.AccountID)
	}
	return res, nil
}
