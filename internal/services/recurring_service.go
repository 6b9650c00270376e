package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/recurrence"
	"cajaclaro/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TickPublisher asks a worker to tick an account asynchronously.
type TickPublisher interface {
	PublishTickRequest(ctx context.Context, accountID uuid.UUID, asOf core.Date) error
}

// PreviewOccurrences is how many upcoming dates List returns per definition.
const PreviewOccurrences = 3

type CreateRecurringInput struct {
	Descripcion string
	Categoria   string
	Monto       decimal.Decimal
	Tipo        core.Tipo
	Frecuencia  core.Frecuencia
	FechaInicio core.Date
}

// RecurringView is a definition with its upcoming occurrences.
type RecurringView struct {
	Definition core.RecurringDefinition
	Proximas   []core.Date
}

type RecurringService struct {
	store     storage.RecurringStore
	engine    *recurrence.Engine
	publisher TickPublisher
	now       func() time.Time
	logger    *applog.Logger
}

// NewRecurringService creates the service. publisher may be nil, in which
// case due definitions are picked up by the next sweep or read.
func NewRecurringService(store storage.RecurringStore, engine *recurrence.Engine, publisher TickPublisher) *RecurringService {
	return &RecurringService{
		store:     store,
		engine:    engine,
		publisher: publisher,
		now:       time.Now,
		logger:    applog.ForComponent(applog.ComponentRecurrence),
	}
}

func (s *RecurringService) Create(ctx context.Context, accountID uuid.UUID, in CreateRecurringInput) (core.RecurringDefinition, error) {
	now := s.now()
	def := core.RecurringDefinition{
		ID:               uuid.New(),
		AccountID:        accountID,
		Descripcion:      strings.TrimSpace(in.Descripcion),
		Categoria:        strings.TrimSpace(in.Categoria),
		Monto:            in.Monto.Round(core.MoneyScale),
		Tipo:             in.Tipo,
		Frecuencia:       in.Frecuencia,
		ProximaEjecucion: in.FechaInicio,
		DiaAncla:         in.FechaInicio.Day(),
		Estado:           core.Activo,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := def.Validate(); err != nil {
		return core.RecurringDefinition{}, err
	}
	fits, err := s.engine.FitsOneTick(def, BusinessDate(now, s.engine.Location()))
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	if !fits {
		return core.RecurringDefinition{}, core.ErrFechaInicioTooOld
	}
	if err := s.store.CreateRecurring(ctx, def); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("create recurring: %w", err)
	}

	s.logger.InfoContext(ctx, "Recurring definition created",
		applog.FieldRecurrenteID, def.ID.String(),
		applog.FieldAccountID, accountID.String(),
		"frecuencia", string(def.Frecuencia),
		"proxima_ejecucion", def.ProximaEjecucion.String())

	s.requestTick(ctx, def)
	return def, nil
}

func (s *RecurringService) List(ctx context.Context, accountID uuid.UUID) ([]RecurringView, error) {
	defs, err := s.store.ListRecurring(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list recurring: %w", err)
	}
	out := make([]RecurringView, 0, len(defs))
	for _, d := range defs {
		out = append(out, RecurringView{
			Definition: d,
			Proximas:   s.engine.NextOccurrences(d, PreviewOccurrences),
		})
	}
	return out, nil
}

func (s *RecurringService) Pause(ctx context.Context, accountID, id uuid.UUID) (core.RecurringDefinition, error) {
	return s.mutate(ctx, accountID, id, applog.OpPause, s.engine.Pause)
}

// Resume reactivates a definition from today's business date on; missed
// occurrences are not generated.
func (s *RecurringService) Resume(ctx context.Context, accountID, id uuid.UUID) (core.RecurringDefinition, error) {
	def, err := s.mutate(ctx, accountID, id, applog.OpResume, s.engine.Resume)
	if err != nil {
		return def, err
	}
	s.requestTick(ctx, def)
	return def, nil
}

func (s *RecurringService) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	_, err := s.mutate(ctx, accountID, id, applog.OpDelete, func(d core.RecurringDefinition, at time.Time) (core.RecurringDefinition, error) {
		return s.engine.Delete(d, at), nil
	})
	return err
}

type transition func(core.RecurringDefinition, time.Time) (core.RecurringDefinition, error)

// mutate applies a state transition with the store's optimistic check,
// retrying once if a concurrent tick moved the definition.
func (s *RecurringService) mutate(ctx context.Context, accountID, id uuid.UUID, op string, apply transition) (core.RecurringDefinition, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		cur, err := s.owned(ctx, accountID, id)
		if err != nil {
			return core.RecurringDefinition{}, err
		}
		next, err := apply(cur, s.now())
		if err != nil {
			return core.RecurringDefinition{}, err
		}
		err = s.store.SaveRecurringState(ctx, next, cur.ProximaEjecucion)
		if err == nil {
			s.logger.InfoContext(ctx, "Recurring definition updated",
				applog.FieldRecurrenteID, id.String(),
				applog.FieldOperation, op,
				"estado", string(next.Estado),
				"proxima_ejecucion", next.ProximaEjecucion.String())
			return next, nil
		}
		if !errors.Is(err, core.ErrConcurrentModification) {
			return core.RecurringDefinition{}, fmt.Errorf("%s recurring: %w", op, err)
		}
		lastErr = err
	}
	return core.RecurringDefinition{}, fmt.Errorf("%s recurring: %w", op, lastErr)
}

// owned loads a definition and hides definitions of other accounts.
func (s *RecurringService) owned(ctx context.Context, accountID, id uuid.UUID) (core.RecurringDefinition, error) {
	def, err := s.store.RecurringByID(ctx, id)
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	if def.AccountID != accountID || def.Deleted() {
		return core.RecurringDefinition{}, fmt.Errorf("get recurring %s: %w", id, storage.ErrNotFound)
	}
	return def, nil
}

func (s *RecurringService) requestTick(ctx context.Context, def core.RecurringDefinition) {
	if s.publisher == nil || !def.Active() {
		return
	}
	asOf := BusinessDate(s.now(), s.engine.Location())
	if def.ProximaEjecucion.After(asOf) {
		return
	}
	if err := s.publisher.PublishTickRequest(ctx, def.AccountID, asOf); err != nil {
		// The next sweep or dashboard read materializes it anyway
		s.logger.WarnContext(ctx, "Failed to publish tick request",
			applog.FieldAccountID, def.AccountID.String(),
			applog.FieldError, err)
	}
}
