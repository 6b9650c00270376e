package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Ingreso Tipo = "ingreso"
	Gasto   Tipo = "gasto"
)

const (
	Semanal Frecuencia = "semanal"
	Mensual Frecuencia = "mensual"
	Anual   Frecuencia = "anual"
)

const (
	Activo  Estado = "activo"
	Pausado Estado = "pausado"
)

const (
	PlanGratis  Plan = "gratis"
	PlanPro     Plan = "pro"
	PlanEmpresa Plan = "empresa"
)

// CategoriaOtros collects expenses recorded without a category.
const CategoriaOtros = "Otros"

const (
	maxDescripcionLen = 200
	maxCategoriaLen   = 60
	maxNombreLen      = 120
)

type (
	// Tipo tells whether a movement adds or removes cash.
	Tipo string

	// Frecuencia is the period of a recurring definition. The value space is closed.
	Frecuencia string

	// Estado is the state of a recurring definition.
	Estado string

	// Plan is the subscription tier of an account.
	Plan string

	// Account is the tenant root ("negocio"). One per owning user.
	Account struct {
		ID                uuid.UUID
		OwnerID           string
		Nombre            string
		SaldoActual       decimal.Decimal // declared opening balance, signed
		IngresosMensuales decimal.Decimal // fallback estimate
		GastosFijos       decimal.Decimal // fallback estimate
		GastosVariables   decimal.Decimal // fallback estimate
		Plan              Plan
		APIKey            *string
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	// Transaction is an immutable ledger entry. Monto is always positive;
	// the sign used for cash math comes from Tipo.
	Transaction struct {
		ID          uuid.UUID
		AccountID   uuid.UUID
		Tipo        Tipo
		Monto       decimal.Decimal
		Descripcion string
		Categoria   string
		CreatedAt   time.Time // effective date, may be backdated

		// Set only on rows materialized from a recurring definition.
		RecurrenteID *uuid.UUID
		Ocurrencia   *Date
	}

	// RecurringDefinition ("recurrente") is a recurring obligation or income.
	RecurringDefinition struct {
		ID               uuid.UUID
		AccountID        uuid.UUID
		Descripcion      string
		Categoria        string
		Monto            decimal.Decimal
		Tipo             Tipo
		Frecuencia       Frecuencia
		ProximaEjecucion Date
		DiaAncla         int // day of month captured at creation
		Estado           Estado
		DeletedAt        *time.Time
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// Milestone ("hito") is a savings goal evaluated against the live balance.
	Milestone struct {
		ID        uuid.UUID
		AccountID uuid.UUID
		Nombre    string
		Costo     decimal.Decimal
		Ahorro    decimal.Decimal // monthly contribution
		CreatedAt time.Time
	}
)

func (t Tipo) Valid() bool {
	return t == Ingreso || t == Gasto
}

func (f Frecuencia) Valid() bool {
	switch f {
	case Semanal, Mensual, Anual:
		return true
	default:
		return false
	}
}

func (p Plan) Valid() bool {
	switch p {
	case PlanGratis, PlanPro, PlanEmpresa:
		return true
	default:
		return false
	}
}

// SignedAmount returns Monto with the sign implied by Tipo.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Tipo == Gasto {
		return t.Monto.Neg()
	}
	return t.Monto
}

// IsMaterialized reports whether the transaction was produced by the recurrence engine.
func (t Transaction) IsMaterialized() bool {
	return t.RecurrenteID != nil
}

// Active reports whether the definition may still generate transactions.
func (r RecurringDefinition) Active() bool {
	return r.Estado == Activo && r.DeletedAt == nil
}

// Deleted reports whether the definition was logically removed.
func (r RecurringDefinition) Deleted() bool {
	return r.DeletedAt != nil
}

// MonthlyExpenseEstimate is the fallback monthly spending of an account.
func (a Account) MonthlyExpenseEstimate() decimal.Decimal {
	return a.GastosFijos.Add(a.GastosVariables)
}

func (t Transaction) Validate() error {
	if !t.Tipo.Valid() {
		return ErrInvalidTipo
	}
	if err := validateMonto(t.Monto); err != nil {
		return err
	}
	if err := validateDescripcion(t.Descripcion); err != nil {
		return err
	}
	if utf8.RuneCountInString(t.Categoria) > maxCategoriaLen {
		return &ValidationError{Field: "categoria", Reason: "too long (max 60 characters)"}
	}
	if t.CreatedAt.IsZero() {
		return &ValidationError{Field: "fecha", Reason: "required"}
	}
	return nil
}

func (r RecurringDefinition) Validate() error {
	if !r.Tipo.Valid() {
		return ErrInvalidTipo
	}
	if !r.Frecuencia.Valid() {
		return ErrInvalidFrecuencia
	}
	if err := validateMonto(r.Monto); err != nil {
		return err
	}
	if err := validateDescripcion(r.Descripcion); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Categoria) > maxCategoriaLen {
		return &ValidationError{Field: "categoria", Reason: "too long (max 60 characters)"}
	}
	if err := r.ProximaEjecucion.Validate(); err != nil {
		return &ValidationError{Field: "proxima_ejecucion", Reason: err.Error()}
	}
	if r.DiaAncla < 1 || r.DiaAncla > 31 {
		return &ValidationError{Field: "dia_ancla", Reason: "must be between 1 and 31"}
	}
	switch r.Estado {
	case Activo, Pausado:
	default:
		return &ValidationError{Field: "estado", Reason: "must be activo or pausado"}
	}
	return nil
}

func (m Milestone) Validate() error {
	if strings.TrimSpace(m.Nombre) == "" {
		return &ValidationError{Field: "nombre", Reason: "required"}
	}
	if utf8.RuneCountInString(m.Nombre) > maxNombreLen {
		return &ValidationError{Field: "nombre", Reason: "too long (max 120 characters)"}
	}
	if !m.Costo.IsPositive() {
		return &ValidationError{Field: "costo", Reason: "must be greater than zero"}
	}
	if m.Ahorro.IsNegative() {
		return &ValidationError{Field: "ahorro", Reason: "cannot be negative"}
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.OwnerID) == "" {
		return &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if strings.TrimSpace(a.Nombre) == "" {
		return &ValidationError{Field: "nombre", Reason: "required"}
	}
	if utf8.RuneCountInString(a.Nombre) > maxNombreLen {
		return &ValidationError{Field: "nombre", Reason: "too long (max 120 characters)"}
	}
	for field, v := range map[string]decimal.Decimal{
		"ingresos_mensuales": a.IngresosMensuales,
		"gastos_fijos":       a.GastosFijos,
		"gastos_variables":   a.GastosVariables,
	} {
		if v.IsNegative() {
			return &ValidationError{Field: field, Reason: "cannot be negative"}
		}
	}
	if !a.Plan.Valid() {
		return ErrInvalidPlan
	}
	return nil
}

func validateMonto(m decimal.Decimal) error {
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func validateDescripcion(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(s) > maxDescripcionLen {
		return &ValidationError{Field: "descripcion", Reason: "too long (max 200 characters)"}
	}
	return nil
}
