package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrRecurrenceOverflow     = errors.New("recurrence overflow")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
)

var (
	ErrInvalidAmount     = &ValidationError{Field: "monto", Reason: "must be a positive amount"}
	ErrEmptyDescription  = &ValidationError{Field: "descripcion", Reason: "required"}
	ErrInvalidTipo       = &ValidationError{Field: "tipo", Reason: "must be ingreso or gasto"}
	ErrInvalidFrecuencia = &ValidationError{Field: "frecuencia", Reason: "must be semanal, mensual or anual"}
	ErrInvalidPlan       = &ValidationError{Field: "plan", Reason: "must be gratis, pro or empresa"}
	ErrInvalidShock      = &ValidationError{Field: "shock", Reason: "must be between 0 and 100"}
	ErrFechaInicioTooOld = &ValidationError{Field: "fecha_inicio", Reason: "too many periods in the past to catch up"}
)

// ValidationError reports a malformed input. The caller must fix it; retrying
// will not help.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RecurrenceOverflowError is raised when a tick does not converge.
type RecurrenceOverflowError struct {
	DefinitionID  uuid.UUID
	AttemptedDate Date
	Iterations    int
}

func (e *RecurrenceOverflowError) Error() string {
	return fmt.Sprintf("recurrence overflow: definition %s stuck at %s after %d iterations",
		e.DefinitionID, e.AttemptedDate, e.Iterations)
}

func (e *RecurrenceOverflowError) Is(target error) bool {
	return target == ErrRecurrenceOverflow
}

// UpstreamError wraps a failure of the store, the broker or a gateway.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream unavailable: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Upstream wraps err as an UpstreamError. A nil err stays nil.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}

// IsRetryable reports whether the same request may succeed if retried later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrConcurrentModification)
}
