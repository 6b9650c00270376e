// Package recurrence implements the pure scheduling rules of recurring
// definitions: advancing the next due date, materializing due occurrences and
// the pause/resume/delete state transitions. Nothing here performs I/O.
//
// Each frequency has its own Schedule strategy, looked up from a fixed
// registry keyed by core.Frecuencia.
package recurrence

import (
	"cajaclaro/internal/core"
	"time"
)

// Schedule is the strategy interface for one frequency.
type Schedule interface {
	// Next returns the occurrence that follows from. anchorDay is the day of
	// month captured when the definition was created; it lets a clamped
	// occurrence (Feb 28) return to the original day (Mar 31).
	Next(from core.Date, anchorDay int) core.Date

	// FirstOnOrAfter returns the first occurrence of the series through from
	// that is not before target. It is computed without iterating.
	FirstOnOrAfter(from core.Date, anchorDay int, target core.Date) core.Date
}

// WeeklySchedule advances seven days at a time.
type WeeklySchedule struct{}

func (WeeklySchedule) Next(from core.Date, _ int) core.Date {
	return from.AddDays(7)
}

func (WeeklySchedule) FirstOnOrAfter(from core.Date, _ int, target core.Date) core.Date {
	if !from.Before(target) {
		return from
	}
	days := int(target.Sub(from.Time).Hours() / 24)
	weeks := (days + 6) / 7
	return from.AddDays(7 * weeks)
}

// MonthlySchedule advances one calendar month, clamping to the last day of
// shorter months.
type MonthlySchedule struct{}

func (MonthlySchedule) Next(from core.Date, anchorDay int) core.Date {
	return monthOffset(from, anchorDay, 1)
}

func (MonthlySchedule) FirstOnOrAfter(from core.Date, anchorDay int, target core.Date) core.Date {
	if !from.Before(target) {
		return from
	}
	months := (target.Year()-from.Year())*12 + target.Month() - from.Month()
	candidate := monthOffset(from, anchorDay, months)
	if candidate.Before(target) {
		candidate = monthOffset(from, anchorDay, months+1)
	}
	return candidate
}

// YearlySchedule advances one year. A Feb 29 anchor lands on Feb 28 in
// non-leap years.
type YearlySchedule struct{}

func (YearlySchedule) Next(from core.Date, anchorDay int) core.Date {
	return monthOffset(from, anchorDay, 12)
}

func (YearlySchedule) FirstOnOrAfter(from core.Date, anchorDay int, target core.Date) core.Date {
	if !from.Before(target) {
		return from
	}
	years := target.Year() - from.Year()
	candidate := monthOffset(from, anchorDay, 12*years)
	if candidate.Before(target) {
		candidate = monthOffset(from, anchorDay, 12*(years+1))
	}
	return candidate
}

// monthOffset moves from by n calendar months and places the result on
// anchorDay, or on the month's last day when anchorDay does not exist.
func monthOffset(from core.Date, anchorDay, n int) core.Date {
	if anchorDay < 1 {
		anchorDay = from.Day()
	}
	// First of the target month never overflows.
	first := time.Date(from.Year(), time.Month(from.Month())+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := min(anchorDay, core.DaysIn(first.Year(), first.Month()))
	return core.NewDate(first.Year(), int(first.Month()), day)
}

var schedules = map[core.Frecuencia]Schedule{
	core.Semanal: WeeklySchedule{},
	core.Mensual: MonthlySchedule{},
	core.Anual:   YearlySchedule{},
}

// ScheduleFor returns the strategy for a frequency. The value space is closed,
// so an unknown frequency is a validation error.
func ScheduleFor(f core.Frecuencia) (Schedule, error) {
	s, ok := schedules[f]
	if !ok {
		return nil, core.ErrInvalidFrecuencia
	}
	return s, nil
}
