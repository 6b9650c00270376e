// Package core provides money parsing and handling utilities.
//
// Amounts are exact decimals. Chilean input commonly uses "." for thousands
// and "," for decimals, so parsing accepts both conventions.
package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for stored amounts.
const MoneyScale = 2

// ParseMonto converts a user supplied amount to a positive decimal.
//
// Currency symbols and spaces are ignored. When both "." and "," appear the
// rightmost one is the decimal separator. A single separator followed by
// exactly three digits is read as a thousands separator. The result is rounded
// half-up to two decimals and must be greater than zero.
//
// Examples:
//
//	ParseMonto("12.34")      -> 12.34
//	ParseMonto("12,34")      -> 12.34
//	ParseMonto("$ 1.234.567") -> 1234567
//	ParseMonto("1.500")      -> 1500
//	ParseMonto("1,234.56")   -> 1234.56
func ParseMonto(s string) (decimal.Decimal, error) {
	d, err := parseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseSignedMonto is like ParseMonto but accepts a leading minus sign and zero.
// It is used for balances, which may be negative.
func ParseSignedMonto(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	neg := strings.HasPrefix(trimmed, "-")
	d, err := parseAmount(strings.TrimPrefix(trimmed, "-"))
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "saldo", Reason: "invalid amount"}
	}
	if neg {
		return d.Neg(), nil
	}
	return d, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.Map(func(r rune) rune {
		if r == '$' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimPrefix(strings.ToUpper(s), "CLP")
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return decimal.Zero, ErrInvalidAmount
	}
	normalized, ok := normalizeSeparators(s)
	if !ok {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(MoneyScale), nil
}

func normalizeSeparators(s string) (string, bool) {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return "", false
		}
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalSep, thousandsSep := ".", ","
		if lastComma > lastDot {
			decimalSep, thousandsSep = ",", "."
		}
		s = strings.ReplaceAll(s, thousandsSep, "")
		if strings.Count(s, decimalSep) != 1 {
			return "", false
		}
		return strings.Replace(s, decimalSep, ".", 1), true
	case lastDot >= 0:
		return normalizeSingle(s, ".")
	case lastComma >= 0:
		return normalizeSingle(s, ",")
	default:
		return s, true
	}
}

func normalizeSingle(s, sep string) (string, bool) {
	parts := strings.Split(s, sep)
	if len(parts) > 2 {
		// Repeated separator can only be grouping: 1.234.567
		for _, p := range parts[1:] {
			if len(p) != 3 {
				return "", false
			}
		}
		return strings.Join(parts, ""), parts[0] != ""
	}
	if len(parts[1]) == 3 && parts[0] != "" && parts[0] != "0" {
		return parts[0] + parts[1], true
	}
	if parts[0] == "" {
		parts[0] = "0"
	}
	if parts[1] == "" {
		return parts[0], true
	}
	return parts[0] + "." + parts[1], true
}

// FormatCLP renders an amount the way Chilean pesos are usually written:
// "$1.234.567", with a decimal comma only when there are cents.
func FormatCLP(d decimal.Decimal) string {
	neg := d.IsNegative()
	d = d.Abs().Round(MoneyScale)
	intPart := d.Truncate(0)
	frac := d.Sub(intPart)

	digits := intPart.String()
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String()
	if !frac.IsZero() {
		out += fmt.Sprintf(",%02d", frac.Shift(MoneyScale).IntPart())
	}
	if neg {
		return "-" + out
	}
	return out
}
