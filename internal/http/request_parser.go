// This file implements request decoding and validation shared by the
// handlers.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"cajaclaro/internal/core"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so clients can map errors to their fields
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Amount accepts a JSON number or a string in any format core.ParseMonto
// understands ("$ 1.234.567", "12,50").
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// Positive parses the amount as a strictly positive monto.
func (a Amount) Positive(field string) (decimal.Decimal, error) {
	d, err := core.ParseMonto(string(a))
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Reason: "must be a positive amount"}
	}
	return d, nil
}

// Signed parses the amount allowing zero and negatives. An empty amount is zero.
func (a Amount) Signed(field string) (decimal.Decimal, error) {
	if strings.TrimSpace(string(a)) == "" {
		return decimal.Zero, nil
	}
	d, err := core.ParseSignedMonto(string(a))
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Reason: "invalid amount"}
	}
	return d, nil
}

// NonNegative is Signed rejecting negatives.
func (a Amount) NonNegative(field string) (decimal.Decimal, error) {
	d, err := a.Signed(field)
	if err != nil {
		return d, err
	}
	if d.IsNegative() {
		return decimal.Zero, &core.ValidationError{Field: field, Reason: "must not be negative"}
	}
	return d, nil
}

// DecodeJSON reads a JSON body into dst and validates its tags. Unknown
// fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return &core.ValidationError{Field: "body", Reason: "required"}
		}
		return &core.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return ValidateStruct(dst)
}

// ValidateStruct runs the validator and converts its first failure to a
// core.ValidationError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	return &core.ValidationError{Field: fe.Field(), Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "datetime":
		return "must be a date formatted " + fe.Param()
	case "gte", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	default:
		return "failed " + fe.Tag()
	}
}

// ParseOptionalDate parses a YYYY-MM-DD value; empty means nil.
func ParseOptionalDate(field, s string) (*core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return nil, &core.ValidationError{Field: field, Reason: "must be YYYY-MM-DD"}
	}
	return &d, nil
}

// PathID parses a uuid path value.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &core.ValidationError{Field: name, Reason: "must be a uuid"}
	}
	return id, nil
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
	Set   bool
}

// ParseMonthParams reads ?year=&month=. Both absent means no month filter;
// one without the other defaults to the current year or month in loc.
func ParseMonthParams(r *http.Request, now time.Time, loc *time.Location) (MonthParams, error) {
	q := r.URL.Query()
	ys, ms := strings.TrimSpace(q.Get("year")), strings.TrimSpace(q.Get("month"))
	if ys == "" && ms == "" {
		return MonthParams{}, nil
	}
	local := now.In(loc)
	p := MonthParams{Year: local.Year(), Month: int(local.Month()), Set: true}
	if ys != "" {
		y, err := strconv.Atoi(ys)
		if err != nil || y < 1970 || y > 9999 {
			return MonthParams{}, &core.ValidationError{Field: "year", Reason: "invalid year"}
		}
		p.Year = y
	}
	if ms != "" {
		m, err := strconv.Atoi(ms)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, &core.ValidationError{Field: "month", Reason: "must be 1-12"}
		}
		p.Month = m
	}
	return p, nil
}

// sanitizeInput removes control characters except tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
