package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cajaclaro/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountUnmarshal(t *testing.T) {
	var v struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"$ 1.234.567","b":12.5}`), &v))
	assert.Equal(t, Amount("$ 1.234.567"), v.A)
	assert.Equal(t, Amount("12.5"), v.B)

	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
}

func TestAmountParsers(t *testing.T) {
	d, err := Amount("1.500").Positive("monto")
	require.NoError(t, err)
	assert.Equal(t, "1500", d.String())

	_, err = Amount("0").Positive("monto")
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "monto", ve.Field)

	d, err = Amount("").Signed("saldo_actual")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = Amount("-150.000").Signed("saldo_actual")
	require.NoError(t, err)
	assert.Equal(t, "-150000", d.String())

	_, err = Amount("-1").NonNegative("gastos_fijos")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "gastos_fijos", ve.Field)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Nombre string `json:"nombre" validate:"required,max=5"`
		Tipo   string `json:"tipo" validate:"omitempty,oneof=ingreso gasto"`
	}
	tests := []struct {
		name   string
		body   string
		field  string
		reason string
	}{
		{"valid", `{"nombre":"abc","tipo":"gasto"}`, "", ""},
		{"missing required", `{"tipo":"gasto"}`, "nombre", "required"},
		{"too long", `{"nombre":"abcdefg"}`, "nombre", "must be at most 5 characters"},
		{"oneof", `{"nombre":"a","tipo":"otro"}`, "tipo", "must be one of: ingreso gasto"},
		{"unknown field", `{"nombre":"a","x":1}`, "body", ""},
		{"malformed", `{"nombre":`, "body", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(httptest.NewRecorder(), req, &p)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, ve.Reason)
			}
		})
	}
}

func TestDecodeJSONBodyLimit(t *testing.T) {
	body := `{"nombre":"` + strings.Repeat("a", maxJSONBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var p struct {
		Nombre string `json:"nombre"`
	}
	err := DecodeJSON(httptest.NewRecorder(), req, &p)
	var tooLarge *http.MaxBytesError
	assert.ErrorAs(t, err, &tooLarge)
}

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	tests := []struct {
		name    string
		query   string
		want    MonthParams
		wantErr string
	}{
		{"no filter", "", MonthParams{}, ""},
		{"both", "year=2024&month=2", MonthParams{Year: 2024, Month: 2, Set: true}, ""},
		// 02:00 UTC on June 1 is still May 31 in Santiago
		{"month defaults to local", "year=2023", MonthParams{Year: 2023, Month: 5, Set: true}, ""},
		{"year defaults to local", "month=12", MonthParams{Year: 2025, Month: 12, Set: true}, ""},
		{"bad month", "month=13", MonthParams{}, "month"},
		{"bad year", "year=abc", MonthParams{}, "year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, err := ParseMonthParams(req, now, santiago)
			if tt.wantErr != "" {
				var ve *core.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantErr, ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOptionalDate(t *testing.T) {
	d, err := ParseOptionalDate("fecha", " ")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseOptionalDate("fecha", "2024-02-29")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.Equal(core.NewDate(2024, 2, 29)))

	_, err = ParseOptionalDate("fecha", "2023-02-29")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "Harina\tflor", sanitizeInput("  Harina\x00\tflor\x07 "))
}
