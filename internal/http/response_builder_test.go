package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cajaclaro/internal/auth"
	"cajaclaro/internal/core"
	"cajaclaro/internal/importer"
	"cajaclaro/internal/payments"
	"cajaclaro/internal/services"
	"cajaclaro/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONResponseBuilder(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		Data(map[string]int{"importadas": 3}).
		Write(rr)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-Test"))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"importadas":3}`, rr.Body.String())
}

func TestJSONResponseBuilderNoBody(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(rr)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Empty(t, rr.Header().Get("Content-Type"))
}

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		field  string
		row    int
	}{
		{"validation", core.ErrInvalidAmount, http.StatusUnprocessableEntity, "validation", "monto", 0},
		{"wrapped validation", fmt.Errorf("record: %w", core.ErrInvalidTipo), http.StatusUnprocessableEntity, "validation", "tipo", 0},
		{"import row", &services.ImportError{Row: 4, Err: core.ErrEmptyDescription}, http.StatusUnprocessableEntity, "invalid_row", "descripcion", 4},
		{"sheet row", &importer.RowError{Row: 7, Err: core.ErrInvalidAmount}, http.StatusUnprocessableEntity, "invalid_row", "monto", 7},
		{"not found", fmt.Errorf("get: %w", storage.ErrNotFound), http.StatusNotFound, "not_found", "", 0},
		{"conflict", storage.ErrConflict, http.StatusConflict, "conflict", "", 0},
		{"concurrent", core.ErrConcurrentModification, http.StatusServiceUnavailable, "retry", "", 0},
		{"token", auth.ErrInvalidToken, http.StatusUnauthorized, "unauthorized", "", 0},
		{"signature", payments.ErrInvalidSignature, http.StatusUnauthorized, "unauthorized", "", 0},
		{"malformed", payments.ErrMalformed, http.StatusBadRequest, "bad_request", "", 0},
		{"gateway", payments.ErrUnknownGateway, http.StatusNotFound, "not_found", "", 0},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, "too_large", "", 0},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ErrorFor(tt.err).Write(rr)
			assert.Equal(t, tt.status, rr.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.field, body.Error.Field)
			assert.Equal(t, tt.row, body.Error.Row)
		})
	}
}

func TestErrorForRetryableSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorFor(core.ErrConcurrentModification).Write(rr)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestInternalErrorsHideDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rr, req, "test", errors.New("dsn=postgres://secret"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret")
}
