package http

import (
	"net/http"

	"cajaclaro/internal/auth"
	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/services"
)

type accountRequest struct {
	Nombre            string `json:"nombre" validate:"required,max=120"`
	SaldoActual       Amount `json:"saldo_actual"`
	IngresosMensuales Amount `json:"ingresos_mensuales"`
	GastosFijos       Amount `json:"gastos_fijos"`
	GastosVariables   Amount `json:"gastos_variables"`
}

func (req accountRequest) input() (services.OnboardInput, error) {
	in := services.OnboardInput{Nombre: sanitizeInput(req.Nombre)}
	var err error
	// The opening balance may already be overdrawn
	if in.SaldoActual, err = req.SaldoActual.Signed("saldo_actual"); err != nil {
		return in, err
	}
	if in.IngresosMensuales, err = req.IngresosMensuales.NonNegative("ingresos_mensuales"); err != nil {
		return in, err
	}
	if in.GastosFijos, err = req.GastosFijos.NonNegative("gastos_fijos"); err != nil {
		return in, err
	}
	if in.GastosVariables, err = req.GastosVariables.NonNegative("gastos_variables"); err != nil {
		return in, err
	}
	return in, nil
}

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, "onboard", auth.ErrMissingToken)
		return
	}
	var req accountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, "onboard", err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, "onboard", err)
		return
	}
	account, err := s.deps.Accounts.Onboard(r.Context(), id.OwnerID, in)
	if err != nil {
		writeError(w, r, "onboard", err)
		return
	}
	s.logger.InfoContext(r.Context(), "Account onboarded",
		applog.FieldAccountID, account.ID.String())
	NewJSONResponse().Status(http.StatusCreated).Data(toAccountDTO(account)).Write(w)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request, account core.Account) {
	NewJSONResponse().Data(toAccountDTO(account)).Write(w)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request, account core.Account) {
	var req accountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, "update account", err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, "update account", err)
		return
	}
	updated, err := s.deps.Accounts.UpdateSettings(r.Context(), account.ID, in)
	if err != nil {
		writeError(w, r, "update account", err)
		return
	}
	NewJSONResponse().Data(toAccountDTO(updated)).Write(w)
}
