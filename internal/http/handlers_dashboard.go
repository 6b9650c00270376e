package http

import (
	"net/http"

	"cajaclaro/internal/core"
	"cajaclaro/internal/services"

	"github.com/shopspring/decimal"
)

// maxHorizonMonths caps the simulated curve.
const maxHorizonMonths = 60

type simulateRequest struct {
	Shock   Amount `json:"shock"`
	Horizon int    `json:"horizonte" validate:"omitempty,min=1,max=60"`
}

type milestoneRequest struct {
	Nombre string `json:"nombre" validate:"required,max=120"`
	Costo  Amount `json:"costo" validate:"required"`
	Ahorro Amount `json:"ahorro"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, account core.Account) {
	o, err := s.deps.Dashboard.Overview(r.Context(), account.ID)
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}
	NewJSONResponse().Data(toOverviewDTO(o)).Write(w)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request, account core.Account) {
	var req simulateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, "simulate", err)
		return
	}
	shock, err := req.Shock.Signed("shock")
	if err != nil {
		writeError(w, r, "simulate", err)
		return
	}
	if shock.IsNegative() || shock.GreaterThan(decimal.NewFromInt(100)) {
		writeError(w, r, "simulate", core.ErrInvalidShock)
		return
	}
	horizon := req.Horizon
	if horizon == 0 {
		horizon = services.DefaultHorizonMonths
	}
	horizon = min(horizon, maxHorizonMonths)

	sim, err := s.deps.Dashboard.Simulate(r.Context(), account.ID, shock, horizon)
	if err != nil {
		writeError(w, r, "simulate", err)
		return
	}
	NewJSONResponse().Data(toSimulationDTO(sim)).Write(w)
}

func (s *Server) handleCreateMilestone(w http.ResponseWriter, r *http.Request, account core.Account) {
	var req milestoneRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create milestone", err)
		return
	}
	costo, err := req.Costo.Positive("costo")
	if err != nil {
		writeError(w, r, "create milestone", err)
		return
	}
	ahorro, err := req.Ahorro.NonNegative("ahorro")
	if err != nil {
		writeError(w, r, "create milestone", err)
		return
	}
	m, err := s.deps.Milestones.Create(r.Context(), account.ID, services.CreateMilestoneInput{
		Nombre: sanitizeInput(req.Nombre),
		Costo:  costo,
		Ahorro: ahorro,
	})
	if err != nil {
		writeError(w, r, "create milestone", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(map[string]any{
		"id":     m.ID,
		"nombre": m.Nombre,
		"costo":  m.Costo,
		"ahorro": m.Ahorro,
	}).Write(w)
}

func (s *Server) handleDeleteMilestone(w http.ResponseWriter, r *http.Request, account core.Account) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, "delete milestone", err)
		return
	}
	if err := s.deps.Milestones.Delete(r.Context(), account.ID, id); err != nil {
		writeError(w, r, "delete milestone", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
