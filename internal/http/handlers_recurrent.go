package http

import (
	"net/http"

	"cajaclaro/internal/core"
	"cajaclaro/internal/services"
)

type recurringRequest struct {
	Descripcion string          `json:"descripcion" validate:"required,max=200"`
	Categoria   string          `json:"categoria" validate:"max=60"`
	Monto       Amount          `json:"monto" validate:"required"`
	Tipo        core.Tipo       `json:"tipo" validate:"required,oneof=ingreso gasto"`
	Frecuencia  core.Frecuencia `json:"frecuencia" validate:"required,oneof=semanal mensual anual"`
	FechaInicio string          `json:"fecha_inicio" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request, account core.Account) {
	var req recurringRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create recurring", err)
		return
	}
	monto, err := req.Monto.Positive("monto")
	if err != nil {
		writeError(w, r, "create recurring", err)
		return
	}
	start, err := ParseOptionalDate("fecha_inicio", req.FechaInicio)
	if err != nil {
		writeError(w, r, "create recurring", err)
		return
	}
	in := services.CreateRecurringInput{
		Descripcion: sanitizeInput(req.Descripcion),
		Categoria:   sanitizeInput(req.Categoria),
		Monto:       monto,
		Tipo:        req.Tipo,
		Frecuencia:  req.Frecuencia,
		FechaInicio: s.today(),
	}
	if start != nil {
		in.FechaInicio = *start
	}

	def, err := s.deps.Recurring.Create(r.Context(), account.ID, in)
	if err != nil {
		writeError(w, r, "create recurring", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(toRecurringDTO(def, nil)).Write(w)
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request, account core.Account) {
	views, err := s.deps.Recurring.List(r.Context(), account.ID)
	if err != nil {
		writeError(w, r, "list recurring", err)
		return
	}
	out := make([]recurringDTO, 0, len(views))
	for _, v := range views {
		out = append(out, toRecurringDTO(v.Definition, v.Proximas))
	}
	NewJSONResponse().Data(map[string]any{"recurrentes": out}).Write(w)
}

func (s *Server) handlePauseRecurring(w http.ResponseWriter, r *http.Request, account core.Account) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, "pause recurring", err)
		return
	}
	def, err := s.deps.Recurring.Pause(r.Context(), account.ID, id)
	if err != nil {
		writeError(w, r, "pause recurring", err)
		return
	}
	NewJSONResponse().Data(toRecurringDTO(def, nil)).Write(w)
}

func (s *Server) handleResumeRecurring(w http.ResponseWriter, r *http.Request, account core.Account) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, "resume recurring", err)
		return
	}
	def, err := s.deps.Recurring.Resume(r.Context(), account.ID, id)
	if err != nil {
		writeError(w, r, "resume recurring", err)
		return
	}
	NewJSONResponse().Data(toRecurringDTO(def, nil)).Write(w)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request, account core.Account) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, "delete recurring", err)
		return
	}
	if err := s.deps.Recurring.Delete(r.Context(), account.ID, id); err != nil {
		writeError(w, r, "delete recurring", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
