package http

import (
	"time"

	"cajaclaro/internal/cashflow"
	"cajaclaro/internal/core"
	"cajaclaro/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type accountDTO struct {
	ID                uuid.UUID       `json:"id"`
	Nombre            string          `json:"nombre"`
	SaldoActual       decimal.Decimal `json:"saldo_actual"`
	IngresosMensuales decimal.Decimal `json:"ingresos_mensuales"`
	GastosFijos       decimal.Decimal `json:"gastos_fijos"`
	GastosVariables   decimal.Decimal `json:"gastos_variables"`
	Plan              core.Plan       `json:"plan"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toAccountDTO(a core.Account) accountDTO {
	return accountDTO{
		ID:                a.ID,
		Nombre:            a.Nombre,
		SaldoActual:       a.SaldoActual,
		IngresosMensuales: a.IngresosMensuales,
		GastosFijos:       a.GastosFijos,
		GastosVariables:   a.GastosVariables,
		Plan:              a.Plan,
		CreatedAt:         a.CreatedAt,
	}
}

type transactionDTO struct {
	ID           uuid.UUID       `json:"id"`
	Tipo         core.Tipo       `json:"tipo"`
	Monto        decimal.Decimal `json:"monto"`
	Descripcion  string          `json:"descripcion"`
	Categoria    string          `json:"categoria,omitempty"`
	Fecha        core.Date       `json:"fecha"`
	CreatedAt    time.Time       `json:"created_at"`
	RecurrenteID *uuid.UUID      `json:"recurrente_id,omitempty"`
	Ocurrencia   *core.Date      `json:"ocurrencia,omitempty"`
}

func toTransactionDTO(t core.Transaction, loc *time.Location) transactionDTO {
	return transactionDTO{
		ID:           t.ID,
		Tipo:         t.Tipo,
		Monto:        t.Monto,
		Descripcion:  t.Descripcion,
		Categoria:    t.Categoria,
		Fecha:        core.DateOf(t.CreatedAt, loc),
		CreatedAt:    t.CreatedAt,
		RecurrenteID: t.RecurrenteID,
		Ocurrencia:   t.Ocurrencia,
	}
}

func toTransactionDTOs(txs []core.Transaction, loc *time.Location) []transactionDTO {
	out := make([]transactionDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionDTO(t, loc))
	}
	return out
}

type recurringDTO struct {
	ID               uuid.UUID       `json:"id"`
	Descripcion      string          `json:"descripcion"`
	Categoria        string          `json:"categoria,omitempty"`
	Monto            decimal.Decimal `json:"monto"`
	Tipo             core.Tipo       `json:"tipo"`
	Frecuencia       core.Frecuencia `json:"frecuencia"`
	ProximaEjecucion core.Date       `json:"proxima_ejecucion"`
	DiaAncla         int             `json:"dia_ancla"`
	Estado           core.Estado     `json:"estado"`
	Proximas         []core.Date     `json:"proximas,omitempty"`
}

func toRecurringDTO(d core.RecurringDefinition, next []core.Date) recurringDTO {
	return recurringDTO{
		ID:               d.ID,
		Descripcion:      d.Descripcion,
		Categoria:        d.Categoria,
		Monto:            d.Monto,
		Tipo:             d.Tipo,
		Frecuencia:       d.Frecuencia,
		ProximaEjecucion: d.ProximaEjecucion,
		DiaAncla:         d.DiaAncla,
		Estado:           d.Estado,
		Proximas:         next,
	}
}

type milestoneDTO struct {
	ID            uuid.UUID       `json:"id"`
	Nombre        string          `json:"nombre"`
	Costo         decimal.Decimal `json:"costo"`
	Ahorro        decimal.Decimal `json:"ahorro"`
	Shortfall     decimal.Decimal `json:"faltante"`
	MonthsToReach *int64          `json:"meses_para_lograr,omitempty"`
	Affordable    bool            `json:"alcanzable"`
	Progress      decimal.Decimal `json:"progreso"`
}

func toMilestoneDTO(s cashflow.MilestoneStatus) milestoneDTO {
	return milestoneDTO{
		ID:            s.Milestone.ID,
		Nombre:        s.Milestone.Nombre,
		Costo:         s.Milestone.Costo,
		Ahorro:        s.Milestone.Ahorro,
		Shortfall:     s.Shortfall,
		MonthsToReach: s.MonthsToReach,
		Affordable:    s.Affordable,
		Progress:      s.Progress,
	}
}

type projectionDTO struct {
	MonthsAnalyzed      int               `json:"meses_analizados"`
	IncomeAvg           decimal.Decimal   `json:"ingreso_promedio"`
	ExpenseAvg          decimal.Decimal   `json:"gasto_promedio"`
	ShockPercent        decimal.Decimal   `json:"shock"`
	ShockedIncome       decimal.Decimal   `json:"ingreso_con_shock"`
	NetMonthlyFlow      decimal.Decimal   `json:"flujo_neto_mensual"`
	Unbounded           bool              `json:"sin_limite"`
	RunwayMonths        *decimal.Decimal  `json:"runway_meses,omitempty"`
	RiskTier            cashflow.RiskTier `json:"riesgo"`
	EsBasadoEnHistorial bool              `json:"es_basado_en_historial"`
}

func toProjectionDTO(p cashflow.Projection) projectionDTO {
	dto := projectionDTO{
		MonthsAnalyzed:      p.MonthsAnalyzed,
		IncomeAvg:           p.IncomeAvg,
		ExpenseAvg:          p.ExpenseAvg,
		ShockPercent:        p.ShockPercent,
		ShockedIncome:       p.ShockedIncome,
		NetMonthlyFlow:      p.NetMonthlyFlow,
		Unbounded:           p.Unbounded,
		RiskTier:            p.RiskTier,
		EsBasadoEnHistorial: p.EsBasadoEnHistorial,
	}
	if !p.Unbounded {
		runway := p.RunwayMonths
		dto.RunwayMonths = &runway
	}
	return dto
}

type monthDTO struct {
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	Income        decimal.Decimal `json:"ingresos"`
	Expense       decimal.Decimal `json:"gastos"`
	NetCumulative decimal.Decimal `json:"saldo_acumulado"`
}

type categoryDTO struct {
	Name   string          `json:"categoria"`
	Amount decimal.Decimal `json:"monto"`
}

type overviewDTO struct {
	Account           accountDTO      `json:"negocio"`
	AsOf              core.Date       `json:"fecha"`
	CajaViva          decimal.Decimal `json:"caja_viva"`
	TotalIngresos     decimal.Decimal `json:"total_ingresos"`
	TotalGastos       decimal.Decimal `json:"total_gastos"`
	Months            []monthDTO      `json:"meses"`
	Categories        []categoryDTO   `json:"categorias"`
	Milestones        []milestoneDTO  `json:"hitos"`
	Projection        projectionDTO   `json:"proyeccion"`
	RecurringFailures int             `json:"recurrentes_con_error,omitempty"`
}

func toOverviewDTO(o services.Overview) overviewDTO {
	dto := overviewDTO{
		Account:           toAccountDTO(o.Account),
		AsOf:              o.AsOf,
		CajaViva:          o.Balance,
		TotalIngresos:     o.Totals.Income,
		TotalGastos:       o.Totals.Expense,
		Months:            make([]monthDTO, 0, len(o.Months)),
		Categories:        make([]categoryDTO, 0, len(o.Categories)),
		Milestones:        make([]milestoneDTO, 0, len(o.Milestones)),
		Projection:        toProjectionDTO(o.Projection),
		RecurringFailures: o.RecurringFailures,
	}
	for _, m := range o.Months {
		dto.Months = append(dto.Months, monthDTO{
			Year: m.Year, Month: m.Month, Income: m.Income, Expense: m.Expense, NetCumulative: m.NetCumulative,
		})
	}
	for _, c := range o.Categories {
		dto.Categories = append(dto.Categories, categoryDTO{Name: c.Name, Amount: c.Amount})
	}
	for _, m := range o.Milestones {
		dto.Milestones = append(dto.Milestones, toMilestoneDTO(m))
	}
	return dto
}

type balancePointDTO struct {
	Year    int             `json:"year"`
	Month   int             `json:"month"`
	Balance decimal.Decimal `json:"saldo"`
}

type simulationDTO struct {
	CajaViva   decimal.Decimal   `json:"caja_viva"`
	Projection projectionDTO     `json:"proyeccion"`
	Curve      []balancePointDTO `json:"curva"`
}

func toSimulationDTO(s services.Simulation) simulationDTO {
	dto := simulationDTO{
		CajaViva:   s.Balance,
		Projection: toProjectionDTO(s.Projection),
		Curve:      make([]balancePointDTO, 0, len(s.Curve)),
	}
	for _, p := range s.Curve {
		dto.Curve = append(dto.Curve, balancePointDTO{Year: p.Year, Month: p.Month, Balance: p.Balance})
	}
	return dto
}
