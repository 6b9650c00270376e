package commands

import (
	"fmt"
	"io"

	"cajaclaro/internal/backend"
	"cajaclaro/internal/cashflow"
	"cajaclaro/internal/core"
	"cajaclaro/internal/recurrence"
	"cajaclaro/internal/services"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Width(22).Foreground(lipgloss.Color("245"))
	tierStyles = map[cashflow.RiskTier]lipgloss.Style{
		cashflow.TierSafe:     lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		cashflow.TierWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623")),
		cashflow.TierCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	}
)

func newRunwayCommand(a *app) *cobra.Command {
	var (
		account accountFlags
		shock   string
		horizon int
	)

	cmd := &cobra.Command{
		Use:   "runway",
		Short: "Print an account's cash runway and projected balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if horizon < 1 || horizon > 60 {
				return fmt.Errorf("--horizon must be between 1 and 60")
			}
			pct, err := decimal.NewFromString(shock)
			if err != nil {
				return fmt.Errorf("invalid --shock %q: %w", shock, err)
			}
			ctx := cmd.Context()
			return a.withStore(ctx, func(res *backend.BackendResult) error {
				acc, err := account.resolve(ctx, res.Store)
				if err != nil {
					return err
				}
				processor := services.NewRecurringProcessor(res.Store, recurrence.NewEngine(a.loc), nil)
				dash := services.NewDashboardService(res.Store, processor, a.loc).WithClock(a.now)

				sim, err := dash.Simulate(ctx, acc.ID, pct, horizon)
				if err != nil {
					return err
				}
				renderSimulation(cmd.OutOrStdout(), acc, sim)
				return nil
			})
		},
	}

	account.register(cmd)
	cmd.Flags().StringVar(&shock, "shock", "0", "income drop to simulate, in percent")
	cmd.Flags().IntVar(&horizon, "horizon", services.DefaultHorizonMonths, "months of projected balance")
	return cmd
}

func renderSimulation(w io.Writer, acc core.Account, sim services.Simulation) {
	p := sim.Projection
	row := func(label, value string) {
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value))
	}

	fmt.Fprintln(w, titleStyle.Render(acc.Nombre))
	row("Caja viva", core.FormatCLP(sim.Balance))
	row("Ingreso promedio", core.FormatCLP(p.IncomeAvg))
	row("Gasto promedio", core.FormatCLP(p.ExpenseAvg))
	if !p.ShockPercent.IsZero() {
		row("Ingreso con shock", fmt.Sprintf("%s (-%s%%)", core.FormatCLP(p.ShockedIncome), p.ShockPercent))
	}
	row("Flujo neto mensual", core.FormatCLP(p.NetMonthlyFlow))
	if p.Unbounded {
		row("Runway", "sin límite")
	} else {
		row("Runway", p.RunwayMonths.String()+" meses")
	}
	row("Riesgo", tierStyles[p.RiskTier].Render(string(p.RiskTier)))
	if !p.EsBasadoEnHistorial {
		row("Base", "estimaciones del negocio")
	} else {
		row("Base", fmt.Sprintf("historial (%d meses)", p.MonthsAnalyzed))
	}

	if len(sim.Curve) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, pt := range sim.Curve {
		row(fmt.Sprintf("%04d-%02d", pt.Year, pt.Month), core.FormatCLP(pt.Balance))
	}
}
