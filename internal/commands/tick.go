package commands

import (
	"fmt"

	"cajaclaro/internal/backend"
	"cajaclaro/internal/recurrence"
	"cajaclaro/internal/services"

	"github.com/spf13/cobra"
)

func newTickCommand(a *app) *cobra.Command {
	var (
		account accountFlags
		asOf    string
	)

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Materialize due recurring movements now",
		Long: "Runs the recurrence engine over every due definition, or only over one\n" +
			"account's definitions when --account or --owner is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDateFlag("as-of", asOf)
			if err != nil {
				return err
			}
			if date.IsEmpty() {
				date = a.today()
			}
			ctx := cmd.Context()

			return a.withStore(ctx, func(res *backend.BackendResult) error {
				processor := services.NewRecurringProcessor(res.Store, recurrence.NewEngine(a.loc), nil).
					WithConcurrency(a.cfg.RecurringConcurrency)

				var report services.Report
				if account.set() {
					acc, err := account.resolve(ctx, res.Store)
					if err != nil {
						return err
					}
					report, err = processor.ProcessAccount(ctx, acc.ID, date)
					if err != nil {
						return err
					}
				} else {
					report, err = processor.ProcessDue(ctx, date)
					if err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "as of %s: checked %d, materialized %d\n", date, report.Checked, report.Materialized)
				for _, f := range report.Failures {
					fmt.Fprintf(out, "  failed %s at %s: %v\n", f.DefinitionID, f.AttemptedDate, f.Err)
				}
				if len(report.Failures) > 0 {
					return fmt.Errorf("%d definitions failed", len(report.Failures))
				}
				return nil
			})
		},
	}

	account.register(cmd)
	cmd.Flags().StringVar(&asOf, "as-of", "", "business date to tick to (default: today)")
	return cmd
}
