package commands

import (
	"fmt"
	"os"
	"time"

	"cajaclaro/internal/backend"
	"cajaclaro/internal/importer"
	"cajaclaro/internal/services"
	"cajaclaro/internal/storage"

	"github.com/spf13/cobra"
)

func newExportCommand(a *app) *cobra.Command {
	var (
		account     accountFlags
		year, month int
	)

	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Export movements to an .xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := storage.Range{}
			switch {
			case year == 0 && month == 0:
			case year > 0 && month >= 1 && month <= 12:
				r = services.MonthRange(year, time.Month(month), a.loc)
			default:
				return fmt.Errorf("--year and --month must be given together, month in 1..12")
			}

			ctx := cmd.Context()
			return a.withStore(ctx, func(res *backend.BackendResult) error {
				acc, err := account.resolve(ctx, res.Store)
				if err != nil {
					return err
				}
				txs, err := services.NewLedgerService(res.Store, a.loc).List(ctx, acc.ID, r)
				if err != nil {
					return err
				}

				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				if err := importer.Export(f, txs, a.loc); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d movements to %s\n", len(txs), args[0])
				return nil
			})
		},
	}

	account.register(cmd)
	cmd.Flags().IntVar(&year, "year", 0, "only export this year (requires --month)")
	cmd.Flags().IntVar(&month, "month", 0, "only export this month")
	return cmd
}
