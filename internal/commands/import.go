package commands

import (
	"fmt"
	"os"

	"cajaclaro/internal/backend"
	"cajaclaro/internal/importer"
	"cajaclaro/internal/services"

	"github.com/spf13/cobra"
)

func newImportCommand(a *app) *cobra.Command {
	var account accountFlags

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import movements from an .xlsx workbook",
		Long: "Reads the first sheet of FILE and records every row in one batch.\n" +
			"Nothing is written when any row is invalid.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := importer.Parse(f, a.loc, a.today())
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			return a.withStore(ctx, func(res *backend.BackendResult) error {
				acc, err := account.resolve(ctx, res.Store)
				if err != nil {
					return err
				}
				n, err := services.NewLedgerService(res.Store, a.loc).Import(ctx, acc.ID, rows)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d movements into %s\n", n, acc.Nombre)
				return nil
			})
		},
	}

	account.register(cmd)
	return cmd
}
