package commands

import (
	"fmt"
	"strconv"

	"cajaclaro/internal/storage"

	"github.com/spf13/cobra"
)

func newMigrateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			if a.cfg.DataBackend != "sqlite" {
				return fmt.Errorf("migrations only apply to the sqlite backend, got %q", a.cfg.DataBackend)
			}
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := storage.RunMigrations(a.cfg.SQLiteDBPath); err != nil {
					return err
				}
				return printVersion(cmd, a.cfg.SQLiteDBPath)
			},
		},
		&cobra.Command{
			Use:   "down [STEPS]",
			Short: "Roll back migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("invalid STEPS %q", args[0])
					}
					steps = n
				}
				if err := storage.RollbackMigrations(a.cfg.SQLiteDBPath, steps); err != nil {
					return err
				}
				return printVersion(cmd, a.cfg.SQLiteDBPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printVersion(cmd, a.cfg.SQLiteDBPath)
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, path string) error {
	v, dirty, err := storage.MigrationVersion(path)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", v, state)
	return nil
}
