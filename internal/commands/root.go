// Package commands implements the operator CLI.
package commands

import (
	"context"
	"fmt"
	"time"

	"cajaclaro/internal/backend"
	"cajaclaro/internal/cli"
	"cajaclaro/internal/config"
	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// app is the state shared by every subcommand.
type app struct {
	envFile string
	cfg     *config.Config
	logger  *applog.Logger
	loc     *time.Location
	now     func() time.Time
	open    func(ctx context.Context) (*backend.BackendResult, error)
}

// Option customizes the root command, mainly for tests.
type Option func(*app)

// WithConfig skips env loading and uses cfg as is.
func WithConfig(cfg *config.Config) Option {
	return func(a *app) { a.cfg = cfg }
}

// WithStore makes every subcommand use store instead of opening the
// configured backend.
func WithStore(store storage.Store) Option {
	return func(a *app) {
		a.open = func(context.Context) (*backend.BackendResult, error) {
			return &backend.BackendResult{Store: store, Cleanup: func() error { return nil }}, nil
		}
	}
}

// WithClock fixes the current instant.
func WithClock(now func() time.Time) Option {
	return func(a *app) { a.now = now }
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	rootCmd := &cobra.Command{
		Use:   "cajaclaro-cli",
		Short: "Operator tools for the CajaClaro ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "environment file to load")

	rootCmd.AddCommand(
		newTickCommand(a),
		newRunwayCommand(a),
		newImportCommand(a),
		newExportCommand(a),
		newMigrateCommand(a),
		newTokenCommand(a),
	)
	return rootCmd
}

func (a *app) init() error {
	if a.cfg == nil {
		cfg, err := cli.LoadConfig(a.envFile)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.logger == nil {
		logger, err := cli.SetupLogger(a.cfg, applog.ComponentCLI)
		if err != nil {
			return err
		}
		a.logger = logger
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	a.loc = loc
	if a.open == nil {
		a.open = func(ctx context.Context) (*backend.BackendResult, error) {
			return cli.OpenBackend(ctx, a.cfg, a.logger)
		}
	}
	return nil
}

// withStore opens the backend for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(*backend.BackendResult) error) error {
	res, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			a.logger.Warn("Failed to close backend", applog.FieldError, err)
		}
	}()
	return fn(res)
}

func (a *app) today() core.Date {
	return core.DateOf(a.now(), a.loc)
}

// accountFlags selects an account by id or by owner subject.
type accountFlags struct {
	id    string
	owner string
}

func (f *accountFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "account", "", "account id")
	cmd.Flags().StringVar(&f.owner, "owner", "", "owner subject of the account")
	cmd.MarkFlagsMutuallyExclusive("account", "owner")
}

func (f *accountFlags) set() bool {
	return f.id != "" || f.owner != ""
}

func (f *accountFlags) resolve(ctx context.Context, store storage.AccountStore) (core.Account, error) {
	switch {
	case f.id != "":
		id, err := uuid.Parse(f.id)
		if err != nil {
			return core.Account{}, fmt.Errorf("invalid --account: %w", err)
		}
		return store.AccountByID(ctx, id)
	case f.owner != "":
		return store.AccountByOwner(ctx, f.owner)
	default:
		return core.Account{}, fmt.Errorf("one of --account or --owner is required")
	}
}

func parseDateFlag(name, v string) (core.Date, error) {
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", name, v)
	}
	return d, nil
}
