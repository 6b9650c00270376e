package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cajaclaro/internal/auth"
	"cajaclaro/internal/config"
	"cajaclaro/internal/core"
	"cajaclaro/internal/storage"
	"cajaclaro/internal/storage/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 4, 15, 15, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		DataBackend:          "memory",
		BusinessTimezone:     "UTC",
		RecurringConcurrency: 2,
		AuthJWTSecret:        "cli-secret",
		LogLevel:             "error",
		LogFormat:            "text",
	}
}

func run(t *testing.T, cfg *config.Config, store *memory.Store, args ...string) (string, error) {
	t.Helper()
	opts := []Option{WithConfig(cfg), WithClock(func() time.Time { return testNow })}
	if store != nil {
		opts = append(opts, WithStore(store))
	}
	cmd := NewRootCommand(opts...)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedAccount(t *testing.T, store *memory.Store, owner string) core.Account {
	t.Helper()
	a := core.Account{
		ID:                uuid.New(),
		OwnerID:           owner,
		Nombre:            "Panadería " + owner,
		SaldoActual:       decimal.NewFromInt(1_000_000),
		IngresosMensuales: decimal.NewFromInt(500_000),
		GastosFijos:       decimal.NewFromInt(300_000),
		GastosVariables:   decimal.NewFromInt(100_000),
		Plan:              core.PlanGratis,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}
	require.NoError(t, store.CreateAccount(context.Background(), a))
	return a
}

func TestTickCommand(t *testing.T) {
	store := memory.New()
	a := seedAccount(t, store, "owner_1")
	def := core.RecurringDefinition{
		ID:               uuid.New(),
		AccountID:        a.ID,
		Descripcion:      "Arriendo",
		Monto:            decimal.NewFromInt(350_000),
		Tipo:             core.Gasto,
		Frecuencia:       core.Mensual,
		ProximaEjecucion: core.NewDate(2025, 3, 10),
		DiaAncla:         10,
		Estado:           core.Activo,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
	require.NoError(t, store.CreateRecurring(context.Background(), def))

	out, err := run(t, testConfig(), store, "tick", "--owner", "owner_1")
	require.NoError(t, err)
	assert.Contains(t, out, "as of 2025-04-15: checked 1, materialized 2")

	got, err := store.RecurringByID(context.Background(), def.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-10", got.ProximaEjecucion.String())

	out, err = run(t, testConfig(), store, "tick", "--as-of", "2025-05-10")
	require.NoError(t, err)
	assert.Contains(t, out, "checked 1, materialized 1")

	txs, err := store.ListTransactions(context.Background(), a.ID, storage.Range{})
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestTickCommandRejectsBadDate(t *testing.T) {
	_, err := run(t, testConfig(), memory.New(), "tick", "--as-of", "15/04/2025")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want YYYY-MM-DD")
}

func TestRunwayCommand(t *testing.T) {
	store := memory.New()
	a := seedAccount(t, store, "owner_1")

	out, err := run(t, testConfig(), store, "runway", "--account", a.ID.String(), "--horizon", "3")
	require.NoError(t, err)
	assert.Contains(t, out, a.Nombre)
	assert.Contains(t, out, "$1.000.000")
	assert.Contains(t, out, "sin límite")
	assert.Contains(t, out, "safe")
	assert.Contains(t, out, "estimaciones del negocio")

	out, err = run(t, testConfig(), store, "runway", "--owner", "owner_1", "--shock", "50", "--horizon", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "6.7 meses")
	assert.Contains(t, out, "warning")
	assert.Contains(t, out, "-$150.000")
	assert.Contains(t, out, "$850.000")
	assert.Contains(t, out, "$700.000")
}

func TestRunwayCommandErrors(t *testing.T) {
	store := memory.New()
	seedAccount(t, store, "owner_1")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no account", []string{"runway"}, "--account or --owner"},
		{"bad id", []string{"runway", "--account", "nope"}, "invalid --account"},
		{"unknown owner", []string{"runway", "--owner", "ghost"}, "not found"},
		{"bad shock", []string{"runway", "--owner", "owner_1", "--shock", "abc"}, "invalid --shock"},
		{"shock out of range", []string{"runway", "--owner", "owner_1", "--shock", "120"}, core.ErrInvalidShock.Error()},
		{"horizon", []string{"runway", "--owner", "owner_1", "--horizon", "0"}, "--horizon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, testConfig(), store, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExportThenImport(t *testing.T) {
	store := memory.New()
	src := seedAccount(t, store, "owner_1")
	dst := seedAccount(t, store, "owner_2")

	txs := []core.Transaction{
		{ID: uuid.New(), AccountID: src.ID, Tipo: core.Ingreso, Monto: decimal.NewFromInt(120_000), Descripcion: "Ventas", Categoria: "Ventas", CreatedAt: time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)},
		{ID: uuid.New(), AccountID: src.ID, Tipo: core.Gasto, Monto: decimal.NewFromInt(45_500), Descripcion: "Harina", Categoria: "Insumos", CreatedAt: time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, store.InsertTransactions(context.Background(), txs))

	file := filepath.Join(t.TempDir(), "movimientos.xlsx")
	out, err := run(t, testConfig(), store, "export", file, "--owner", "owner_1")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 movements")

	out, err = run(t, testConfig(), store, "export", file, "--owner", "owner_1", "--year", "2025", "--month", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 movements")

	out, err = run(t, testConfig(), store, "import", file, "--account", dst.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 movements into "+dst.Nombre)

	got, err := store.ListTransactions(context.Background(), dst.ID, storage.Range{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Harina", got[0].Descripcion)
	assert.True(t, got[0].Monto.Equal(decimal.NewFromInt(45_500)))
}

func TestExportRequiresYearAndMonth(t *testing.T) {
	store := memory.New()
	seedAccount(t, store, "owner_1")
	file := filepath.Join(t.TempDir(), "x.xlsx")

	_, err := run(t, testConfig(), store, "export", file, "--owner", "owner_1", "--month", "4")
	require.Error(t, err)
}

func TestImportMissingFile(t *testing.T) {
	_, err := run(t, testConfig(), memory.New(), "import", filepath.Join(t.TempDir(), "none.xlsx"), "--owner", "x")
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	cfg := testConfig()
	out, err := run(t, cfg, nil, "token", "--subject", "user_9", "--email", "a@b.cl")
	require.NoError(t, err)

	id, err := auth.NewVerifier(cfg.AuthJWTSecret, "").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user_9", id.OwnerID)
	assert.Equal(t, "a@b.cl", id.Email)

	cfg.AuthJWTSecret = ""
	_, err = run(t, cfg, nil, "token", "--subject", "user_9")
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	cfg := testConfig()
	_, err := run(t, cfg, nil, "migrate", "version")
	require.Error(t, err)

	cfg.DataBackend = "sqlite"
	cfg.SQLiteDBPath = filepath.Join(t.TempDir(), "cli.db")

	out, err := run(t, cfg, nil, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "(clean)")

	out, err = run(t, cfg, nil, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")

	_, err = run(t, cfg, nil, "migrate", "down", "zero")
	assert.Error(t, err)
}
