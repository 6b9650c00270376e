package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cajaclaro/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout is fixed width so that text comparison orders instants.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the database file, applies
// migrations and returns a ready repository.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool exists
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewSQLiteRepositoryFromDB(db), nil
}

// NewSQLiteRepositoryFromDB wraps an already opened database. Migrations are
// not run.
func NewSQLiteRepositoryFromDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// dsn enables WAL, waits on locks instead of failing, enforces foreign keys
// and starts write transactions with BEGIN IMMEDIATE.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.Upstream("ping database", err)
	}
	return nil
}

// ---- accounts

const accountColumns = `id, owner_id, nombre, saldo_actual, ingresos_mensuales, gastos_fijos,
	gastos_variables, plan, api_key, created_at, updated_at`

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.OwnerID, a.Nombre,
		a.SaldoActual.String(), a.IngresosMensuales.String(), a.GastosFijos.String(), a.GastosVariables.String(),
		string(a.Plan), a.APIKey, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("create account for owner %s: %w", a.OwnerID, ErrConflict)
	}
	if err != nil {
		return core.Upstream("create account", err)
	}

	slog.InfoContext(ctx, "Account saved to SQLite", "account_id", a.ID, "plan", a.Plan)
	return nil
}

func (r *SQLiteRepository) AccountByID(ctx context.Context, id uuid.UUID) (core.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	return r.scanAccount(row, "get account")
}

func (r *SQLiteRepository) AccountByOwner(ctx context.Context, ownerID string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = ?`, ownerID)
	return r.scanAccount(row, "get account by owner")
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET
			nombre = ?, saldo_actual = ?, ingresos_mensuales = ?, gastos_fijos = ?,
			gastos_variables = ?, plan = ?, api_key = ?, updated_at = ?
		WHERE id = ?`,
		a.Nombre, a.SaldoActual.String(), a.IngresosMensuales.String(), a.GastosFijos.String(),
		a.GastosVariables.String(), string(a.Plan), a.APIKey, formatTime(a.UpdatedAt), a.ID.String())
	if err != nil {
		return core.Upstream("update account", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.Upstream("update account", err)
	} else if n == 0 {
		return fmt.Errorf("update account %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) scanAccount(row *sql.Row, op string) (core.Account, error) {
	var (
		a                                     core.Account
		id, saldo, ingresos, fijos, variables string
		plan, createdAt, updatedAt            string
		apiKey                                sql.NullString
	)
	err := row.Scan(&id, &a.OwnerID, &a.Nombre, &saldo, &ingresos, &fijos, &variables,
		&plan, &apiKey, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return core.Account{}, core.Upstream(op, err)
	}

	p := parser{}
	a.ID = p.uuid(id)
	a.SaldoActual = p.decimal(saldo)
	a.IngresosMensuales = p.decimal(ingresos)
	a.GastosFijos = p.decimal(fijos)
	a.GastosVariables = p.decimal(variables)
	a.Plan = core.Plan(plan)
	if apiKey.Valid {
		a.APIKey = &apiKey.String
	}
	a.CreatedAt = p.time(createdAt)
	a.UpdatedAt = p.time(updatedAt)
	if p.err != nil {
		return core.Account{}, fmt.Errorf("%s: decode row: %w", op, p.err)
	}
	return a, nil
}

// ---- transactions

const transactionColumns = `id, account_id, tipo, monto, descripcion, categoria, created_at,
	recurrente_id, ocurrencia`

func (r *SQLiteRepository) InsertTransactions(ctx context.Context, txs []core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		return r.insertTransactions(ctx, tx, txs)
	})
	if err != nil {
		return r.wrap("insert transactions", err)
	}

	slog.InfoContext(ctx, "Transactions saved to SQLite", "count", len(txs), "account_id", txs[0].AccountID)
	return nil
}

func (r *SQLiteRepository) insertTransactions(ctx context.Context, tx *sql.Tx, txs []core.Transaction) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions (`+transactionColumns+`, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	insertedAt := formatTime(r.now())
	for _, t := range txs {
		var recurrenteID, ocurrencia any
		if t.RecurrenteID != nil {
			recurrenteID = t.RecurrenteID.String()
		}
		if t.Ocurrencia != nil {
			ocurrencia = t.Ocurrencia.Format(dateLayout)
		}
		_, err := stmt.ExecContext(ctx,
			t.ID.String(), t.AccountID.String(), string(t.Tipo), t.Monto.String(), t.Descripcion,
			t.Categoria, formatTime(t.CreatedAt), recurrenteID, ocurrencia, insertedAt)
		if isUniqueViolation(err) {
			// Occurrence already materialized by a concurrent tick
			return fmt.Errorf("insert transaction %s: %w", t.ID, core.ErrConcurrentModification)
		}
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, rg Range) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = ?`
	args := []any{accountID.String()}
	if !rg.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(rg.From))
	}
	if !rg.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, formatTime(rg.To))
	}
	query += ` ORDER BY created_at, inserted_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Upstream("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t                              core.Transaction
			id, account, tipo, monto, when string
			recurrenteID, ocurrencia       sql.NullString
		)
		if err := rows.Scan(&id, &account, &tipo, &monto, &t.Descripcion, &t.Categoria, &when,
			&recurrenteID, &ocurrencia); err != nil {
			return nil, core.Upstream("list transactions", err)
		}
		p := parser{}
		t.ID = p.uuid(id)
		t.AccountID = p.uuid(account)
		t.Tipo = core.Tipo(tipo)
		t.Monto = p.decimal(monto)
		t.CreatedAt = p.time(when)
		if recurrenteID.Valid {
			rid := p.uuid(recurrenteID.String)
			t.RecurrenteID = &rid
		}
		if ocurrencia.Valid {
			occ := p.date(ocurrencia.String)
			t.Ocurrencia = &occ
		}
		if p.err != nil {
			return nil, fmt.Errorf("list transactions: decode row: %w", p.err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Upstream("list transactions", err)
	}
	return out, nil
}

// ---- recurring definitions

const recurringColumns = `id, account_id, descripcion, categoria, monto, tipo, frecuencia,
	proxima_ejecucion, dia_ancla, estado, deleted_at, created_at, updated_at`

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, def core.RecurringDefinition) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO recurrentes (`+recurringColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID.String(), def.AccountID.String(), def.Descripcion, def.Categoria, def.Monto.String(),
		string(def.Tipo), string(def.Frecuencia), def.ProximaEjecucion.Format(dateLayout), def.DiaAncla,
		string(def.Estado), nullableTime(def.DeletedAt), formatTime(def.CreatedAt), formatTime(def.UpdatedAt))
	if err != nil {
		return core.Upstream("create recurring", err)
	}

	slog.InfoContext(ctx, "Recurring definition saved to SQLite",
		"recurrente_id", def.ID,
		"frecuencia", def.Frecuencia,
		"proxima_ejecucion", def.ProximaEjecucion.String())
	return nil
}

func (r *SQLiteRepository) RecurringByID(ctx context.Context, id uuid.UUID) (core.RecurringDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recurringColumns+` FROM recurrentes WHERE id = ?`, id.String())
	if err != nil {
		return core.RecurringDefinition{}, core.Upstream("get recurring", err)
	}
	defs, err := scanRecurring(rows, "get recurring")
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	if len(defs) == 0 {
		return core.RecurringDefinition{}, fmt.Errorf("get recurring %s: %w", id, ErrNotFound)
	}
	return defs[0], nil
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, accountID uuid.UUID) ([]core.RecurringDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recurringColumns+` FROM recurrentes
		WHERE account_id = ? AND deleted_at IS NULL
		ORDER BY proxima_ejecucion, created_at, id`, accountID.String())
	if err != nil {
		return nil, core.Upstream("list recurring", err)
	}
	return scanRecurring(rows, "list recurring")
}

func (r *SQLiteRepository) ListDueRecurring(ctx context.Context, asOf core.Date) ([]core.RecurringDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recurringColumns+` FROM recurrentes
		WHERE estado = 'activo' AND deleted_at IS NULL AND proxima_ejecucion <= ?
		ORDER BY proxima_ejecucion, id`, asOf.Format(dateLayout))
	if err != nil {
		return nil, core.Upstream("list due recurring", err)
	}
	return scanRecurring(rows, "list due recurring")
}

func (r *SQLiteRepository) ListAccountDueRecurring(ctx context.Context, accountID uuid.UUID, asOf core.Date) ([]core.RecurringDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recurringColumns+` FROM recurrentes
		WHERE account_id = ? AND estado = 'activo' AND deleted_at IS NULL AND proxima_ejecucion <= ?
		ORDER BY proxima_ejecucion, id`, accountID.String(), asOf.Format(dateLayout))
	if err != nil {
		return nil, core.Upstream("list account due recurring", err)
	}
	return scanRecurring(rows, "list account due recurring")
}

func (r *SQLiteRepository) CommitTick(ctx context.Context, expectedNext core.Date, def core.RecurringDefinition, txs []core.Transaction) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE recurrentes
			SET proxima_ejecucion = ?, updated_at = ?
			WHERE id = ? AND proxima_ejecucion = ? AND estado = 'activo' AND deleted_at IS NULL`,
			def.ProximaEjecucion.Format(dateLayout), formatTime(r.now()),
			def.ID.String(), expectedNext.Format(dateLayout))
		if err != nil {
			return fmt.Errorf("advance definition: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("advance definition: %w", err)
		}
		if n == 0 {
			return core.ErrConcurrentModification
		}
		return r.insertTransactions(ctx, tx, txs)
	})
	if err != nil {
		return r.wrap(fmt.Sprintf("commit tick %s", def.ID), err)
	}

	slog.InfoContext(ctx, "Tick committed to SQLite",
		"recurrente_id", def.ID,
		"materialized", len(txs),
		"proxima_ejecucion", def.ProximaEjecucion.String())
	return nil
}

func (r *SQLiteRepository) SaveRecurringState(ctx context.Context, def core.RecurringDefinition, expectedNext core.Date) error {
	res, err := r.db.ExecContext(ctx, `UPDATE recurrentes
		SET estado = ?, proxima_ejecucion = ?, deleted_at = ?, updated_at = ?
		WHERE id = ? AND proxima_ejecucion = ? AND deleted_at IS NULL`,
		string(def.Estado), def.ProximaEjecucion.Format(dateLayout), nullableTime(def.DeletedAt),
		formatTime(def.UpdatedAt), def.ID.String(), expectedNext.Format(dateLayout))
	if err != nil {
		return core.Upstream("save recurring state", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Upstream("save recurring state", err)
	}
	if n == 0 {
		return fmt.Errorf("save recurring state %s: %w", def.ID, core.ErrConcurrentModification)
	}
	return nil
}

func scanRecurring(rows *sql.Rows, op string) ([]core.RecurringDefinition, error) {
	defer rows.Close()

	var out []core.RecurringDefinition
	for rows.Next() {
		var (
			d                                          core.RecurringDefinition
			id, account, monto, tipo, frecuencia, next string
			estado, createdAt, updatedAt               string
			deletedAt                                  sql.NullString
		)
		if err := rows.Scan(&id, &account, &d.Descripcion, &d.Categoria, &monto, &tipo, &frecuencia,
			&next, &d.DiaAncla, &estado, &deletedAt, &createdAt, &updatedAt); err != nil {
			return nil, core.Upstream(op, err)
		}
		p := parser{}
		d.ID = p.uuid(id)
		d.AccountID = p.uuid(account)
		d.Monto = p.decimal(monto)
		d.Tipo = core.Tipo(tipo)
		d.Frecuencia = core.Frecuencia(frecuencia)
		d.ProximaEjecucion = p.date(next)
		d.Estado = core.Estado(estado)
		if deletedAt.Valid {
			t := p.time(deletedAt.String)
			d.DeletedAt = &t
		}
		d.CreatedAt = p.time(createdAt)
		d.UpdatedAt = p.time(updatedAt)
		if p.err != nil {
			return nil, fmt.Errorf("%s: decode row: %w", op, p.err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Upstream(op, err)
	}
	return out, nil
}

// ---- milestones

func (r *SQLiteRepository) CreateMilestone(ctx context.Context, m core.Milestone) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO hitos (id, account_id, nombre, costo, ahorro, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.AccountID.String(), m.Nombre, m.Costo.String(), m.Ahorro.String(), formatTime(m.CreatedAt))
	if err != nil {
		return core.Upstream("create milestone", err)
	}
	return nil
}

func (r *SQLiteRepository) ListMilestones(ctx context.Context, accountID uuid.UUID) ([]core.Milestone, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, account_id, nombre, costo, ahorro, created_at
		FROM hitos WHERE account_id = ? ORDER BY created_at, id`, accountID.String())
	if err != nil {
		return nil, core.Upstream("list milestones", err)
	}
	defer rows.Close()

	var out []core.Milestone
	for rows.Next() {
		var (
			m                                     core.Milestone
			id, account, costo, ahorro, createdAt string
		)
		if err := rows.Scan(&id, &account, &m.Nombre, &costo, &ahorro, &createdAt); err != nil {
			return nil, core.Upstream("list milestones", err)
		}
		p := parser{}
		m.ID = p.uuid(id)
		m.AccountID = p.uuid(account)
		m.Costo = p.decimal(costo)
		m.Ahorro = p.decimal(ahorro)
		m.CreatedAt = p.time(createdAt)
		if p.err != nil {
			return nil, fmt.Errorf("list milestones: decode row: %w", p.err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Upstream("list milestones", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteMilestone(ctx context.Context, accountID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM hitos WHERE id = ? AND account_id = ?`,
		id.String(), accountID.String())
	if err != nil {
		return core.Upstream("delete milestone", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Upstream("delete milestone", err)
	}
	if n == 0 {
		return fmt.Errorf("delete milestone %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---- payments

func (r *SQLiteRepository) ApplyPlanPurchase(ctx context.Context, p PlanPurchase) (bool, error) {
	applied := false
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO plan_payments (gateway, token, account_id, plan, amount, confirmed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (gateway, token) DO NOTHING`,
			p.Gateway, p.Token, p.AccountID.String(), string(p.Plan), p.Amount.String(), formatTime(p.ConfirmedAt))
		if err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		if n == 0 {
			return nil
		}

		res, err = tx.ExecContext(ctx, `UPDATE accounts SET plan = ?, updated_at = ? WHERE id = ?`,
			string(p.Plan), formatTime(r.now()), p.AccountID.String())
		if err != nil {
			return fmt.Errorf("update plan: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update plan: %w", err)
		} else if n == 0 {
			return ErrNotFound
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, r.wrap("apply plan purchase", err)
	}
	return applied, nil
}

// ---- helpers

// inTx runs fn inside a transaction, rolling back on any error.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// wrap keeps domain outcomes matchable and turns anything else into an
// upstream failure.
func (r *SQLiteRepository) wrap(op string, err error) error {
	switch {
	case errors.Is(err, core.ErrConcurrentModification),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return core.Upstream(op, err)
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parser decodes text columns, remembering the first failure.
type parser struct {
	err error
}

func (p *parser) uuid(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("uuid %q: %w", s, err)
	}
	return id
}

func (p *parser) decimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("decimal %q: %w", s, err)
	}
	return d
}

func (p *parser) time(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("time %q: %w", s, err)
	}
	return t
}

func (p *parser) date(s string) core.Date {
	d, err := core.ParseDate(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}
