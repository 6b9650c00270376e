package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxImportRows caps a single bulk import.
const MaxImportRows = 5000

type RecordInput struct {
	Tipo        core.Tipo
	Monto       decimal.Decimal
	Descripcion string
	Categoria   string
	// Fecha backdates the movement. Nil records it at the current instant.
	Fecha *core.Date
}

// ImportError points at the first rejected row of an import.
type ImportError struct {
	Row int
	Err error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

type LedgerService struct {
	store  storage.LedgerStore
	loc    *time.Location
	now    func() time.Time
	logger *applog.Logger
}

func NewLedgerService(store storage.LedgerStore, loc *time.Location) *LedgerService {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerService{
		store:  store,
		loc:    loc,
		now:    time.Now,
		logger: applog.ForComponent(applog.ComponentLedger),
	}
}

// Record stores a single manual movement.
func (s *LedgerService) Record(ctx context.Context, accountID uuid.UUID, in RecordInput) (core.Transaction, error) {
	tx := core.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Tipo:        in.Tipo,
		Monto:       in.Monto.Round(core.MoneyScale),
		Descripcion: strings.TrimSpace(in.Descripcion),
		Categoria:   strings.TrimSpace(in.Categoria),
		CreatedAt:   s.now().UTC(),
	}
	if in.Fecha != nil {
		tx.CreatedAt = in.Fecha.At(s.loc).UTC()
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.InsertTransactions(ctx, []core.Transaction{tx}); err != nil {
		return core.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction recorded", applog.NewFields().
		WithAccount(accountID.String()).
		WithTransaction(tx.ID.String(), string(tx.Tipo), tx.Monto.StringFixed(core.MoneyScale), tx.Categoria).
		ToSlice()...)
	return tx, nil
}

// Import validates every row and inserts them all or none. Rows come from
// an adapter already normalised; ids and account are assigned here.
func (s *LedgerService) Import(ctx context.Context, accountID uuid.UUID, rows []core.Transaction) (int, error) {
	if len(rows) == 0 {
		return 0, &core.ValidationError{Field: "archivo", Reason: "no rows to import"}
	}
	if len(rows) > MaxImportRows {
		return 0, &core.ValidationError{Field: "archivo", Reason: fmt.Sprintf("too many rows (max %d)", MaxImportRows)}
	}

	txs := make([]core.Transaction, len(rows))
	for i, r := range rows {
		r.ID = uuid.New()
		r.AccountID = accountID
		r.Monto = r.Monto.Round(core.MoneyScale)
		r.RecurrenteID = nil
		r.Ocurrencia = nil
		if err := r.Validate(); err != nil {
			return 0, &ImportError{Row: i + 1, Err: err}
		}
		txs[i] = r
	}

	if err := s.store.InsertTransactions(ctx, txs); err != nil {
		return 0, fmt.Errorf("import transactions: %w", err)
	}
	s.logger.InfoContext(ctx, "Transactions imported",
		applog.FieldAccountID, accountID.String(),
		"rows", len(txs))
	return len(txs), nil
}

func (s *LedgerService) List(ctx context.Context, accountID uuid.UUID, r storage.Range) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, accountID, r)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// MonthRange is the [first day, first day of next month) range of a
// calendar month in loc.
func MonthRange(year int, month time.Month, loc *time.Location) storage.Range {
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return storage.Range{From: from, To: from.AddDate(0, 1, 0)}
}
