package http

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"sync/atomic"
	"time"

	"cajaclaro/internal/core"
	"cajaclaro/internal/importer"
	"cajaclaro/internal/services"
	"cajaclaro/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type transactionRequest struct {
	Tipo        core.Tipo `json:"tipo" validate:"required,oneof=ingreso gasto"`
	Monto       Amount    `json:"monto" validate:"required"`
	Descripcion string    `json:"descripcion" validate:"required,max=200"`
	Categoria   string    `json:"categoria" validate:"max=60"`
	Fecha       string    `json:"fecha" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, account core.Account) {
	var req transactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, "record transaction", err)
		return
	}
	monto, err := req.Monto.Positive("monto")
	if err != nil {
		writeError(w, r, "record transaction", err)
		return
	}
	fecha, err := ParseOptionalDate("fecha", req.Fecha)
	if err != nil {
		writeError(w, r, "record transaction", err)
		return
	}

	tx, err := s.deps.Ledger.Record(r.Context(), account.ID, services.RecordInput{
		Tipo:        req.Tipo,
		Monto:       monto,
		Descripcion: sanitizeInput(req.Descripcion),
		Categoria:   sanitizeInput(req.Categoria),
		Fecha:       fecha,
	})
	if err != nil {
		writeError(w, r, "record transaction", err)
		return
	}
	atomic.AddInt64(&s.metrics.transactionsRecorded, 1)
	NewJSONResponse().Status(http.StatusCreated).Data(toTransactionDTO(tx, s.deps.Location)).Write(w)
}

// monthRange turns ?year=&month= into a range; no parameters means all time.
func (s *Server) monthRange(r *http.Request) (storage.Range, error) {
	p, err := ParseMonthParams(r, s.now(), s.deps.Location)
	if err != nil || !p.Set {
		return storage.Range{}, err
	}
	return services.MonthRange(p.Year, time.Month(p.Month), s.deps.Location), nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, account core.Account) {
	rng, err := s.monthRange(r)
	if err != nil {
		writeError(w, r, "list transactions", err)
		return
	}
	txs, err := s.deps.Ledger.List(r.Context(), account.ID, rng)
	if err != nil {
		writeError(w, r, "list transactions", err)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"transacciones": toTransactionDTOs(txs, s.deps.Location),
	}).Write(w)
}

// handleImport accepts a workbook either as the "archivo" multipart field or
// as the raw request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, account core.Account) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.ImportMaxBytes)

	file, err := s.importFile(r)
	if err != nil {
		writeError(w, r, "import transactions", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, "import transactions", err)
		return
	}
	rows, err := importer.Parse(bytes.NewReader(data), s.deps.Location, s.today())
	if err != nil {
		writeError(w, r, "import transactions", err)
		return
	}
	n, err := s.deps.Ledger.Import(r.Context(), account.ID, rows)
	if err != nil {
		writeError(w, r, "import transactions", err)
		return
	}
	atomic.AddInt64(&s.metrics.rowsImported, int64(n))
	NewJSONResponse().Status(http.StatusCreated).Data(map[string]int{"importadas": n}).Write(w)
}

func (s *Server) importFile(r *http.Request) (io.ReadCloser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}
	if err := r.ParseMultipartForm(s.opts.ImportMaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &core.ValidationError{Field: "archivo", Reason: "invalid multipart form"}
	}
	file, _, err := r.FormFile("archivo")
	if err != nil {
		return nil, &core.ValidationError{Field: "archivo", Reason: "required"}
	}
	return file, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, account core.Account) {
	rng, err := s.monthRange(r)
	if err != nil {
		writeError(w, r, "export transactions", err)
		return
	}
	txs, err := s.deps.Ledger.List(r.Context(), account.ID, rng)
	if err != nil {
		writeError(w, r, "export transactions", err)
		return
	}

	// Buffer so a failed render still gets a proper error status
	var buf bytes.Buffer
	if err := importer.Export(&buf, txs, s.deps.Location); err != nil {
		writeError(w, r, "export transactions", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="movimientos.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
