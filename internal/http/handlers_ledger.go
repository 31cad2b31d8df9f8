package http

import (
	"errors"
	"net/http"
	"slices"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

var validationErrors = []error{
	core.ErrInvalidDay, core.ErrInvalidMonth, core.ErrInvalidDate,
	core.ErrInvalidAmount, core.ErrInvalidKind, core.ErrEmptyID,
	core.ErrEmptyCategory, core.ErrEmptyTitle, core.ErrInvalidTarget,
	core.ErrNoteTooLong, core.ErrCategoryTooLong,
	services.ErrNothingCaptured,
}

// writeError maps service errors to status codes. Anything unrecognised is
// logged and reported as a 500 without details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		NotFoundError("Not found").Write(w)
	case errors.Is(err, ledger.ErrExists):
		ConflictError("Already exists").Write(w)
	case slices.ContainsFunc(validationErrors, func(target error) bool { return errors.Is(err, target) }):
		UnprocessableEntityError(err.Error()).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		InternalServerError("Internal server error").Write(w)
	}
}

// transactions returns the ledger snapshot every read handler works on.
func (s *Server) transactions(w http.ResponseWriter, r *http.Request) ([]core.Transaction, bool) {
	txs, err := s.deps.Ledger.List(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return nil, false
	}
	return txs, true
}

// handleListTransactions returns all transactions, or one month's with
// ?month=YYYY-MM.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, ok := s.transactions(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Has("month") {
		month, err := ParseMonthParam(r.URL.Query(), s.engine.CurrentMonth())
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		txs = slices.DeleteFunc(txs, func(t core.Transaction) bool { return !month.Contains(t.Date) })
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewResponse().JSON(txs).Write(w)
}

func (s *Server) decodeTransactionInput(w http.ResponseWriter, r *http.Request) (services.TransactionInput, bool) {
	var in services.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return in, false
	}
	in.Category = sanitizeInput(in.Category)
	in.Note = sanitizeInput(in.Note)
	if in.Date.IsZero() {
		in.Date = core.DateOf(s.engine.Now())
	}
	return in, true
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeTransactionInput(w, r)
	if !ok {
		return
	}
	tx, err := s.deps.Ledger.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).Header("Location", "/api/transactions/"+tx.ID).JSON(tx).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeTransactionInput(w, r)
	if !ok {
		return
	}
	tx, err := s.deps.Ledger.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().JSON(tx).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Ledger.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	NoContent().Write(w)
}

type captureRequest struct {
	Text string `json:"text"`
}

// handleCaptureTransaction stores the transaction described by a phrase
// such as "spent 250 taka on food yesterday".
func (s *Server) handleCaptureTransaction(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	tx, err := s.deps.Ledger.Capture(r.Context(), sanitizeInput(req.Text))
	if err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}
	NewResponse().Status(http.StatusCreated).Header("Location", "/api/transactions/"+tx.ID).JSON(tx).Write(w)
}
