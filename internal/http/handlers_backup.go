package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"fintrack/internal/backup"
	"fintrack/internal/log"
)

func backupName(now time.Time, ext string) string {
	return "fintrack-backup-" + now.Format("2006-01-02") + ext
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := backup.Export(r.Context(), s.deps.Ledger.Store())
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	NewResponse().
		Attachment(backupName(s.engine.Now(), ".json")).
		Raw("application/json; charset=utf-8", data).
		Write(w)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := backup.ExportCSV(r.Context(), s.deps.Ledger.Store(), &buf); err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	NewResponse().
		Attachment(backupName(s.engine.Now(), ".csv")).
		Raw("text/csv; charset=utf-8", buf.Bytes()).
		Write(w)
}

// handleImport restores a JSON export. Rejected backups answer 400 with the
// reason and leave the ledger untouched.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(http.StatusRequestEntityTooLarge, "Backup too large").Write(w)
			return
		}
		BadRequestError("Could not read request body").Write(w)
		return
	}

	result, err := backup.Import(r.Context(), s.deps.Ledger.Store(), data)
	var ie *backup.ImportError
	if errors.As(err, &ie) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Backup rejected",
			log.FieldOperation, log.OpImport,
			log.FieldError, err)
		BadRequestError(ie.Reason).Write(w)
		return
	}
	if err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}

	if result.TransactionsReplaced {
		s.deps.Metrics.ImportedRecord.WithLabelValues("transactions").Add(float64(result.Transactions))
	}
	if result.GoalsReplaced {
		s.deps.Metrics.ImportedRecord.WithLabelValues("goals").Add(float64(result.Goals))
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Backup imported",
		log.FieldOperation, log.OpImport,
		"transactions", result.Transactions,
		"goals", result.Goals)
	NewResponse().JSON(result).Write(w)
}
