package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/subitocasaweb/lead-intake/internal/logging"
	"github.com/subitocasaweb/lead-intake/internal/models"
)

// recordHeader fixes the column order of the submission log. The
// uploads column holds a pipe-joined list of relative paths.
var recordHeader = []string{
	"timestamp", "nome", "cognome", "azienda", "telefono", "email",
	"indirizzo", "cap", "citta", "provincia", "operazione", "tipologia",
	"locali", "mq", "prezzo", "descrizione", "uploads",
}

// RecordService appends accepted submissions to the durable
// semicolon-delimited log. Rows are never mutated or deleted. Appends
// hold an exclusive lock across the whole open-append-write-close
// sequence so concurrent requests cannot interleave rows.
type RecordService struct {
	mu        sync.Mutex
	path      string
	incidents *logging.IncidentLog
}

func NewRecordService(path string, incidents *logging.IncidentLog) *RecordService {
	return &RecordService{path: path, incidents: incidents}
}

// Append writes one record, creating the log with its header row first
// if the file is new or empty.
func (rs *RecordService) Append(record models.SubmissionRecord) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	f, err := os.OpenFile(rs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		rs.incidents.Report("impossibile aprire il log delle segnalazioni %s: %v", rs.path, err)
		return fmt.Errorf("open record log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		rs.incidents.Report("stat fallita sul log delle segnalazioni %s: %v", rs.path, err)
		return fmt.Errorf("stat record log: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = ';'

	if info.Size() == 0 {
		if err := w.Write(recordHeader); err != nil {
			rs.incidents.Report("scrittura intestazione fallita su %s: %v", rs.path, err)
			return fmt.Errorf("write record header: %w", err)
		}
	}
	if err := w.Write(recordRow(record)); err != nil {
		rs.incidents.Report("scrittura riga fallita su %s: %v", rs.path, err)
		return fmt.Errorf("write record: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		rs.incidents.Report("scrittura riga fallita su %s: %v", rs.path, err)
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}

func recordRow(record models.SubmissionRecord) []string {
	form := record.Form
	return []string{
		record.Timestamp.Format(time.RFC3339),
		form.FirstName,
		form.LastName,
		form.Company,
		form.Phone,
		form.Email,
		form.Address,
		form.PostalCode,
		form.City,
		form.Province,
		form.Operation,
		form.PropertyType,
		form.Rooms,
		form.Area,
		form.Price,
		form.Description,
		strings.Join(record.Uploads, "|"),
	}
}
