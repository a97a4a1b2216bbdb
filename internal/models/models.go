package models

import (
	"mime/multipart"
	"time"
)

// AttachmentsField is the error-set key collecting per-file upload errors.
const AttachmentsField = "allegati"

// SubmissionForm is the canonical, normalized representation of one
// incoming lead. The JSON names match the public form field names.
type SubmissionForm struct {
	FirstName    string `json:"nome"`
	LastName     string `json:"cognome"`
	Company      string `json:"azienda"`
	Phone        string `json:"telefono"`
	Email        string `json:"email"`
	Address      string `json:"indirizzo"`
	PostalCode   string `json:"cap"`
	City         string `json:"citta"`
	Province     string `json:"provincia"`
	Operation    string `json:"operazione"`
	PropertyType string `json:"tipologia"`
	Rooms        string `json:"locali"`
	Area         string `json:"mq"`
	Price        string `json:"prezzo"`
	Description  string `json:"descrizione"`
	Privacy      bool   `json:"privacy"`
}

// DefaultForm returns the form in its reset state.
func DefaultForm() SubmissionForm {
	return SubmissionForm{
		Operation:    "vendita",
		PropertyType: "appartamento",
	}
}

// UploadCandidate is one attachment as submitted, before vetting.
type UploadCandidate struct {
	OriginalName string
	Header       *multipart.FileHeader
	Size         int64
}

// StoredAttachment is a vetted attachment queued for, or promoted by,
// the move into the upload directory. SafeName is a random 32-hex-char
// token plus the original lowercased extension; OriginalName is retained
// for error messages only and never used to build storage paths.
type StoredAttachment struct {
	Header       *multipart.FileHeader `json:"-"`
	SafeName     string                `json:"safe_name"`
	RelativePath string                `json:"relative_path"`
	OriginalName string                `json:"original_name"`
}

// SubmissionRecord is one durable row of the append-only submission log.
type SubmissionRecord struct {
	Timestamp time.Time
	Form      SubmissionForm
	Uploads   []string
}

// ErrorSet accumulates everything a request can go wrong with: field
// errors keyed by field name (always a slice, even for single messages),
// general errors not tied to a field, and non-fatal warnings.
type ErrorSet struct {
	Fields   map[string][]string `json:"fields"`
	General  []string            `json:"general"`
	Warnings []string            `json:"warnings"`
}

func NewErrorSet() *ErrorSet {
	return &ErrorSet{Fields: make(map[string][]string)}
}

func (e *ErrorSet) AddField(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ErrorSet) AddGeneral(message string) {
	e.General = append(e.General, message)
}

func (e *ErrorSet) AddWarning(message string) {
	e.Warnings = append(e.Warnings, message)
}

// HasErrors reports whether anything blocks persistence. Warnings don't.
func (e *ErrorSet) HasErrors() bool {
	return len(e.Fields) > 0 || len(e.General) > 0
}

// FormResponse is the payload for both the initial form state and the
// submission outcome.
type FormResponse struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	Form      SubmissionForm `json:"form"`
	Errors    *ErrorSet      `json:"errors"`
	Uploads   []string       `json:"uploads"`
	CSRFToken string         `json:"csrf_token"`
}

// ErrorResponse represents a transport-level error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
}
