package services

import (
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/subitocasaweb/lead-intake/internal/config"
	"github.com/subitocasaweb/lead-intake/internal/logging"
	"github.com/subitocasaweb/lead-intake/internal/models"
)

const leadMailSubject = "Nuova segnalazione immobile - Subito CASA Web"

// EmailService sends the administrator notification for an accepted
// submission. One best-effort attempt, no retry: the record log is the
// source of truth, the email is a convenience.
type EmailService struct {
	cfg       *config.Config
	incidents *logging.IncidentLog
	skipOnce  sync.Once
}

func NewEmailService(cfg *config.Config, incidents *logging.IncidentLog) *EmailService {
	return &EmailService{cfg: cfg, incidents: incidents}
}

// SendLeadNotification composes and sends the plain-text summary.
// Returns nil without sending when no SMTP host or admin address is
// configured; that state is incident-logged once so a deployment
// that forgot its SMTP settings is visible to the operator.
func (es *EmailService) SendLeadNotification(form models.SubmissionForm, uploads []string) error {
	if es.cfg.Email.SMTP.Host == "" || es.cfg.Email.AdminEmail == "" {
		es.skipOnce.Do(func() {
			es.incidents.Report("notifica email saltata: SMTP non configurato")
		})
		return nil
	}

	subject, body := es.Compose(form, uploads)

	replyTo := form.Email
	if replyTo == "" {
		replyTo = es.cfg.Email.SMTP.From
	}

	message := fmt.Sprintf("To: %s\r\nFrom: %s\r\nReply-To: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		es.cfg.Email.AdminEmail,
		es.cfg.Email.SMTP.From,
		replyTo,
		subject,
		body,
	)

	addr := fmt.Sprintf("%s:%d", es.cfg.Email.SMTP.Host, es.cfg.Email.SMTP.Port)

	// Auth is optional so local test servers keep working.
	var auth smtp.Auth
	if es.cfg.Email.SMTP.Username != "" && es.cfg.Email.SMTP.Password != "" {
		auth = smtp.PlainAuth("",
			es.cfg.Email.SMTP.Username,
			es.cfg.Email.SMTP.Password,
			es.cfg.Email.SMTP.Host,
		)
	}

	if err := smtp.SendMail(addr, auth, es.cfg.Email.SMTP.From, []string{es.cfg.Email.AdminEmail}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send SMTP email: %w", err)
	}
	return nil
}

// Compose builds the human-readable notification, with display labels
// for the enum fields and the stored relative paths, or an explicit
// "no attachments" line.
func (es *EmailService) Compose(form models.SubmissionForm, uploads []string) (subject, body string) {
	lines := []string{
		"Hai ricevuto una nuova segnalazione dal sito Subito CASA Web.",
		"",
		"Dati segnalazione:",
		"Nome: " + form.FirstName,
		"Cognome: " + form.LastName,
		"Nome azienda: " + form.Company,
		"Telefono: " + form.Phone,
		"Email: " + form.Email,
		"Indirizzo immobile: " + form.Address,
		"CAP: " + form.PostalCode,
		"Città: " + form.City,
		"Provincia: " + form.Province,
		"Tipo operazione: " + label(es.cfg.Listings.OperationTypes, form.Operation),
		"Tipologia immobile: " + label(es.cfg.Listings.PropertyTypes, form.PropertyType),
		"Locali/Camere: " + form.Rooms,
		"MQ: " + form.Area,
		"Prezzo: " + form.Price,
		"Descrizione:",
		form.Description,
		"",
		"File caricati:",
	}
	if len(uploads) > 0 {
		lines = append(lines, uploads...)
	} else {
		lines = append(lines, "Nessun file allegato.")
	}

	return leadMailSubject, strings.Join(lines, "\r\n")
}

func label(options map[string]string, key string) string {
	if display, ok := options[key]; ok {
		return display
	}
	return key
}
