package services

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/subitocasaweb/lead-intake/internal/config"
	"github.com/subitocasaweb/lead-intake/internal/models"
)

// User-facing validation messages, as shown by the reference deployment.
const (
	msgCSRF         = "Token CSRF non valido. Aggiorna la pagina e riprova."
	msgIdentity     = "Inserisci il nome oppure il nome dell'azienda."
	msgEmail        = "Inserisci un indirizzo email valido."
	msgOperation    = "Seleziona un tipo di operazione valido."
	msgPropertyType = "Seleziona una tipologia di immobile valida."
	msgRooms        = "Inserisci un numero di locali valido (solo numeri interi positivi)."
	msgArea         = "Inserisci una metratura valida (numeri positivi)."
	msgPrice        = "Inserisci un prezzo valido (numeri positivi o lascia vuoto)."
	msgPrivacy      = "Devi accettare la privacy."
)

// FormService normalizes raw request fields into a SubmissionForm and
// applies the field-level and cross-field validation rules.
type FormService struct {
	cfg      *config.Config
	validate *validator.Validate
}

func NewFormService(cfg *config.Config) *FormService {
	return &FormService{
		cfg:      cfg,
		validate: validator.New(),
	}
}

// Normalize trims every known field and ignores everything else. The
// privacy checkbox is true iff the key was present in the submission,
// regardless of value. No validation happens here.
func (fs *FormService) Normalize(values url.Values) models.SubmissionForm {
	get := func(key string) string {
		return strings.TrimSpace(values.Get(key))
	}
	_, privacy := values["privacy"]

	return models.SubmissionForm{
		FirstName:    get("nome"),
		LastName:     get("cognome"),
		Company:      get("azienda"),
		Phone:        get("telefono"),
		Email:        get("email"),
		Address:      get("indirizzo"),
		PostalCode:   get("cap"),
		City:         get("citta"),
		Province:     get("provincia"),
		Operation:    get("operazione"),
		PropertyType: get("tipologia"),
		Rooms:        get("locali"),
		Area:         get("mq"),
		Price:        get("prezzo"),
		Description:  get("descrizione"),
		Privacy:      privacy,
	}
}

// Validate applies every rule independently so all errors surface
// together. Successfully parsed numeric fields are rewritten in their
// canonical dot-decimal form so persistence sees normalized values.
func (fs *FormService) Validate(form *models.SubmissionForm, csrfOK bool, errs *models.ErrorSet) {
	if !csrfOK {
		errs.AddGeneral(msgCSRF)
	}

	if form.FirstName == "" && form.Company == "" {
		errs.AddField("nome", msgIdentity)
		errs.AddField("azienda", msgIdentity)
	}

	if form.Email == "" || fs.validate.Var(form.Email, "email") != nil {
		errs.AddField("email", msgEmail)
	}

	if _, ok := fs.cfg.Listings.OperationTypes[form.Operation]; !ok {
		errs.AddField("operazione", msgOperation)
	}
	if _, ok := fs.cfg.Listings.PropertyTypes[form.PropertyType]; !ok {
		errs.AddField("tipologia", msgPropertyType)
	}

	if form.Rooms != "" && !isPositiveInteger(form.Rooms) {
		errs.AddField("locali", msgRooms)
	}

	if form.Area != "" {
		normalized, ok := parseDecimal(form.Area)
		if !ok || normalized.value <= 0 {
			errs.AddField("mq", msgArea)
		} else {
			form.Area = normalized.text
		}
	}

	if form.Price != "" {
		normalized, ok := parseDecimal(form.Price)
		if !ok || normalized.value < 0 {
			errs.AddField("prezzo", msgPrice)
		} else {
			form.Price = normalized.text
		}
	}

	if !form.Privacy {
		errs.AddField("privacy", msgPrivacy)
	}
}

// isPositiveInteger reports whether s is a string of ASCII digits
// representing a strictly positive integer.
func isPositiveInteger(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}

type decimal struct {
	text  string
	value float64
}

// parseDecimal accepts comma or dot decimal input and returns the
// dot-decimal normalized text alongside the parsed value. Only plain
// digit strings with at most one separator qualify: signs, exponents,
// underscores and the NaN/Inf spellings ParseFloat would otherwise
// take are rejected, so a parsed value is always finite.
func parseDecimal(s string) (decimal, bool) {
	text := strings.ReplaceAll(s, ",", ".")
	if !isPlainDecimal(text) {
		return decimal{}, false
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return decimal{}, false
	}
	return decimal{text: text, value: value}, true
}

// isPlainDecimal reports whether s is ASCII digits with at most one
// interior dot, like "85" or "85.5".
func isPlainDecimal(s string) bool {
	if s == "" {
		return false
	}
	seenDot := false
	for i, r := range s {
		if r == '.' {
			if seenDot || i == 0 || i == len(s)-1 {
				return false
			}
			seenDot = true
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
