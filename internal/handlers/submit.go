package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/subitocasaweb/lead-intake/internal/models"
)

const (
	msgSuccess       = "Grazie! La tua segnalazione è stata inviata correttamente."
	msgDirNotUsable  = "La cartella %q non è accessibile: verificare i permessi di scrittura."
	msgRecordFail    = "Impossibile salvare la segnalazione. Riprovare più tardi."
	msgMailWarn      = "Segnalazione salvata, ma invio email di notifica non riuscito."
	maxMultipartSize = 32 << 20
)

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}

// getForm returns the fresh form state: defaults, empty error set and
// the session's CSRF token.
func (s *Server) getForm(c *gin.Context) {
	sid := s.sessionID(c)
	token, err := s.sessions.Token(sid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error:   "Failed to generate session token",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	errs := models.NewErrorSet()
	s.addReadinessErrors(errs)

	c.JSON(http.StatusOK, models.FormResponse{
		Success:   !errs.HasErrors(),
		Form:      models.DefaultForm(),
		Errors:    errs,
		Uploads:   []string{},
		CSRFToken: token,
	})
}

// submitLead runs the whole pipeline for one submission: normalize,
// validate, vet attachments, move files, append the record, notify.
// Exactly one terminal state per request; only a fully accepted
// submission resets the form and rotates the CSRF token.
func (s *Server) submitLead(c *gin.Context) {
	sid := s.sessionID(c)
	token, err := s.sessions.Token(sid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error:   "Failed to generate session token",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	if err := c.Request.ParseMultipartForm(maxMultipartSize); err != nil && err != http.ErrNotMultipart {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   "Invalid request format: " + err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	errs := models.NewErrorSet()
	s.addReadinessErrors(errs)

	form := s.forms.Normalize(c.Request.PostForm)

	csrfOK := s.sessions.Verify(sid, c.Request.PostForm.Get("csrf_token"))
	s.forms.Validate(&form, csrfOK, errs)

	// An entirely absent attachment field means zero files, not an error.
	var candidates []models.UploadCandidate
	if mf := c.Request.MultipartForm; mf != nil {
		for _, header := range mf.File["allegati[]"] {
			candidates = append(candidates, models.UploadCandidate{
				OriginalName: header.Filename,
				Header:       header,
				Size:         header.Size,
			})
		}
	}
	queue := s.uploads.Vet(candidates, errs)

	if errs.HasErrors() {
		s.reject(c, form, errs, token)
		return
	}

	stored := s.uploads.Commit(queue, errs)
	if errs.HasErrors() {
		s.reject(c, form, errs, token)
		return
	}

	record := models.SubmissionRecord{
		Timestamp: time.Now(),
		Form:      form,
		Uploads:   stored,
	}
	if err := s.records.Append(record); err != nil {
		errs.AddGeneral(msgRecordFail)
		// Moved files stay on disk; name them so an operator can sweep.
		if len(stored) > 0 {
			s.incidents.Report("file orfani dopo append fallito: %s", strings.Join(stored, "|"))
		}
		s.reject(c, form, errs, token)
		return
	}

	if err := s.email.SendLeadNotification(form, stored); err != nil {
		errs.AddWarning(msgMailWarn)
		s.incidents.Report("invio email a %s fallito: %v", s.config.Email.AdminEmail, err)
	}
	if s.config.Notifications.Ntfy.Enabled {
		go func() {
			if err := s.push.SendLeadPush(form, stored); err != nil {
				s.incidents.Report("notifica ntfy fallita: %v", err)
			}
		}()
	}

	fresh, err := s.sessions.Rotate(sid)
	if err != nil {
		s.incidents.Report("rotazione token CSRF fallita: %v", err)
		fresh = token
	}

	if stored == nil {
		stored = []string{}
	}
	c.JSON(http.StatusOK, models.FormResponse{
		Success:   true,
		Message:   msgSuccess,
		Form:      models.DefaultForm(),
		Errors:    errs,
		Uploads:   stored,
		CSRFToken: fresh,
	})
}

// reject echoes the submitted values back with the accumulated errors
// so the caller can re-render them for correction.
func (s *Server) reject(c *gin.Context, form models.SubmissionForm, errs *models.ErrorSet, token string) {
	status := http.StatusUnprocessableEntity
	if !s.readiness.OK() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, models.FormResponse{
		Success:   false,
		Form:      form,
		Errors:    errs,
		Uploads:   []string{},
		CSRFToken: token,
	})
}

func (s *Server) addReadinessErrors(errs *models.ErrorSet) {
	if !s.readiness.DataDir {
		errs.AddGeneral(fmt.Sprintf(msgDirNotUsable, s.config.Storage.DataDir))
	}
	if !s.readiness.UploadDir {
		errs.AddGeneral(fmt.Sprintf(msgDirNotUsable, s.config.Storage.UploadDir))
	}
}
