package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/subitocasaweb/lead-intake/internal/config"
	"github.com/subitocasaweb/lead-intake/internal/logging"
	"github.com/subitocasaweb/lead-intake/internal/models"
)

const (
	msgUploadError  = "Errore nel caricamento del file %q."
	msgFileTooBig   = "File troppo grande: %q (max 5 MB)."
	msgBadExtension = "Estensione non consentita per il file %q."
	msgBadMIME      = "Tipo di file non consentito per %q. Solo JPG, PNG, PDF."
	msgBadImage     = "L'immagine %q non è valida."
	msgRandomFail   = "Errore interno nella gestione dei file. Riprovare più tardi."
	msgMoveFail     = "Impossibile salvare il file %q. Riprovare."
	msgTooManyFiles = "Puoi caricare al massimo %d file."
)

// UploadService vets submitted attachments and owns the move phase of
// the commit: vetted files go into the upload directory under random
// names, with rollback if any move fails.
type UploadService struct {
	cfg       *config.Config
	incidents *logging.IncidentLog
}

func NewUploadService(cfg *config.Config, incidents *logging.IncidentLog) *UploadService {
	return &UploadService{cfg: cfg, incidents: incidents}
}

// Vet checks every non-empty candidate in submission order and returns
// the ones cleared for the move phase. Each rejection lands in errs
// under the attachments key; exceeding the file count adds a general
// error but individual vetting still runs so per-file errors surface.
func (us *UploadService) Vet(candidates []models.UploadCandidate, errs *models.ErrorSet) []models.StoredAttachment {
	var nonEmpty []models.UploadCandidate
	for _, cand := range candidates {
		if cand.Header == nil || cand.OriginalName == "" {
			continue
		}
		nonEmpty = append(nonEmpty, cand)
	}

	if len(nonEmpty) > us.cfg.Uploads.MaxFiles {
		errs.AddGeneral(fmt.Sprintf(msgTooManyFiles, us.cfg.Uploads.MaxFiles))
	}

	var queue []models.StoredAttachment
	for _, cand := range nonEmpty {
		attachment, fatal := us.vetOne(cand, errs)
		if fatal {
			return nil
		}
		if attachment != nil {
			queue = append(queue, *attachment)
		}
	}
	return queue
}

// vetOne runs the per-file checks. A nil attachment with fatal=false is
// an ordinary per-file rejection; fatal=true aborts the whole pass (the
// randomness source is unusable).
func (us *UploadService) vetOne(cand models.UploadCandidate, errs *models.ErrorSet) (*models.StoredAttachment, bool) {
	file, err := cand.Header.Open()
	if err != nil {
		errs.AddField(models.AttachmentsField, fmt.Sprintf(msgUploadError, cand.OriginalName))
		us.incidents.Report("errore di caricamento per il file %s: %v", cand.OriginalName, err)
		return nil, false
	}
	defer file.Close()

	if cand.Size > us.cfg.Uploads.MaxFileSize {
		errs.AddField(models.AttachmentsField, fmt.Sprintf(msgFileTooBig, cand.OriginalName))
		return nil, false
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(cand.OriginalName), "."))
	if !contains(us.cfg.Uploads.AllowedExtensions, ext) || contains(us.cfg.Uploads.BlockedExtensions, ext) {
		errs.AddField(models.AttachmentsField, fmt.Sprintf(msgBadExtension, cand.OriginalName))
		return nil, false
	}

	// Sniff the real content type from the bytes, never trust the
	// client-declared one.
	detected, err := mimetype.DetectReader(file)
	if err != nil || !mimeAllowed(detected, us.cfg.Uploads.AllowedMIMETypes) {
		errs.AddField(models.AttachmentsField, fmt.Sprintf(msgBadMIME, cand.OriginalName))
		return nil, false
	}

	if strings.HasPrefix(detected.String(), "image/") {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			errs.AddField(models.AttachmentsField, fmt.Sprintf(msgUploadError, cand.OriginalName))
			us.incidents.Report("seek fallito sul file temporaneo %s: %v", cand.OriginalName, err)
			return nil, false
		}
		if err := checkImage(file, detected); err != nil {
			errs.AddField(models.AttachmentsField, fmt.Sprintf(msgBadImage, cand.OriginalName))
			return nil, false
		}
	}

	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		errs.AddGeneral(msgRandomFail)
		us.incidents.Report("generazione nome casuale fallita: %v", err)
		return nil, true
	}
	safeName := hex.EncodeToString(token) + "." + ext

	return &models.StoredAttachment{
		Header:       cand.Header,
		SafeName:     safeName,
		RelativePath: path.Join(us.cfg.Storage.UploadURLPrefix, safeName),
		OriginalName: cand.OriginalName,
	}, false
}

// Commit moves every queued file into the upload directory in
// submission order. The first failure rolls back everything already
// moved and returns nil with a general error recorded.
func (us *UploadService) Commit(queue []models.StoredAttachment, errs *models.ErrorSet) []string {
	var stored []string
	for _, attachment := range queue {
		destination := filepath.Join(us.cfg.Storage.UploadDir, attachment.SafeName)
		if err := saveUploadedFile(attachment.Header, destination); err != nil {
			errs.AddGeneral(fmt.Sprintf(msgMoveFail, attachment.OriginalName))
			us.incidents.Report("salvataggio fallito verso %s: %v", destination, err)
			us.rollback(stored)
			return nil
		}
		stored = append(stored, attachment.RelativePath)
	}
	return stored
}

func (us *UploadService) rollback(stored []string) {
	for _, relative := range stored {
		full := filepath.Join(us.cfg.Storage.UploadDir, path.Base(relative))
		if err := os.Remove(full); err != nil {
			us.incidents.Report("rollback fallito per %s: %v", full, err)
		}
	}
}

func saveUploadedFile(header *multipart.FileHeader, destination string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	// Destination names are random, so an existing file means a
	// collision or tampering; refuse to overwrite.
	dst, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// checkImage confirms the file is a structurally valid image of the
// sniffed format by parsing its headers.
func checkImage(file io.Reader, detected *mimetype.MIME) error {
	switch {
	case detected.Is("image/jpeg"):
		_, err := jpeg.DecodeConfig(file)
		return err
	case detected.Is("image/png"):
		_, err := png.DecodeConfig(file)
		return err
	default:
		return fmt.Errorf("formato immagine non gestito: %s", detected)
	}
}

func mimeAllowed(detected *mimetype.MIME, allowed []string) bool {
	for _, mime := range allowed {
		if detected.Is(mime) {
			return true
		}
	}
	return false
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
