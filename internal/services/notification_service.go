package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/subitocasaweb/lead-intake/internal/config"
	"github.com/subitocasaweb/lead-intake/internal/models"
)

// NotificationService pushes a short admin notification over ntfy for
// accepted submissions. Entirely optional and best-effort: failures are
// logged by the caller, never surfaced to the submitter.
type NotificationService struct {
	cfg *config.Config
}

func NewNotificationService(cfg *config.Config) *NotificationService {
	return &NotificationService{cfg: cfg}
}

type NtfyMessage struct {
	Topic    string   `json:"topic"`
	Message  string   `json:"message"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority,omitempty"`
}

func (ns *NotificationService) SendLeadPush(form models.SubmissionForm, uploads []string) error {
	if !ns.cfg.Notifications.Ntfy.Enabled {
		return nil
	}

	contact := form.FirstName
	if contact == "" {
		contact = form.Company
	}

	message := fmt.Sprintf("Nuova segnalazione da %s (%s)\nOperazione: %s\nTipologia: %s\nAllegati: %d",
		contact,
		form.Email,
		label(ns.cfg.Listings.OperationTypes, form.Operation),
		label(ns.cfg.Listings.PropertyTypes, form.PropertyType),
		len(uploads),
	)

	return ns.sendNtfyMessage(NtfyMessage{
		Topic:    ns.cfg.Notifications.Ntfy.Topic,
		Title:    "Nuova segnalazione immobile",
		Message:  message,
		Tags:     []string{"house", "forms"},
		Priority: 3,
	})
}

func (ns *NotificationService) sendNtfyMessage(msg NtfyMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal ntfy message: %w", err)
	}

	req, err := http.NewRequest("POST", ns.cfg.Notifications.Ntfy.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ns.cfg.Notifications.Ntfy.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ns.cfg.Notifications.Ntfy.Token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy server returned status %d", resp.StatusCode)
	}
	return nil
}
