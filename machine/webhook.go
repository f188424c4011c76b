package machine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sporespawn/config"
)

const webhookUsername = "sporespawn"

// WebhookManager posts announcements to a Discord webhook
type WebhookManager struct {
	config *config.Config
	logger *slog.Logger
	client *http.Client
}

type webhookPayload struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// NewWebhookManager creates a new WebhookManager instance
func NewWebhookManager(cfg *config.Config) *WebhookManager {
	return &WebhookManager{
		config: cfg,
		logger: slog.With("component", "webhook"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendMessage sends a message to Discord via webhook
func (w *WebhookManager) SendMessage(from, message string) error {
	data, err := json.Marshal(webhookPayload{Username: from, Content: message})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, w.config.Discord.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discord webhook returned status %d: %s", resp.StatusCode, body)
	}

	w.logger.Debug("Posted to webhook",
		slog.String("from", from),
		slog.Int("status", resp.StatusCode))

	return nil
}
