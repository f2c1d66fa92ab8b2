package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
)

// WhatsAppClient talks to the self-hosted WhatsApp gateway.
type WhatsAppClient struct {
	baseURL  string
	apiKey   string
	deviceID string
	client   *http.Client
	log      *logger.Logger
}

// NewWhatsAppClient creates a gateway client. Returns nil when no gateway is
// configured; the dispatcher treats a nil client as channel unavailable.
func NewWhatsAppClient(cfg config.WhatsAppConfig, log *logger.Logger) *WhatsAppClient {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}
	return &WhatsAppClient{
		baseURL:  cfg.GetWhatsAppURL(),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

type whatsAppSendRequest struct {
	DeviceID string `json:"deviceId"`
	Phone    string `json:"phone"`
	Message  string `json:"message"`
}

// SendMessage delivers one text message to an E.164 phone number.
func (c *WhatsAppClient) SendMessage(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(whatsAppSendRequest{
		DeviceID: c.deviceID,
		Phone:    phone,
		Message:  message,
	})
	if err != nil {
		return fmt.Errorf("encode whatsapp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
