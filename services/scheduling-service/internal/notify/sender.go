package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sender delivers one templated message to a recipient phone. Delivery
// mechanics live behind the gateway; errors here are logged by callers,
// never retried and never surfaced to whoever changed the lead status.
type Sender interface {
	Send(ctx context.Context, phone, templateRef string, params map[string]string) error
	ProviderID() string
}

// WhatsAppWebhookSender posts messages to a WhatsApp gateway webhook.
type WhatsAppWebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWhatsAppWebhookSender(url, token string) *WhatsAppWebhookSender {
	return &WhatsAppWebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *WhatsAppWebhookSender) ProviderID() string {
	return "whatsapp-webhook"
}

func (s *WhatsAppWebhookSender) Send(ctx context.Context, phone, templateRef string, params map[string]string) error {
	if s.url == "" {
		return errors.New("whatsapp webhook url not configured")
	}
	raw, err := json.Marshal(map[string]any{
		"to":       phone,
		"template": templateRef,
		"params":   params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("whatsapp gateway returned %d", resp.StatusCode)
	}
	return nil
}
