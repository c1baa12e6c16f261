// Package notify sends operator email through the SendGrid v3 API. Email is
// strictly best-effort: an unconfigured or failing mailer never blocks the
// trading path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/config"
)

const defaultSendGridURL = "https://api.sendgrid.com"

// Sender is the outbound mail contract the bot runner depends on.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// Emailer sends plain-text mail through SendGrid. When the API key or
// recipient is unset every Send is a silent no-op.
type Emailer struct {
	client  *http.Client
	baseURL string
	apiKey  string
	from    string
	to      string
	logger  *logrus.Logger
}

var _ Sender = (*Emailer)(nil)

// NewEmailer builds the mailer from the email configuration.
func NewEmailer(cfg config.EmailConfig, timeout time.Duration, logger *logrus.Logger) *Emailer {
	from := cfg.FromEmail
	if from == "" {
		from = cfg.Recipient
	}
	return &Emailer{
		client:  &http.Client{Timeout: timeout},
		baseURL: defaultSendGridURL,
		apiKey:  cfg.SendGridAPIKey,
		from:    from,
		to:      cfg.Recipient,
		logger:  logger,
	}
}

// WithBaseURL overrides the SendGrid endpoint, for tests.
func (e *Emailer) WithBaseURL(baseURL string) *Emailer {
	e.baseURL = strings.TrimRight(baseURL, "/")
	return e
}

// Enabled reports whether the mailer has enough configuration to send.
func (e *Emailer) Enabled() bool {
	return e.apiKey != "" && e.to != ""
}

// Send posts one plain-text message. Unconfigured mailers return nil.
func (e *Emailer) Send(ctx context.Context, subject, body string) error {
	if !e.Enabled() {
		return nil
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": e.to}}},
		},
		"from":    map[string]string{"email": e.from},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/plain", "value": body},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v3/mail/send", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
