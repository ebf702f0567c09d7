package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CyberITEX/cms-commerce/pkg/config"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

// Message is one transactional email to send.
type Message struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Vars     map[string]string `json:"vars,omitempty"`
}

// Mailer sends transactional emails. Delivery is best-effort; callers must
// never fail a money-moving transaction because a send failed.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var errMissingRecipient = errors.New("recipient address is required")

// Client posts messages to the transactional email provider's HTTP API.
type Client struct {
	apiKey   string
	baseURL  string
	from     string
	fromName string
	http     *http.Client
	logger   *logger.Logger
}

// New builds a Mailer from config. When no API key is configured it falls
// back to a log-only sender so dev environments work without a provider.
func New(cfg config.EmailConfig, logg *logger.Logger) Mailer {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.BaseURL) == "" {
		return &logMailer{logger: logg}
	}
	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		from:     cfg.FromAddress,
		fromName: cfg.FromName,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logg,
	}
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errMissingRecipient
	}

	payload := map[string]any{
		"from":      c.from,
		"from_name": c.fromName,
		"to":        msg.To,
		"subject":   msg.Subject,
		"template":  msg.Template,
		"vars":      msg.Vars,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("email provider responded %d", resp.StatusCode)
	}

	if c.logger != nil {
		c.logger.Debug(c.logger.WithField(ctx, "template", msg.Template), "email sent")
	}
	return nil
}

// logMailer records sends to the log instead of delivering them.
type logMailer struct {
	logger *logger.Logger
}

func (m *logMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errMissingRecipient
	}
	if m.logger != nil {
		ctx = m.logger.WithFields(ctx, map[string]any{
			"to":       msg.To,
			"template": msg.Template,
		})
		m.logger.Info(ctx, "email delivery skipped (no provider configured)")
	}
	return nil
}
