package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatpay/chatpay/internal/logging"
)

const twilioBaseURL = "https://api.twilio.com"

// Sender delivers a chat message to a phone number and returns the channel message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// LoggerSender writes outbound messages to the logger instead of delivering them.
type LoggerSender struct {
	logger *slog.Logger
}

func NewLoggerSender(logger *slog.Logger) *LoggerSender {
	return &LoggerSender{logger: logger}
}

func (s *LoggerSender) Send(_ context.Context, to, body string) (string, error) {
	id := "log-" + uuid.NewString()
	if s != nil && s.logger != nil {
		s.logger.Info("outbound message", logging.Phone("to", to), "message_id", id, "body", body)
	}
	return id, nil
}

// TwilioConfig holds the REST credentials for the messaging account.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
}

// TwilioSender sends WhatsApp messages through the Twilio REST API.
type TwilioSender struct {
	httpClient *http.Client
	cfg        TwilioConfig
}

func NewTwilioSender(cfg TwilioConfig) *TwilioSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioBaseURL
	}
	return &TwilioSender{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
	}
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("From", whatsapp(s.cfg.From))
	form.Set("To", whatsapp(to))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read twilio response: %w", err)
	}
	var out twilioResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("twilio status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio error %d: %s", out.Code, out.Message)
	}
	return out.SID, nil
}

func whatsapp(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
