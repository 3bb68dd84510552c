package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinicops/pkg/logging"
	"github.com/wolfman30/clinicops/pkg/resilience"
)

var tracer = otel.Tracer("clinicops.internal.notify")

// ErrRejected means the provider refused the message and a retry would be
// refused again (bad number, unverified sender, malformed request).
var ErrRejected = errors.New("notify: provider rejected message")

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// SMSSender sends a text message. A "whatsapp:" prefix on to routes the
// message over WhatsApp.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TwilioConfig holds Twilio credentials and sender numbers.
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	WhatsAppFrom string
}

// TwilioSender posts messages using Twilio's REST API.
type TwilioSender struct {
	cfg        TwilioConfig
	baseURL    string
	httpClient *http.Client
	policy     resilience.Policy
	logger     *logging.Logger
}

// NewTwilioSender returns nil when credentials are missing.
func NewTwilioSender(cfg TwilioConfig, logger *logging.Logger) *TwilioSender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSender{
		cfg:        cfg,
		baseURL:    twilioBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		policy: resilience.Policy{
			Name:       "notify.twilio",
			MaxRetries: 2,
			BaseDelay:  200 * time.Millisecond,
			MaxDelay:   time.Second,
			Jitter:     0.2,
		},
		logger: logger,
	}
}

// SendSMS dispatches one message, retrying transport errors, 5xx and 429.
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("%w: recipient required", ErrRejected)
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: body required", ErrRejected)
	}
	from := s.cfg.FromNumber
	if strings.HasPrefix(to, "whatsapp:") {
		if s.cfg.WhatsAppFrom == "" {
			return fmt.Errorf("%w: whatsapp sender not configured", ErrRejected)
		}
		from = "whatsapp:" + strings.TrimPrefix(s.cfg.WhatsAppFrom, "whatsapp:")
	}
	if from == "" {
		return fmt.Errorf("%w: sender number not configured", ErrRejected)
	}

	ctx, span := tracer.Start(ctx, "notify.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.Bool("whatsapp", strings.HasPrefix(to, "whatsapp:")))

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", body)
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.cfg.AccountSID)

	sid, err := resilience.WithRetry(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.post(ctx, endpoint, payload)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("twilio message sent", "sid", sid)
	return nil
}

func (s *TwilioSender) post(ctx context.Context, endpoint string, payload url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", resilience.Permanent(err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed struct {
			SID string `json:"sid"`
		}
		_ = json.Unmarshal(body, &parsed)
		return parsed.SID, nil
	}
	err = fmt.Errorf("notify: twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return "", resilience.Permanent(fmt.Errorf("%w: %w", ErrRejected, err))
	}
	return "", err
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
