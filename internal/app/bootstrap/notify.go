package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/notify"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// BuildEmailSender selects the email provider named by EMAIL_PROVIDER. A
// provider missing its credentials falls back to the stub sender.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			logger.Info("email provider configured", "provider", "sendgrid")
			return s, nil
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY empty; using stub sender")
	case "ses":
		if strings.TrimSpace(cfg.SESFromEmail) == "" {
			logger.Warn("ses selected but SES_FROM_EMAIL empty; using stub sender")
			break
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		logger.Info("email provider configured", "provider", "ses", "region", cfg.AWSRegion)
		return notify.NewSESSender(client, notify.SESConfig{FromEmail: cfg.SESFromEmail, FromName: cfg.SESFromName}, logger), nil
	case "", "stub":
	default:
		return nil, fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger), nil
}

// BuildSMSSender returns the Twilio sender, or nil when Twilio is not
// configured.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) notify.SMSSender {
	s := notify.NewTwilioSender(notify.TwilioConfig{
		AccountSID:   cfg.TwilioAccountSID,
		AuthToken:    cfg.TwilioAuthToken,
		FromNumber:   cfg.TwilioFromNumber,
		WhatsAppFrom: cfg.TwilioWhatsAppFrom,
	}, logger)
	if s == nil {
		return nil
	}
	return s
}
