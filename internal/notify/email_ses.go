package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/clinicops/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds the SES sender identity. Credentials come from the AWS config.
type SESConfig struct {
	FromEmail string
	FromName  string
}

// SESSender sends reminder emails through Amazon SES v2.
type SESSender struct {
	client    sesAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewSESSender returns nil for a nil client.
func NewSESSender(client *sesv2.Client, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	return newSESSender(client, cfg, logger)
}

func newSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SESSender{client: client, fromEmail: cfg.FromEmail, fromName: cfg.FromName, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress(s.fromName, s.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{fromAddress(msg.ToName, msg.To)}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
		EmailTags: sesTags(msg),
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("SES send failed", "reminder_id", msg.ReminderID, "error", err)
		if sesRejected(err) {
			return fmt.Errorf("%w: SES: %w", ErrRejected, err)
		}
		return fmt.Errorf("notify: SES: %w", err)
	}

	s.logger.Info("reminder email sent", "provider", "ses", "reminder_id", msg.ReminderID, "message_id", aws.ToString(out.MessageId))
	return nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

func sesTags(msg EmailMessage) []types.MessageTag {
	var tags []types.MessageTag
	if msg.ReminderID != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("reminder_id"), Value: aws.String(msg.ReminderID)})
	}
	if msg.ClinicID != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("clinic_id"), Value: aws.String(msg.ClinicID)})
	}
	return tags
}

// sesRejected reports errors a retry cannot fix.
func sesRejected(err error) bool {
	var (
		rejected   *types.MessageRejected
		badRequest *types.BadRequestException
		unverified *types.MailFromDomainNotVerifiedException
	)
	return errors.As(err, &rejected) || errors.As(err, &badRequest) || errors.As(err, &unverified)
}

var _ EmailSender = (*SESSender)(nil)
