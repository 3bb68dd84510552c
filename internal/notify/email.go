// Package notify delivers reminder messages over email, SMS and WhatsApp.
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/wolfman30/clinicops/internal/reminders"
	"github.com/wolfman30/clinicops/pkg/logging"
)

const defaultFromName = "Clinic Reminders"

// EmailSender sends one reminder email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single reminder email. Body is plain text; HTML is optional.
type EmailMessage struct {
	ReminderID string
	ClinicID   string
	To         string
	ToName     string
	Subject    string
	Body       string
	HTML       string
}

// ReminderEmail builds the email for an email-channel reminder.
func ReminderEmail(r *reminders.Reminder) EmailMessage {
	return EmailMessage{
		ReminderID: r.ID.String(),
		ClinicID:   r.ClinicID.String(),
		To:         strings.TrimSpace(r.PatientEmail),
		ToName:     r.PatientName,
		Subject:    reminders.Subject(r.ClinicName, r.AppointmentDate, nil),
		Body:       r.MessageContent,
	}
}

// validate rejects messages no provider could deliver.
func (m EmailMessage) validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrRejected, m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: empty subject", ErrRejected)
	}
	if strings.TrimSpace(m.Body) == "" && strings.TrimSpace(m.HTML) == "" {
		return fmt.Errorf("%w: empty body", ErrRejected)
	}
	return nil
}

// fromAddress formats an RFC 5322 mailbox, bare when name is empty.
func fromAddress(name, email string) string {
	if strings.TrimSpace(name) == "" {
		return email
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

// StubEmailSender logs instead of sending. Used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("email delivery disabled; reminder logged only",
		"reminder_id", msg.ReminderID, "clinic_id", msg.ClinicID, "subject", msg.Subject)
	return nil
}
