package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinicops/internal/reminders"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// ChannelDispatcher routes a reminder to the sender for its channel.
type ChannelDispatcher struct {
	email  EmailSender
	sms    SMSSender
	logger *logging.Logger
}

func NewChannelDispatcher(email EmailSender, sms SMSSender, logger *logging.Logger) *ChannelDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChannelDispatcher{email: email, sms: sms, logger: logger}
}

var _ reminders.Dispatcher = (*ChannelDispatcher)(nil)

// Dispatch sends r. Failures that a retry cannot fix wrap
// reminders.ErrUndeliverable.
func (d *ChannelDispatcher) Dispatch(ctx context.Context, r *reminders.Reminder) error {
	err := d.dispatch(ctx, r)
	if err != nil && errors.Is(err, ErrRejected) && !errors.Is(err, reminders.ErrUndeliverable) {
		return fmt.Errorf("%w: %w", reminders.ErrUndeliverable, err)
	}
	return err
}

func (d *ChannelDispatcher) dispatch(ctx context.Context, r *reminders.Reminder) error {
	switch r.Channel {
	case reminders.ChannelEmail:
		if d.email == nil {
			return fmt.Errorf("%w: email sender not configured", reminders.ErrUndeliverable)
		}
		if strings.TrimSpace(r.PatientEmail) == "" {
			return fmt.Errorf("%w: patient has no email", reminders.ErrUndeliverable)
		}
		return d.email.Send(ctx, ReminderEmail(r))
	case reminders.ChannelSMS, reminders.ChannelWhatsApp:
		if d.sms == nil {
			return fmt.Errorf("%w: sms sender not configured", reminders.ErrUndeliverable)
		}
		to := strings.TrimSpace(r.PatientPhone)
		if to == "" {
			return fmt.Errorf("%w: patient has no phone", reminders.ErrUndeliverable)
		}
		if r.Channel == reminders.ChannelWhatsApp {
			to = "whatsapp:" + strings.TrimPrefix(to, "whatsapp:")
		}
		return d.sms.SendSMS(ctx, to, r.MessageContent)
	case reminders.ChannelCall:
		return fmt.Errorf("%w: call reminders are placed by staff", reminders.ErrUndeliverable)
	default:
		return fmt.Errorf("%w: channel %q", reminders.ErrUndeliverable, r.Channel)
	}
}
