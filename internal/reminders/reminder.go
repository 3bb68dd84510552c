// Package reminders derives per-channel appointment reminders and dispatches
// them when they fall due.
package reminders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel specifies how a reminder is delivered.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelCall     Channel = "call"
)

// DefaultChannels are used when a derivation names none.
var DefaultChannels = []Channel{ChannelSMS, ChannelEmail}

var ErrUnknownChannel = errors.New("reminders: unknown channel")

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelSMS, ChannelEmail, ChannelWhatsApp, ChannelCall:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

// ParseChannels validates names and removes duplicates, keeping order. An
// empty list yields DefaultChannels.
func ParseChannels(names []string) ([]Channel, error) {
	if len(names) == 0 {
		return append([]Channel(nil), DefaultChannels...), nil
	}
	seen := make(map[Channel]bool, len(names))
	out := make([]Channel, 0, len(names))
	for _, n := range names {
		c, err := ParseChannel(n)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// Status tracks the lifecycle of a reminder.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

var ErrUnknownStatus = errors.New("reminders: unknown status")

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// Reminder is one scheduled outreach for one appointment on one channel.
// The patient, clinic and appointment fields after UpdatedAt are populated on
// joined reads only.
type Reminder struct {
	ID             uuid.UUID  `json:"id"`
	AppointmentID  uuid.UUID  `json:"appointment_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ClinicID       uuid.UUID  `json:"clinic_id"`
	Channel        Channel    `json:"channel"`
	ScheduledFor   time.Time  `json:"scheduled_for"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	Status         Status     `json:"status"`
	MessageContent string     `json:"message_content"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	PatientName       string    `json:"patient_name,omitempty"`
	PatientEmail      string    `json:"-"`
	PatientPhone      string    `json:"-"`
	ClinicName        string    `json:"clinic_name,omitempty"`
	AppointmentDate   time.Time `json:"appointment_date,omitempty"`
	AppointmentStatus string    `json:"-"`
}

// PartialFailureError reports a derivation where some channels were written
// and others were not. Written rows are kept.
type PartialFailureError struct {
	Created []Channel
	Failed  []Channel
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("reminders: %d of %d channels failed: %v",
		len(e.Failed), len(e.Created)+len(e.Failed), e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// GroupByChannel buckets reminders by channel.
func GroupByChannel(list []Reminder) map[Channel][]Reminder {
	out := make(map[Channel][]Reminder)
	for _, r := range list {
		out[r.Channel] = append(out[r.Channel], r)
	}
	return out
}

// CountByStatus tallies reminders by status. Every known status is present.
func CountByStatus(list []Reminder) map[Status]int {
	out := map[Status]int{
		StatusPending:   0,
		StatusSent:      0,
		StatusDelivered: 0,
		StatusFailed:    0,
	}
	for _, r := range list {
		out[r.Status]++
	}
	return out
}
