package reminders

import (
	"fmt"
	"strings"
	"time"
)

const messageLayout = "Monday, January 2 at 3:04 PM"

// MessageTemplate renders the reminder body for a channel. The appointment
// time is shown in loc.
func MessageTemplate(channel Channel, patientName, clinicName string, at time.Time, loc *time.Location) string {
	name := strings.TrimSpace(patientName)
	if name == "" {
		name = "there"
	}
	clinic := strings.TrimSpace(clinicName)
	if clinic == "" {
		clinic = "the clinic"
	}
	if loc == nil {
		loc = time.UTC
	}
	when := at.In(loc).Format(messageLayout)

	switch channel {
	case ChannelSMS, ChannelWhatsApp:
		return fmt.Sprintf("Hi %s, this is a reminder of your appointment at %s on %s. Reply C to confirm or call us to reschedule.",
			name, clinic, when)
	case ChannelEmail:
		return fmt.Sprintf("Hello %s,\n\nThis is a friendly reminder that you have an appointment at %s on %s.\n\nIf you need to reschedule, please contact the clinic.\n\n%s",
			name, clinic, when, clinic)
	case ChannelCall:
		return fmt.Sprintf("Call %s to remind them of their appointment at %s on %s.", name, clinic, when)
	default:
		return fmt.Sprintf("Reminder: you have an appointment at %s on %s.", clinic, when)
	}
}

// Subject is the email subject line for a reminder.
func Subject(clinicName string, at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	clinic := strings.TrimSpace(clinicName)
	if clinic == "" {
		return "Appointment reminder for " + at.In(loc).Format("Jan 2")
	}
	return fmt.Sprintf("Your appointment at %s on %s", clinic, at.In(loc).Format("Jan 2"))
}
