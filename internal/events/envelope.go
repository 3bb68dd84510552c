// Package events publishes appointment and reminder domain events.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the clinic core.
const (
	TypeAppointmentScheduled   = "appointment.scheduled"
	TypeAppointmentRescheduled = "appointment.rescheduled"
	TypeAppointmentCancelled   = "appointment.cancelled"
	TypeAppointmentCompleted   = "appointment.completed"
	TypeAppointmentNoShow      = "appointment.no_show"
	TypeReminderDispatched     = "reminder.dispatched"
)

// Event is a versioned domain event.
type Event interface {
	EventType() string
}

// Envelope carries transport metadata for an event.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	ClinicID        string          `json:"clinic_id"`
	TimestampMicros int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

var (
	errMissingClinic = errors.New("events: clinic id is required")
	errNilEvent      = errors.New("events: event required")
	nowFunc          = time.Now
)

// NewEnvelope marshals evt and stamps it with a fresh id and timestamp.
func NewEnvelope(clinicID string, evt Event) (Envelope, error) {
	if strings.TrimSpace(clinicID) == "" {
		return Envelope{}, errMissingClinic
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, fmt.Errorf("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	return Envelope{
		EventID:         uuid.New(),
		EventType:       eventType,
		ClinicID:        strings.TrimSpace(clinicID),
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		Payload:         payload,
	}, nil
}

// AppointmentChangedV1 is emitted when an appointment is scheduled or changes status.
type AppointmentChangedV1 struct {
	Type            string    `json:"-"`
	AppointmentID   string    `json:"appointment_id"`
	ClinicID        string    `json:"clinic_id"`
	PatientID       string    `json:"patient_id"`
	DoctorID        string    `json:"doctor_id"`
	Status          string    `json:"status"`
	AppointmentDate time.Time `json:"appointment_date"`
	Actor           string    `json:"actor,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (e AppointmentChangedV1) EventType() string { return e.Type }

// ReminderDispatchedV1 is emitted after a reminder send attempt.
type ReminderDispatchedV1 struct {
	ReminderID    string    `json:"reminder_id"`
	AppointmentID string    `json:"appointment_id"`
	ClinicID      string    `json:"clinic_id"`
	Channel       string    `json:"channel"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (ReminderDispatchedV1) EventType() string { return TypeReminderDispatched }
