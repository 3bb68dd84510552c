// Package audit keeps an append-only trail of appointment and reminder changes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType names an audited change.
type EventType string

const (
	EventAppointmentScheduled   EventType = "appointment.scheduled"
	EventAppointmentRescheduled EventType = "appointment.rescheduled"
	EventAppointmentStatus      EventType = "appointment.status_changed"
	EventFollowUpSet            EventType = "appointment.follow_up_set"
	EventRemindersDerived       EventType = "reminders.derived"
	EventRecordCreated          EventType = "medical_record.created"
)

// Event is an immutable audit record.
type Event struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	ClinicID      uuid.UUID       `json:"clinic_id"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	Actor         string          `json:"actor"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	ClinicID      uuid.UUID
	AppointmentID *uuid.UUID
	EventType     EventType
	Since         time.Time
	Limit         int
}

// Service writes and reads the audit trail.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates an audit service. A nil db yields a service whose
// writes are no-ops.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Record appends an event.
func (s *Service) Record(ctx context.Context, e Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if e.Actor == "" {
		e.Actor = "system"
	}
	details := e.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, clinic_id, appointment_id, actor, changed_fields, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, string(e.EventType), e.ClinicID, e.AppointmentID, e.Actor,
		pq.Array(e.ChangedFields), []byte(details), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: record %s: %w", e.EventType, err)
	}
	return nil
}

// RecordDetails marshals details and appends an event.
func (s *Service) RecordDetails(ctx context.Context, e Event, details any) error {
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
		e.Details = raw
	}
	return s.Record(ctx, e)
}

// Query retrieves audit events, newest first.
func (s *Service) Query(ctx context.Context, f Filter) ([]Event, error) {
	if s == nil || s.db == nil {
		return []Event{}, nil
	}
	query := `
		SELECT id, event_type, clinic_id, appointment_id, actor, changed_fields, details, created_at
		FROM audit_events
		WHERE clinic_id = $1`
	args := []any{f.ClinicID}
	if f.AppointmentID != nil {
		args = append(args, *f.AppointmentID)
		query += fmt.Sprintf(" AND appointment_id = $%d", len(args))
	}
	if f.EventType != "" {
		args = append(args, string(f.EventType))
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var eventType string
		var appointmentID uuid.NullUUID
		var fields []string
		var details []byte
		if err := rows.Scan(&e.ID, &eventType, &e.ClinicID, &appointmentID, &e.Actor,
			pq.Array(&fields), &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.EventType = EventType(eventType)
		if appointmentID.Valid {
			id := appointmentID.UUID
			e.AppointmentID = &id
		}
		e.ChangedFields = fields
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate: %w", err)
	}
	return events, nil
}
