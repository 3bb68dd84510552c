package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinicops/internal/audit"
	"github.com/wolfman30/clinicops/internal/clinic"
	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/internal/tenancy"
	"github.com/wolfman30/clinicops/pkg/logging"
	"github.com/wolfman30/clinicops/pkg/resilience"
)

var tracer = otel.Tracer("clinicops.internal.appointments")

var (
	ErrInvalidAppointment  = errors.New("appointments: invalid appointment")
	ErrInPast              = errors.New("appointments: appointment date is in the past")
	ErrDoubleBooked        = errors.New("appointments: doctor already has an appointment in that window")
	ErrPatientNotInClinic  = errors.New("appointments: patient does not belong to clinic")
	ErrDoctorNotInClinic   = errors.New("appointments: doctor does not belong to clinic")
	ErrOutsideWorkingHours = errors.New("appointments: outside clinic working hours")
	ErrRemindersIncomplete = errors.New("appointments: reminders incomplete")
)

// PatientChecker confirms a patient belongs to a clinic.
type PatientChecker interface {
	InClinic(ctx context.Context, q store.Querier, clinicID, id uuid.UUID) (bool, error)
}

// DoctorChecker confirms a doctor belongs to a clinic.
type DoctorChecker interface {
	DoctorInClinic(ctx context.Context, q store.Querier, clinicID, id uuid.UUID) (bool, error)
}

// ReminderPlanner derives reminders for appointments. Implemented by the
// reminders package.
type ReminderPlanner interface {
	DeriveForAppointment(ctx context.Context, a *Appointment, channels []string) error
	RetimeForAppointment(ctx context.Context, a *Appointment) error
}

// Auditor records appointment changes.
type Auditor interface {
	RecordDetails(ctx context.Context, e audit.Event, details any) error
}

// ScheduleInput describes a new appointment.
type ScheduleInput struct {
	ClinicID         uuid.UUID  `json:"-"`
	PatientID        uuid.UUID  `json:"patient_id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	AppointmentDate  time.Time  `json:"appointment_date"`
	DurationMinutes  int        `json:"duration_minutes,omitempty"`
	TreatmentType    string     `json:"treatment_type,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	FollowUpDate     *time.Time `json:"follow_up_date,omitempty"`
	ReminderChannels []string   `json:"reminder_channels,omitempty"`
}

func (in ScheduleInput) validate() error {
	var missing []string
	if in.ClinicID == uuid.Nil {
		missing = append(missing, "clinic_id")
	}
	if in.PatientID == uuid.Nil {
		missing = append(missing, "patient_id")
	}
	if in.DoctorID == uuid.Nil {
		missing = append(missing, "doctor_id")
	}
	if in.AppointmentDate.IsZero() {
		missing = append(missing, "appointment_date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidAppointment, strings.Join(missing, ", "))
	}
	if in.DurationMinutes < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidAppointment)
	}
	return nil
}

// Scheduler owns the appointment lifecycle.
type Scheduler struct {
	db           store.DB
	repo         *Repository
	patients     PatientChecker
	doctors      DoctorChecker
	runner       *store.Runner
	settings     clinic.SettingsProvider
	reminders    ReminderPlanner
	auditor      Auditor
	publisher    events.Publisher
	metrics      *metrics.ClinicMetrics
	logger       *logging.Logger
	now          func() time.Time
	enforceHours bool
}

func NewScheduler(db store.DB, repo *Repository, patients PatientChecker, doctors DoctorChecker, runner *store.Runner, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		db:        db,
		repo:      repo,
		patients:  patients,
		doctors:   doctors,
		runner:    runner,
		settings:  clinic.StaticSettings{},
		publisher: events.NopPublisher{},
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Scheduler) WithSettings(p clinic.SettingsProvider) *Scheduler {
	if p != nil {
		s.settings = p
	}
	return s
}

func (s *Scheduler) WithReminders(p ReminderPlanner) *Scheduler {
	s.reminders = p
	return s
}

func (s *Scheduler) WithAuditor(a Auditor) *Scheduler {
	s.auditor = a
	return s
}

func (s *Scheduler) WithPublisher(p events.Publisher) *Scheduler {
	if p != nil {
		s.publisher = p
	}
	return s
}

func (s *Scheduler) WithMetrics(m *metrics.ClinicMetrics) *Scheduler {
	s.metrics = m
	return s
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

// WithWorkingHours rejects appointments outside the clinic's configured hours.
func (s *Scheduler) WithWorkingHours(enforce bool) *Scheduler {
	s.enforceHours = enforce
	return s
}

func (s *Scheduler) clinicSettings(ctx context.Context, clinicID uuid.UUID) clinic.Settings {
	settings, err := s.settings.Settings(ctx, clinicID)
	if err != nil {
		s.logger.Warn("clinic settings unavailable, using defaults", "clinic_id", clinicID, "error", err)
		return clinic.DefaultSettings()
	}
	return settings
}

// Schedule books an appointment. The doctor's calendar is locked for the
// duration of the transaction so two concurrent bookings of overlapping
// windows cannot both succeed. If reminder channels are given they are derived
// after commit; a derivation failure returns the booked appointment together
// with an error wrapping ErrRemindersIncomplete.
func (s *Scheduler) Schedule(ctx context.Context, in ScheduleInput) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.schedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic_id", in.ClinicID.String()),
		attribute.String("doctor_id", in.DoctorID.String()),
	)

	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	if !in.AppointmentDate.After(now) {
		return nil, ErrInPast
	}

	settings := s.clinicSettings(ctx, in.ClinicID)
	duration := in.DurationMinutes
	if duration == 0 {
		duration = int(settings.AppointmentDuration() / time.Minute)
	}
	if s.enforceHours && !settings.IsOpenAt(in.AppointmentDate, time.Duration(duration)*time.Minute) {
		return nil, ErrOutsideWorkingHours
	}

	a := &Appointment{
		ID:              uuid.New(),
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		ClinicID:        in.ClinicID,
		AppointmentDate: in.AppointmentDate.UTC(),
		DurationMinutes: duration,
		TreatmentType:   strings.TrimSpace(in.TreatmentType),
		Status:          StatusScheduled,
		FollowUpDate:    in.FollowUpDate,
		Notes:           in.Notes,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}

	err := store.Exec(ctx, s.runner, "appointments.schedule", func(ctx context.Context) error {
		return store.InTx(ctx, s.db, func(tx pgx.Tx) error {
			if err := s.repo.LockDoctor(ctx, tx, a.DoctorID); err != nil {
				return err
			}
			if err := s.checkParticipants(ctx, tx, a); err != nil {
				return err
			}
			// Excluding a.ID lets a retry after an unacknowledged commit skip its own row.
			busy, err := s.repo.Overlapping(ctx, tx, a.DoctorID, a.AppointmentDate, a.End(), a.ID)
			if err != nil {
				return err
			}
			if busy {
				return resilience.Permanent(ErrDoubleBooked)
			}
			return s.repo.Insert(ctx, tx, a)
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: schedule: %w", err)
	}

	s.metrics.ObserveAppointment(string(a.Status))
	s.logger.Info("appointment scheduled", "clinic_id", a.ClinicID, "appointment_id", a.ID, "doctor_id", a.DoctorID)
	s.record(ctx, audit.EventAppointmentScheduled, a, nil, map[string]any{
		"appointment_date": a.AppointmentDate,
		"duration_minutes": a.DurationMinutes,
	})
	s.publish(ctx, events.TypeAppointmentScheduled, a)

	if len(in.ReminderChannels) > 0 && s.reminders != nil {
		if err := s.reminders.DeriveForAppointment(ctx, a, in.ReminderChannels); err != nil {
			span.RecordError(err)
			return a, fmt.Errorf("%w: %w", ErrRemindersIncomplete, err)
		}
	}
	return a, nil
}

func (s *Scheduler) checkParticipants(ctx context.Context, tx store.Querier, a *Appointment) error {
	ok, err := s.patients.InClinic(ctx, tx, a.ClinicID, a.PatientID)
	if err != nil {
		return err
	}
	if !ok {
		return resilience.Permanent(ErrPatientNotInClinic)
	}
	ok, err = s.doctors.DoctorInClinic(ctx, tx, a.ClinicID, a.DoctorID)
	if err != nil {
		return err
	}
	if !ok {
		return resilience.Permanent(ErrDoctorNotInClinic)
	}
	return nil
}

// RescheduleInput moves an appointment to a new instant.
type RescheduleInput struct {
	AppointmentDate time.Time `json:"appointment_date"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
}

// Reschedule moves an active appointment, re-running the overlap check against
// the doctor's other appointments. The row keeps its id and is marked
// rescheduled; pending reminders are re-timed to the new instant.
func (s *Scheduler) Reschedule(ctx context.Context, clinicID, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id.String()))

	if in.AppointmentDate.IsZero() || in.DurationMinutes < 0 {
		return nil, fmt.Errorf("%w: appointment_date required", ErrInvalidAppointment)
	}
	now := s.now()
	if !in.AppointmentDate.After(now) {
		return nil, ErrInPast
	}
	settings := s.clinicSettings(ctx, clinicID)

	var updated *Appointment
	var previous time.Time
	err := store.Exec(ctx, s.runner, "appointments.reschedule", func(ctx context.Context) error {
		return store.InTx(ctx, s.db, func(tx pgx.Tx) error {
			cur, err := s.repo.GetForUpdate(ctx, tx, clinicID, id)
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return resilience.Permanent(err)
				}
				return err
			}
			if !CanTransition(cur.Status, StatusRescheduled) {
				return resilience.Permanent(fmt.Errorf("%w: %s to %s", ErrInvalidTransition, cur.Status, StatusRescheduled))
			}
			next := *cur
			previous = cur.AppointmentDate
			next.AppointmentDate = in.AppointmentDate.UTC()
			if in.DurationMinutes > 0 {
				next.DurationMinutes = in.DurationMinutes
			}
			next.Status = StatusRescheduled
			next.UpdatedAt = now.UTC()
			if s.enforceHours && !settings.IsOpenAt(next.AppointmentDate, next.Duration()) {
				return resilience.Permanent(ErrOutsideWorkingHours)
			}
			if err := s.repo.LockDoctor(ctx, tx, next.DoctorID); err != nil {
				return err
			}
			busy, err := s.repo.Overlapping(ctx, tx, next.DoctorID, next.AppointmentDate, next.End(), next.ID)
			if err != nil {
				return err
			}
			if busy {
				return resilience.Permanent(ErrDoubleBooked)
			}
			if err := s.repo.UpdateSchedule(ctx, tx, &next, cur.Status); err != nil {
				if errors.Is(err, ErrConcurrentUpdate) {
					return resilience.Permanent(err)
				}
				return err
			}
			updated = &next
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: reschedule: %w", err)
	}

	s.metrics.ObserveAppointment(string(updated.Status))
	s.record(ctx, audit.EventAppointmentRescheduled, updated, []string{"appointment_date", "duration_minutes", "status"}, map[string]any{
		"from": previous,
		"to":   updated.AppointmentDate,
	})
	s.publish(ctx, events.TypeAppointmentRescheduled, updated)
	if s.reminders != nil {
		if err := s.reminders.RetimeForAppointment(ctx, updated); err != nil {
			s.logger.Error("failed to re-time reminders", "appointment_id", updated.ID, "error", err)
		}
	}
	return updated, nil
}

// Cancel marks an active appointment cancelled.
func (s *Scheduler) Cancel(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, clinicID, id, StatusCancelled)
}

// Complete marks an active appointment completed.
func (s *Scheduler) Complete(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, clinicID, id, StatusCompleted)
}

// MarkNoShow records that the patient did not attend.
func (s *Scheduler) MarkNoShow(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, clinicID, id, StatusNoShow)
}

func (s *Scheduler) transition(ctx context.Context, clinicID, id uuid.UUID, to Status) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.transition")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id.String()), attribute.String("status", string(to)))

	now := s.now().UTC()
	var updated *Appointment
	var from Status
	err := store.Exec(ctx, s.runner, "appointments.transition", func(ctx context.Context) error {
		return store.InTx(ctx, s.db, func(tx pgx.Tx) error {
			cur, err := s.repo.GetForUpdate(ctx, tx, clinicID, id)
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return resilience.Permanent(err)
				}
				return err
			}
			if !CanTransition(cur.Status, to) {
				return resilience.Permanent(fmt.Errorf("%w: %s to %s", ErrInvalidTransition, cur.Status, to))
			}
			if err := s.repo.UpdateStatus(ctx, tx, id, cur.Status, to, now); err != nil {
				if errors.Is(err, ErrConcurrentUpdate) {
					return resilience.Permanent(err)
				}
				return err
			}
			from = cur.Status
			next := *cur
			next.Status = to
			next.UpdatedAt = now
			updated = &next
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: %s: %w", to, err)
	}

	s.metrics.ObserveAppointment(string(to))
	s.record(ctx, audit.EventAppointmentStatus, updated, []string{"status"}, map[string]any{"from": from, "to": to})
	switch to {
	case StatusCancelled:
		s.publish(ctx, events.TypeAppointmentCancelled, updated)
	case StatusCompleted:
		s.publish(ctx, events.TypeAppointmentCompleted, updated)
	case StatusNoShow:
		s.publish(ctx, events.TypeAppointmentNoShow, updated)
	}
	return updated, nil
}

// SetFollowUp sets or clears an appointment's follow-up date.
func (s *Scheduler) SetFollowUp(ctx context.Context, clinicID, id uuid.UUID, followUp *time.Time) error {
	if err := s.repo.SetFollowUp(ctx, clinicID, id, followUp, s.now().UTC()); err != nil {
		return err
	}
	s.record(ctx, audit.EventFollowUpSet, &Appointment{ID: id, ClinicID: clinicID}, []string{"follow_up_date"}, map[string]any{"follow_up_date": followUp})
	return nil
}

// AvailableSlots lists the doctor's free slots on the clinic-local day
// containing day. Slots in the past are omitted.
func (s *Scheduler) AvailableSlots(ctx context.Context, clinicID, doctorID uuid.UUID, day time.Time, length time.Duration) ([]Slot, error) {
	settings := s.clinicSettings(ctx, clinicID)
	if length <= 0 {
		length = settings.AppointmentDuration()
	}
	open, closing, ok := settings.OpenWindow(day)
	if !ok {
		return []Slot{}, nil
	}
	busy, err := s.repo.Busy(ctx, doctorID, open, closing)
	if err != nil {
		return nil, fmt.Errorf("appointments: available slots: %w", err)
	}
	return FreeSlots(open, closing, length, busy, s.now()), nil
}

func (s *Scheduler) record(ctx context.Context, eventType audit.EventType, a *Appointment, fields []string, details any) {
	if s.auditor == nil {
		return
	}
	id := a.ID
	err := s.auditor.RecordDetails(ctx, audit.Event{
		EventType:     eventType,
		ClinicID:      a.ClinicID,
		AppointmentID: &id,
		Actor:         tenancy.ActorFromContext(ctx).UserID,
		ChangedFields: fields,
	}, details)
	if err != nil {
		s.logger.Error("failed to record audit event", "event_type", eventType, "appointment_id", a.ID, "error", err)
	}
}

func (s *Scheduler) publish(ctx context.Context, eventType string, a *Appointment) {
	err := s.publisher.Publish(ctx, a.ClinicID.String(), events.AppointmentChangedV1{
		Type:            eventType,
		AppointmentID:   a.ID.String(),
		ClinicID:        a.ClinicID.String(),
		PatientID:       a.PatientID.String(),
		DoctorID:        a.DoctorID.String(),
		Status:          string(a.Status),
		AppointmentDate: a.AppointmentDate,
		Actor:           tenancy.ActorFromContext(ctx).UserID,
		OccurredAt:      s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to publish appointment event", "event_type", eventType, "appointment_id", a.ID, "error", err)
	}
}
