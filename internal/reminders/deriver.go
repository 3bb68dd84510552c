package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/audit"
	"github.com/wolfman30/clinicops/internal/clinic"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// maxConcurrentInserts bounds how many reminder rows one appointment writes
// at once.
const maxConcurrentInserts = 2

var tracer = otel.Tracer("clinicops.internal.reminders")

type appointmentLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

type reminderWriter interface {
	Insert(ctx context.Context, r *Reminder) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Reminder, error)
	Retime(ctx context.Context, id uuid.UUID, scheduledFor time.Time, content string, at time.Time) error
}

type clinicNamer interface {
	Get(ctx context.Context, id uuid.UUID) (*clinic.Clinic, error)
}

type auditor interface {
	RecordDetails(ctx context.Context, e audit.Event, details any) error
}

// Deriver creates the pending reminder rows for an appointment.
type Deriver struct {
	appointments appointmentLookup
	store        reminderWriter
	settings     clinic.SettingsProvider
	clinics      clinicNamer
	auditor      auditor
	metrics      *metrics.ClinicMetrics
	logger       *logging.Logger
	defaultLead  time.Duration
	now          func() time.Time
}

func NewDeriver(appts appointmentLookup, store reminderWriter, settings clinic.SettingsProvider, logger *logging.Logger) *Deriver {
	if logger == nil {
		logger = logging.Default()
	}
	if settings == nil {
		settings = clinic.StaticSettings{}
	}
	return &Deriver{
		appointments: appts,
		store:        store,
		settings:     settings,
		logger:       logger,
		defaultLead:  clinic.DefaultReminderLeadTime,
		now:          time.Now,
	}
}

// WithDefaultLead sets the lead time used when clinic settings are unreadable.
func (d *Deriver) WithDefaultLead(lead time.Duration) *Deriver {
	if lead > 0 {
		d.defaultLead = lead
	}
	return d
}

// WithClinics lets templates name the clinic.
func (d *Deriver) WithClinics(c clinicNamer) *Deriver {
	d.clinics = c
	return d
}

func (d *Deriver) WithAuditor(a auditor) *Deriver {
	d.auditor = a
	return d
}

func (d *Deriver) WithMetrics(m *metrics.ClinicMetrics) *Deriver {
	d.metrics = m
	return d
}

func (d *Deriver) WithClock(now func() time.Time) *Deriver {
	if now != nil {
		d.now = now
	}
	return d
}

// Derive fetches the appointment and writes one pending reminder per channel.
func (d *Deriver) Derive(ctx context.Context, appointmentID uuid.UUID, channels []string) ([]Reminder, error) {
	a, err := d.appointments.Lookup(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("reminders: derive: %w", err)
	}
	parsed, err := ParseChannels(channels)
	if err != nil {
		return nil, err
	}
	return d.derive(ctx, a, parsed)
}

// DeriveInClinic is Derive scoped to a clinic: an appointment belonging to
// another clinic is reported as not found.
func (d *Deriver) DeriveInClinic(ctx context.Context, clinicID, appointmentID uuid.UUID, channels []string) ([]Reminder, error) {
	a, err := d.appointments.Lookup(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("reminders: derive: %w", err)
	}
	if a.ClinicID != clinicID {
		return nil, fmt.Errorf("reminders: derive: %w", appointments.ErrAppointmentNotFound)
	}
	parsed, err := ParseChannels(channels)
	if err != nil {
		return nil, err
	}
	return d.derive(ctx, a, parsed)
}

// DeriveForAppointment derives reminders for an appointment the caller
// already holds.
func (d *Deriver) DeriveForAppointment(ctx context.Context, a *appointments.Appointment, channels []string) error {
	parsed, err := ParseChannels(channels)
	if err != nil {
		return err
	}
	_, err = d.derive(ctx, a, parsed)
	return err
}

// derive inserts every channel concurrently. Rows that were written stay
// written when a sibling insert fails; the failure is reported as a
// *PartialFailureError.
func (d *Deriver) derive(ctx context.Context, a *appointments.Appointment, channels []Channel) ([]Reminder, error) {
	ctx, span := tracer.Start(ctx, "reminders.derive")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment_id", a.ID.String()),
		attribute.Int("channels", len(channels)),
	)

	settings, lead := d.lead(ctx, a.ClinicID)
	clinicName := d.clinicName(ctx, a.ClinicID)
	scheduledFor := a.AppointmentDate.Add(-lead)
	now := d.now().UTC()

	rows := make([]Reminder, len(channels))
	errs := make([]error, len(channels))
	var g errgroup.Group
	g.SetLimit(maxConcurrentInserts)
	for i, ch := range channels {
		rows[i] = Reminder{
			ID:              uuid.New(),
			AppointmentID:   a.ID,
			PatientID:       a.PatientID,
			ClinicID:        a.ClinicID,
			Channel:         ch,
			ScheduledFor:    scheduledFor,
			Status:          StatusPending,
			MessageContent:  MessageTemplate(ch, a.PatientName, clinicName, a.AppointmentDate, settings.Location()),
			CreatedAt:       now,
			UpdatedAt:       now,
			PatientName:     a.PatientName,
			ClinicName:      clinicName,
			AppointmentDate: a.AppointmentDate,
		}
		g.Go(func() error {
			errs[i] = d.store.Insert(ctx, &rows[i])
			d.metrics.ObserveReminderCreated(string(ch), errs[i] == nil)
			return nil
		})
	}
	// Workers record failures per channel in errs and never fail the group.
	_ = g.Wait()

	created := make([]Reminder, 0, len(channels))
	var failed, ok []Channel
	for i, err := range errs {
		if err != nil {
			failed = append(failed, channels[i])
			continue
		}
		ok = append(ok, channels[i])
		created = append(created, rows[i])
	}
	d.record(ctx, a, ok, failed)

	if len(failed) > 0 {
		err := &PartialFailureError{Created: ok, Failed: failed, Err: errors.Join(errs...)}
		span.RecordError(err)
		d.logger.Error("reminder derivation incomplete",
			"appointment_id", a.ID, "clinic_id", a.ClinicID, "created", len(ok), "failed", len(failed), "error", err.Err)
		return created, err
	}
	d.logger.Info("reminders derived", "appointment_id", a.ID, "clinic_id", a.ClinicID,
		"count", len(created), "scheduled_for", scheduledFor)
	return created, nil
}

// RetimeForAppointment moves the appointment's pending reminders to match a
// new appointment instant.
func (d *Deriver) RetimeForAppointment(ctx context.Context, a *appointments.Appointment) error {
	existing, err := d.store.ListByAppointment(ctx, a.ID)
	if err != nil {
		return err
	}
	settings, lead := d.lead(ctx, a.ClinicID)
	clinicName := d.clinicName(ctx, a.ClinicID)
	now := d.now().UTC()

	var errs []error
	for _, r := range existing {
		if r.Status != StatusPending {
			continue
		}
		content := MessageTemplate(r.Channel, a.PatientName, clinicName, a.AppointmentDate, settings.Location())
		if err := d.store.Retime(ctx, r.ID, a.AppointmentDate.Add(-lead), content, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Deriver) lead(ctx context.Context, clinicID uuid.UUID) (clinic.Settings, time.Duration) {
	settings, err := d.settings.Settings(ctx, clinicID)
	if err != nil {
		d.logger.Warn("clinic settings unavailable, using default lead time", "clinic_id", clinicID, "error", err)
		return clinic.DefaultSettings(), d.defaultLead
	}
	return settings, settings.ReminderLeadTime()
}

func (d *Deriver) clinicName(ctx context.Context, clinicID uuid.UUID) string {
	if d.clinics == nil {
		return ""
	}
	c, err := d.clinics.Get(ctx, clinicID)
	if err != nil {
		d.logger.Debug("clinic name unavailable for reminder template", "clinic_id", clinicID, "error", err)
		return ""
	}
	return c.Name
}

func (d *Deriver) record(ctx context.Context, a *appointments.Appointment, created, failed []Channel) {
	if d.auditor == nil {
		return
	}
	id := a.ID
	err := d.auditor.RecordDetails(ctx, audit.Event{
		EventType:     audit.EventRemindersDerived,
		ClinicID:      a.ClinicID,
		AppointmentID: &id,
	}, map[string]any{"created": created, "failed": failed})
	if err != nil {
		d.logger.Error("failed to record audit event", "appointment_id", a.ID, "error", err)
	}
}
