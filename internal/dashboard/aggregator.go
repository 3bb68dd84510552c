// Package dashboard builds the clinic overview: headline counts fetched
// concurrently, plus shaping helpers over appointment and reminder lists.
package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinicops/internal/clinic"
	"github.com/wolfman30/clinicops/pkg/logging"
)

var tracer = otel.Tracer("clinicops.internal.dashboard")

type patientCounter interface {
	Count(ctx context.Context, clinicID uuid.UUID) (int64, error)
}

type appointmentCounter interface {
	CountBetween(ctx context.Context, clinicID uuid.UUID, start, end time.Time) (int64, error)
	CountPendingFollowUps(ctx context.Context, clinicID uuid.UUID) (int64, error)
}

type reminderCounter interface {
	CountPending(ctx context.Context, clinicID uuid.UUID) (int64, error)
}

// Stats is the flat headline record. The counts are read independently and
// may reflect slightly different instants.
type Stats struct {
	ClinicID          uuid.UUID `json:"clinic_id"`
	TotalPatients     int64     `json:"total_patients"`
	TodayAppointments int64     `json:"today_appointments"`
	PendingFollowUps  int64     `json:"pending_follow_ups"`
	PendingReminders  int64     `json:"pending_reminders"`
	GeneratedAt       time.Time `json:"generated_at"`
	// Degraded names the counts that failed and were reported as zero.
	Degraded []string `json:"degraded,omitempty"`
}

// Aggregator fans out the headline counts for a clinic.
type Aggregator struct {
	patients     patientCounter
	appointments appointmentCounter
	reminders    reminderCounter
	settings     clinic.SettingsProvider
	logger       *logging.Logger
	now          func() time.Time
}

func NewAggregator(patients patientCounter, appointments appointmentCounter, reminders reminderCounter, logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{
		patients:     patients,
		appointments: appointments,
		reminders:    reminders,
		settings:     clinic.StaticSettings{},
		logger:       logger,
		now:          time.Now,
	}
}

// WithSettings sets the source of the clinic timezone used for "today".
func (a *Aggregator) WithSettings(p clinic.SettingsProvider) *Aggregator {
	if p != nil {
		a.settings = p
	}
	return a
}

func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	if now != nil {
		a.now = now
	}
	return a
}

// Stats runs every count concurrently and waits for all of them. A failed
// count is logged and reported as zero; Stats itself never fails.
func (a *Aggregator) Stats(ctx context.Context, clinicID uuid.UUID) Stats {
	ctx, span := tracer.Start(ctx, "dashboard.stats")
	defer span.End()
	span.SetAttributes(attribute.String("clinic_id", clinicID.String()))

	now := a.now()
	settings, err := a.settings.Settings(ctx, clinicID)
	if err != nil {
		a.logger.Warn("dashboard: settings unavailable, using UTC day", "clinic_id", clinicID, "error", err)
		settings = clinic.Settings{}
	}
	dayStart, dayEnd := settings.DayWindow(now)

	type count struct {
		name string
		dst  *int64
		fn   func(context.Context) (int64, error)
	}
	out := Stats{ClinicID: clinicID, GeneratedAt: now.UTC()}
	counts := []count{
		{"total_patients", &out.TotalPatients, func(ctx context.Context) (int64, error) {
			return a.patients.Count(ctx, clinicID)
		}},
		{"today_appointments", &out.TodayAppointments, func(ctx context.Context) (int64, error) {
			return a.appointments.CountBetween(ctx, clinicID, dayStart, dayEnd)
		}},
		{"pending_follow_ups", &out.PendingFollowUps, func(ctx context.Context) (int64, error) {
			return a.appointments.CountPendingFollowUps(ctx, clinicID)
		}},
		{"pending_reminders", &out.PendingReminders, func(ctx context.Context) (int64, error) {
			return a.reminders.CountPending(ctx, clinicID)
		}},
	}

	failed := make([]bool, len(counts))
	var g errgroup.Group
	for i, c := range counts {
		g.Go(func() error {
			n, err := c.fn(ctx)
			if err != nil {
				a.logger.Error("dashboard: count failed, reporting zero", "clinic_id", clinicID, "count", c.name, "error", err)
				failed[i] = true
				return nil
			}
			*c.dst = n
			return nil
		})
	}
	// A failed count degrades to zero instead of failing the group.
	_ = g.Wait()

	for i, c := range counts {
		if failed[i] {
			out.Degraded = append(out.Degraded, c.name)
		}
	}
	return out
}
