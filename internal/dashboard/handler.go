package dashboard

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/clinic"
	"github.com/wolfman30/clinicops/internal/http/httpx"
	"github.com/wolfman30/clinicops/internal/reminders"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type statsSource interface {
	Stats(ctx context.Context, clinicID uuid.UUID) Stats
}

type appointmentLister interface {
	ListByClinic(ctx context.Context, clinicID uuid.UUID, f appointments.Filter) []appointments.Appointment
	ListFollowUps(ctx context.Context, clinicID uuid.UUID) []appointments.Appointment
}

type reminderLister interface {
	ListByClinic(ctx context.Context, clinicID uuid.UUID, f reminders.ListFilter) []reminders.Reminder
}

// Overview is the dashboard response.
type Overview struct {
	Stats                Stats                                          `json:"stats"`
	AppointmentsByStatus map[appointments.Status]int                    `json:"appointments_by_status"`
	Monthly              []MonthBucket                                  `json:"monthly"`
	RemindersByChannel   map[reminders.Channel]map[reminders.Status]int `json:"reminders_by_channel"`
	FollowUps            FollowUpSummary                                `json:"follow_ups"`
	Operations           Operations                                     `json:"operations"`
}

// Handler serves the clinic dashboard.
type Handler struct {
	stats        statsSource
	appointments appointmentLister
	reminders    reminderLister
	settings     clinic.SettingsProvider
	gatherer     prometheus.Gatherer
	logger       *logging.Logger
	now          func() time.Time
}

func NewHandler(stats statsSource, appts appointmentLister, rems reminderLister, gatherer prometheus.Gatherer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		stats:        stats,
		appointments: appts,
		reminders:    rems,
		settings:     clinic.StaticSettings{},
		gatherer:     gatherer,
		logger:       logger,
		now:          time.Now,
	}
}

func (h *Handler) WithSettings(p clinic.SettingsProvider) *Handler {
	if p != nil {
		h.settings = p
	}
	return h
}

func (h *Handler) WithClock(now func() time.Time) *Handler {
	if now != nil {
		h.now = now
	}
	return h
}

// RegisterRoutes mounts GET /dashboard under /api/v1/clinics/{clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.get)
}

// get serves the overview. Query params:
//   - months: 1-24 calendar months of history (default 6)
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	months := 6
	if raw := strings.TrimSpace(r.URL.Query().Get("months")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 24 {
			httpx.Error(w, "invalid months; must be 1-24", http.StatusBadRequest)
			return
		}
		months = n
	}

	ctx := r.Context()
	now := h.now()
	settings, err := h.settings.Settings(ctx, clinicID)
	if err != nil {
		h.logger.Warn("dashboard: settings unavailable", "clinic_id", clinicID, "error", err)
	}
	loc := settings.Location()
	local := now.In(loc)
	from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -(months - 1), 0)

	appts := h.appointments.ListByClinic(ctx, clinicID, appointments.Filter{From: &from})
	rems := h.reminders.ListByClinic(ctx, clinicID, reminders.ListFilter{})

	httpx.WriteJSON(w, http.StatusOK, Overview{
		Stats:                h.stats.Stats(ctx, clinicID),
		AppointmentsByStatus: AppointmentsByStatus(appts),
		Monthly:              MonthlyBuckets(appts, now, months, loc),
		RemindersByChannel:   RemindersByChannel(rems),
		FollowUps:            SummarizeFollowUps(h.appointments.ListFollowUps(ctx, clinicID), now),
		Operations:           snapshotOperations(h.gatherer),
	})
}
