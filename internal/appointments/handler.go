package appointments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/http/httpx"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type appointmentReader interface {
	Get(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	ListByClinic(ctx context.Context, clinicID uuid.UUID, f Filter) []Appointment
	ListByPatient(ctx context.Context, clinicID, patientID uuid.UUID) []Appointment
	ListFollowUps(ctx context.Context, clinicID uuid.UUID) []Appointment
}

type appointmentWriter interface {
	Schedule(ctx context.Context, in ScheduleInput) (*Appointment, error)
	Reschedule(ctx context.Context, clinicID, id uuid.UUID, in RescheduleInput) (*Appointment, error)
	Cancel(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	Complete(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	MarkNoShow(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	SetFollowUp(ctx context.Context, clinicID, id uuid.UUID, followUp *time.Time) error
	AvailableSlots(ctx context.Context, clinicID, doctorID uuid.UUID, day time.Time, length time.Duration) ([]Slot, error)
}

// Handler serves appointment endpoints.
type Handler struct {
	reader    appointmentReader
	scheduler appointmentWriter
	logger    *logging.Logger
	now       func() time.Time
}

func NewHandler(reader appointmentReader, scheduler appointmentWriter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{reader: reader, scheduler: scheduler, logger: logger, now: time.Now}
}

// RegisterRoutes mounts appointment endpoints under /api/v1/clinics/{clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/appointments", h.list)
	r.Post("/appointments", h.schedule)
	r.Get("/appointments/{appointmentID}", h.get)
	r.Post("/appointments/{appointmentID}/reschedule", h.reschedule)
	r.Post("/appointments/{appointmentID}/cancel", h.status(StatusCancelled))
	r.Post("/appointments/{appointmentID}/complete", h.status(StatusCompleted))
	r.Post("/appointments/{appointmentID}/no-show", h.status(StatusNoShow))
	r.Put("/appointments/{appointmentID}/follow-up", h.followUp)
	r.Get("/patients/{patientID}/appointments", h.listByPatient)
	r.Get("/follow-ups", h.listFollowUps)
	r.Get("/doctors/{doctorID}/availability", h.availability)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list := h.reader.ListByClinic(r.Context(), clinicID, filter)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"appointments": list,
		"count":        len(list),
	})
}

func parseFilter(r *http.Request) (Filter, error) {
	var f Filter
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid from: %w", err)
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid to: %w", err)
		}
		f.To = &t
	}
	if v := q.Get("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("invalid doctor_id: %w", err)
		}
		f.DoctorID = &id
	}
	if v := q.Get("status"); v != "" {
		s, err := ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = &s
	}
	return f, nil
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var in ScheduleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in.ClinicID = clinicID
	a, err := h.scheduler.Schedule(r.Context(), in)
	if err != nil {
		if a != nil && errors.Is(err, ErrRemindersIncomplete) {
			h.logger.Warn("appointment booked with incomplete reminders", "appointment_id", a.ID, "error", err)
			httpx.WriteJSON(w, http.StatusCreated, map[string]any{
				"appointment":    a,
				"reminder_error": err.Error(),
			})
			return
		}
		h.writeErr(w, "schedule", clinicID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"appointment": a})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	clinicID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	a, err := h.reader.Get(r.Context(), clinicID, id)
	if err != nil {
		h.writeErr(w, "get", clinicID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	clinicID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	var in RescheduleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, err := h.scheduler.Reschedule(r.Context(), clinicID, id, in)
	if err != nil {
		h.writeErr(w, "reschedule", clinicID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) status(to Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := h.ids(w, r)
		if !ok {
			return
		}
		var (
			a   *Appointment
			err error
		)
		switch to {
		case StatusCancelled:
			a, err = h.scheduler.Cancel(r.Context(), clinicID, id)
		case StatusCompleted:
			a, err = h.scheduler.Complete(r.Context(), clinicID, id)
		case StatusNoShow:
			a, err = h.scheduler.MarkNoShow(r.Context(), clinicID, id)
		default:
			httpx.Error(w, "unsupported status", http.StatusBadRequest)
			return
		}
		if err != nil {
			h.writeErr(w, string(to), clinicID, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, a)
	}
}

type followUpRequest struct {
	FollowUpDate *time.Time `json:"follow_up_date"`
}

func (h *Handler) followUp(w http.ResponseWriter, r *http.Request) {
	clinicID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	var req followUpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.scheduler.SetFollowUp(r.Context(), clinicID, id, req.FollowUpDate); err != nil {
		h.writeErr(w, "set follow-up", clinicID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listByPatient(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	patientID, err := httpx.UUIDParam(r, "patientID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list := h.reader.ListByPatient(r.Context(), clinicID, patientID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"appointments": list,
		"count":        len(list),
	})
}

// FollowUpView is an appointment annotated with its follow-up classification.
type FollowUpView struct {
	Appointment
	FollowUpStatus FollowUpStatus `json:"follow_up_status"`
}

func (h *Handler) listFollowUps(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	now := h.now()
	list := h.reader.ListFollowUps(r.Context(), clinicID)
	views := make([]FollowUpView, 0, len(list))
	for _, a := range list {
		status, ok := a.FollowUpStatus(now)
		if !ok {
			continue
		}
		views = append(views, FollowUpView{Appointment: a, FollowUpStatus: status})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"follow_ups": views,
		"count":      len(views),
	})
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	doctorID, err := httpx.UUIDParam(r, "doctorID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	day := h.now()
	if v := r.URL.Query().Get("date"); v != "" {
		day, err = time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		// Noon keeps the date inside the same clinic-local day for any UTC offset.
		day = day.Add(12 * time.Hour)
	}
	var length time.Duration
	if v := r.URL.Query().Get("duration_minutes"); v != "" {
		mins, err := strconv.Atoi(v)
		if err != nil || mins <= 0 {
			httpx.Error(w, "duration_minutes must be a positive integer", http.StatusBadRequest)
			return
		}
		length = time.Duration(mins) * time.Minute
	}
	slots, err := h.scheduler.AvailableSlots(r.Context(), clinicID, doctorID, day, length)
	if err != nil {
		h.writeErr(w, "availability", clinicID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"slots": slots,
		"count": len(slots),
	})
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := httpx.UUIDParam(r, "appointmentID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return clinicID, id, true
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, clinicID uuid.UUID, err error) {
	switch {
	case errors.Is(err, ErrInvalidAppointment), errors.Is(err, ErrInPast):
		httpx.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrAppointmentNotFound):
		httpx.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, ErrDoubleBooked), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConcurrentUpdate):
		httpx.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrPatientNotInClinic), errors.Is(err, ErrDoctorNotInClinic), errors.Is(err, ErrOutsideWorkingHours):
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("appointments handler: "+op, "clinic_id", clinicID, "error", err)
		httpx.WriteError(w, err, 0)
	}
}
