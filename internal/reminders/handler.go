package reminders

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/http/httpx"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type reminderLister interface {
	ListByClinic(ctx context.Context, clinicID uuid.UUID, f ListFilter) []Reminder
}

type reminderDeriver interface {
	DeriveInClinic(ctx context.Context, clinicID, appointmentID uuid.UUID, channels []string) ([]Reminder, error)
}

// Handler serves reminder endpoints.
type Handler struct {
	lister  reminderLister
	deriver reminderDeriver
	logger  *logging.Logger
}

func NewHandler(lister reminderLister, deriver reminderDeriver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{lister: lister, deriver: deriver, logger: logger}
}

// RegisterRoutes mounts reminder endpoints under /api/v1/clinics/{clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reminders", h.list)
	r.Post("/appointments/{appointmentID}/reminders", h.derive)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var f ListFilter
	if v := r.URL.Query().Get("status"); v != "" {
		s, err := ParseStatus(v)
		if err != nil {
			httpx.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Status = &s
	}
	if v := r.URL.Query().Get("channel"); v != "" {
		c, err := ParseChannel(v)
		if err != nil {
			httpx.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Channel = &c
	}
	list := h.lister.ListByClinic(r.Context(), clinicID, f)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"reminders": list,
		"count":     len(list),
		"by_status": CountByStatus(list),
	})
}

type deriveRequest struct {
	Channels []string `json:"channels"`
}

func (h *Handler) derive(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	appointmentID, err := httpx.UUIDParam(r, "appointmentID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req deriveRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	created, err := h.deriver.DeriveInClinic(r.Context(), clinicID, appointmentID, req.Channels)
	var partial *PartialFailureError
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{"reminders": created, "count": len(created)})
	case errors.As(err, &partial) && len(created) > 0:
		httpx.WriteJSON(w, http.StatusMultiStatus, map[string]any{
			"reminders": created,
			"count":     len(created),
			"failed":    partial.Failed,
			"error":     partial.Error(),
		})
	case errors.Is(err, ErrUnknownChannel):
		httpx.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, appointments.ErrAppointmentNotFound):
		httpx.Error(w, "appointment not found", http.StatusNotFound)
	default:
		h.logger.Error("reminders handler: derive", "clinic_id", clinicID, "appointment_id", appointmentID, "error", err)
		httpx.WriteError(w, err, 0)
	}
}
