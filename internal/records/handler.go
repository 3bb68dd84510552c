package records

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/http/httpx"
	"github.com/wolfman30/clinicops/internal/tenancy"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type recordStore interface {
	Create(ctx context.Context, req CreateRequest) (*MedicalRecord, error)
	Get(ctx context.Context, clinicID, id uuid.UUID) (*MedicalRecord, error)
	ListByPatient(ctx context.Context, clinicID, patientID uuid.UUID) []MedicalRecord
}

// Handler serves medical record endpoints.
type Handler struct {
	repo   recordStore
	logger *logging.Logger
}

func NewHandler(repo recordStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts record endpoints under /api/v1/clinics/{clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/patients/{patientID}/records", h.list)
	r.Post("/patients/{patientID}/records", h.create)
	r.Get("/records/{recordID}", h.get)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clinicID, patientID, ok := h.ids(w, r)
	if !ok {
		return
	}
	recs := h.repo.ListByPatient(r.Context(), clinicID, patientID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"records": recs,
		"count":   len(recs),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	clinicID, patientID, ok := h.ids(w, r)
	if !ok {
		return
	}
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.ClinicID = clinicID
	req.PatientID = patientID
	req.CreatedBy = tenancy.ActorFromContext(r.Context()).UserID

	rec, err := h.repo.Create(r.Context(), req)
	if err != nil {
		h.writeErr(w, "create record", clinicID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recordID, err := httpx.UUIDParam(r, "recordID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := h.repo.Get(r.Context(), clinicID, recordID)
	if err != nil {
		h.writeErr(w, "get record", clinicID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	patientID, err := httpx.UUIDParam(r, "patientID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return clinicID, patientID, true
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, clinicID uuid.UUID, err error) {
	switch {
	case errors.Is(err, ErrInvalidRecord):
		httpx.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrRecordNotFound):
		httpx.Error(w, "record not found", http.StatusNotFound)
	case errors.Is(err, ErrPatientNotInClinic), errors.Is(err, ErrAppointmentMismatch):
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("records handler: "+op, "clinic_id", clinicID, "error", err)
		httpx.WriteError(w, err, 0)
	}
}
