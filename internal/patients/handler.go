package patients

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/http/httpx"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type patientStore interface {
	Create(ctx context.Context, req CreateRequest) (*Patient, error)
	Get(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error)
	ListByClinic(ctx context.Context, clinicID uuid.UUID) []Patient
	Update(ctx context.Context, clinicID, id uuid.UUID, req UpdateRequest) (*Patient, error)
}

// Handler serves patient endpoints.
type Handler struct {
	repo   patientStore
	logger *logging.Logger
}

func NewHandler(repo patientStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts patient endpoints under /api/v1/clinics/{clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/patients", h.list)
	r.Post("/patients", h.create)
	r.Get("/patients/{patientID}", h.get)
	r.Patch("/patients/{patientID}", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	patients := h.repo.ListByClinic(r.Context(), clinicID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"patients": patients,
		"count":    len(patients),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.ClinicID = clinicID
	p, err := h.repo.Create(r.Context(), req)
	if err != nil {
		h.writeErr(w, "create patient", clinicID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	clinicID, patientID, ok := h.ids(w, r)
	if !ok {
		return
	}
	p, err := h.repo.Get(r.Context(), clinicID, patientID)
	if err != nil {
		h.writeErr(w, "get patient", clinicID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	clinicID, patientID, ok := h.ids(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := h.repo.Update(r.Context(), clinicID, patientID, req)
	if err != nil {
		h.writeErr(w, "update patient", clinicID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
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
	case errors.Is(err, ErrInvalidPatient):
		httpx.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPatientNotFound):
		httpx.Error(w, "patient not found", http.StatusNotFound)
	default:
		h.logger.Error("patients handler: "+op, "clinic_id", clinicID, "error", err)
		httpx.WriteError(w, err, 0)
	}
}
