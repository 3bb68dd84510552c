package clinic

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/http/httpx"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type clinicReader interface {
	Get(ctx context.Context, id uuid.UUID) (*Clinic, error)
}

type settingsWriter interface {
	SettingsProvider
	Update(ctx context.Context, clinicID uuid.UUID, s Settings) (Settings, error)
}

// Handler serves clinic profile and settings endpoints.
type Handler struct {
	clinics  clinicReader
	settings settingsWriter
	logger   *logging.Logger
}

func NewHandler(clinics clinicReader, settings settingsWriter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{clinics: clinics, settings: settings, logger: logger}
}

// RegisterRoutes mounts clinic endpoints. Expected under /api/v1/clinics/{clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.getClinic)
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.putSettings)
}

func (h *Handler) getClinic(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := h.clinics.Get(r.Context(), clinicID)
	if errors.Is(err, ErrClinicNotFound) {
		httpx.Error(w, "clinic not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("clinic handler: get clinic", "clinic_id", clinicID, "error", err)
		httpx.WriteError(w, err, 0)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s, err := h.settings.Settings(r.Context(), clinicID)
	if errors.Is(err, ErrClinicNotFound) {
		httpx.Error(w, "clinic not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("clinic handler: get settings", "clinic_id", clinicID, "error", err)
		httpx.WriteError(w, err, 0)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var s Settings
	if err := httpx.DecodeJSON(r, &s); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.settings.Update(r.Context(), clinicID, s)
	if errors.Is(err, ErrClinicNotFound) {
		httpx.Error(w, "clinic not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("clinic handler: update settings", "clinic_id", clinicID, "error", err)
		httpx.WriteError(w, err, 0)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}
