package profiles

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/http/httpx"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type doctorLister interface {
	ListDoctors(ctx context.Context, clinicID uuid.UUID) []Doctor
}

// Handler serves the doctor directory.
type Handler struct {
	repo   doctorLister
	logger *logging.Logger
}

func NewHandler(repo doctorLister, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts profile endpoints under /api/v1/clinics/{clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/doctors", h.listDoctors)
}

func (h *Handler) listDoctors(w http.ResponseWriter, r *http.Request) {
	clinicID, err := httpx.UUIDParam(r, "clinicID")
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	doctors := h.repo.ListDoctors(r.Context(), clinicID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"doctors": doctors,
		"count":   len(doctors),
	})
}
