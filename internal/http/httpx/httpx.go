// Package httpx holds the JSON response and path helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/resilience"
)

const maxBodyBytes = 1 << 20

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func Error(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// DecodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// UUIDParam parses a chi path parameter as a UUID.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing %s", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// StatusFor maps a write-path error to the HTTP status shown to the caller.
func StatusFor(err error) int {
	var be *store.BackendError
	switch {
	case err == nil:
		return http.StatusOK
	case store.IsNotConfigured(err):
		return http.StatusServiceUnavailable
	case resilience.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.As(err, &be):
		switch be.Kind {
		case store.KindNotFound:
			return http.StatusNotFound
		case store.KindConstraint, store.KindInvalid:
			return http.StatusUnprocessableEntity
		case store.KindPermission:
			return http.StatusForbidden
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteError writes err with the status chosen by StatusFor unless status is non-zero.
func WriteError(w http.ResponseWriter, err error, status int) {
	if status == 0 {
		status = StatusFor(err)
	}
	Error(w, err.Error(), status)
}
