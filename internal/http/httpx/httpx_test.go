package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/resilience"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(store.ErrNotConfigured))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(&resilience.TimeoutError{Timeout: time.Second}))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(store.Classify("op", &pgconn.PgError{Code: "23505"})))
	assert.Equal(t, http.StatusForbidden, StatusFor(store.Classify("op", &pgconn.PgError{Code: "42501"})))
	assert.Equal(t, http.StatusBadGateway, StatusFor(store.Classify("op", errors.New("reset"))))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("other")))
}

func TestUUIDParam(t *testing.T) {
	id := uuid.New()
	r := chi.NewRouter()
	var got uuid.UUID
	var gotErr error
	r.Get("/clinics/{clinicID}", func(w http.ResponseWriter, req *http.Request) {
		got, gotErr = UUIDParam(req, "clinicID")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/clinics/"+id.String(), nil))
	require.NoError(t, gotErr)
	assert.Equal(t, id, got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/clinics/nope", nil))
	assert.Error(t, gotErr)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	assert.Error(t, DecodeJSON(req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "a", dst.Name)
}

func TestWriteErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("boom"), http.StatusBadRequest)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"boom"}`, rec.Body.String())
}
