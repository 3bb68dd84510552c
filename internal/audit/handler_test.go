package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinicops/pkg/logging"
)

type stubQuerier struct {
	got    Filter
	events []Event
	err    error
}

func (s *stubQuerier) Query(_ context.Context, f Filter) ([]Event, error) {
	s.got = f
	return s.events, s.err
}

func serveAudit(q eventQuerier, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/api/v1/clinics/{clinicID}", NewHandler(q, logging.Discard()).RegisterRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHandlerListAppliesFilter(t *testing.T) {
	clinicID := uuid.New()
	apptID := uuid.New()
	q := &stubQuerier{events: []Event{{ID: "e1", EventType: EventAppointmentScheduled, ClinicID: clinicID}}}

	rr := serveAudit(q, "/api/v1/clinics/"+clinicID.String()+"/audit?appointment_id="+apptID.String()+
		"&event_type=appointment.scheduled&since=2025-06-01T00:00:00Z&limit=9999")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, clinicID, q.got.ClinicID)
	require.NotNil(t, q.got.AppointmentID)
	assert.Equal(t, apptID, *q.got.AppointmentID)
	assert.Equal(t, EventAppointmentScheduled, q.got.EventType)
	assert.Equal(t, maxQueryLimit, q.got.Limit)
	assert.False(t, q.got.Since.IsZero())

	var body struct {
		Events []Event `json:"events"`
		Count  int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestHandlerListDegradesToEmpty(t *testing.T) {
	q := &stubQuerier{err: errors.New("connection refused")}
	rr := serveAudit(q, "/api/v1/clinics/"+uuid.NewString()+"/audit")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"events":[],"count":0}`, rr.Body.String())
	assert.Equal(t, defaultQueryLimit, q.got.Limit)
}

func TestHandlerListRejectsBadParams(t *testing.T) {
	base := "/api/v1/clinics/" + uuid.NewString() + "/audit"
	for _, qs := range []string{"?appointment_id=nope", "?since=yesterday", "?limit=0"} {
		rr := serveAudit(&stubQuerier{}, base+qs)
		assert.Equal(t, http.StatusBadRequest, rr.Code, qs)
	}
}
