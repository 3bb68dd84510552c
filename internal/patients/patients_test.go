package patients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/logging"
)

var patientCols = []string{"id", "user_id", "clinic_id", "full_name", "email", "phone", "date_of_birth",
	"medical_history", "emergency_contact", "insurance_info", "communication_preferences", "created_at", "updated_at"}

func TestCreateRequestValidate(t *testing.T) {
	req := CreateRequest{FullName: "Jo"}
	assert.ErrorIs(t, req.Validate(), ErrInvalidPatient)

	req = CreateRequest{ClinicID: uuid.New(), FullName: "   "}
	assert.ErrorIs(t, req.Validate(), ErrInvalidPatient)

	req = CreateRequest{ClinicID: uuid.New(), FullName: "Jo March"}
	assert.ErrorIs(t, req.Validate(), ErrInvalidPatient)

	future := time.Now().Add(48 * time.Hour)
	req = CreateRequest{ClinicID: uuid.New(), FullName: "Jo March", Phone: "+1555", DateOfBirth: &future}
	assert.ErrorIs(t, req.Validate(), ErrInvalidPatient)

	req = CreateRequest{ClinicID: uuid.New(), FullName: " Jo March ", Phone: "+15551234567"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "Jo March", req.FullName)
}

func TestCreateThenListRoundTrip(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID := uuid.New()
	repo := NewRepositoryWithDB(mock, nil, logging.Discard())

	mock.ExpectExec("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), (*uuid.UUID)(nil), clinicID, "Jo March", "", "+15551234567", (*time.Time)(nil),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := repo.Create(context.Background(), CreateRequest{ClinicID: clinicID, FullName: "Jo March", Phone: "+15551234567"})
	require.NoError(t, err)
	assert.True(t, created.CommunicationPreferences.SMS)

	phone := "+15551234567"
	mock.ExpectQuery("SELECT id, user_id, clinic_id").
		WithArgs(clinicID).
		WillReturnRows(pgxmock.NewRows(patientCols).AddRow(
			created.ID, (*uuid.UUID)(nil), clinicID, "Jo March", (*string)(nil), &phone, (*time.Time)(nil),
			[]byte(`{"version":1}`), []byte(`{}`), nil, []byte(`{"version":1,"sms":true,"email":false}`),
			created.CreatedAt, created.UpdatedAt))

	listed := repo.ListByClinic(context.Background(), clinicID)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	assert.Equal(t, "Jo March", listed[0].FullName)
	assert.Equal(t, "+15551234567", listed[0].Phone)
	assert.Equal(t, clinicID, listed[0].ClinicID)
	assert.Equal(t, BlobVersion, listed[0].EmergencyContact.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByClinicDegradesToEmpty(t *testing.T) {
	repo := NewRepositoryWithDB(store.Unconfigured{}, nil, logging.Discard())
	got := repo.ListByClinic(context.Background(), uuid.New())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCreatePropagatesBackendErrors(t *testing.T) {
	repo := NewRepositoryWithDB(store.Unconfigured{}, nil, logging.Discard())
	_, err := repo.Create(context.Background(), CreateRequest{ClinicID: uuid.New(), FullName: "Jo", Email: "jo@example.com"})
	require.Error(t, err)
	assert.True(t, store.IsNotConfigured(err))
}

func TestUpdateNeverTouchesClinic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID, id := uuid.New(), uuid.New()
	email := "jo@example.com"
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, user_id, clinic_id").
		WithArgs(id, clinicID).
		WillReturnRows(pgxmock.NewRows(patientCols).AddRow(
			id, (*uuid.UUID)(nil), clinicID, "Jo March", &email, (*string)(nil), (*time.Time)(nil),
			nil, nil, nil, nil, now, now))
	mock.ExpectExec("UPDATE patients SET").
		WithArgs(id, clinicID, "Josephine March", "jo@example.com", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	name := "Josephine March"
	got, err := NewRepositoryWithDB(mock, nil, logging.Discard()).Update(context.Background(), clinicID, id, UpdateRequest{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Josephine March", got.FullName)
	assert.Equal(t, clinicID, got.ClinicID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScopedToClinic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID, id := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT id, user_id").WithArgs(id, clinicID).WillReturnError(pgx.ErrNoRows)
	_, err = NewRepositoryWithDB(mock, nil, logging.Discard()).Get(context.Background(), clinicID, id)
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

type memPatients struct {
	byID map[uuid.UUID]*Patient
	fail error
}

func (m *memPatients) Create(_ context.Context, req CreateRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if m.fail != nil {
		return nil, m.fail
	}
	p := &Patient{ID: uuid.New(), ClinicID: req.ClinicID, FullName: req.FullName, Phone: req.Phone, Email: req.Email}
	m.byID[p.ID] = p
	return p, nil
}

func (m *memPatients) Get(_ context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	p, ok := m.byID[id]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (m *memPatients) ListByClinic(_ context.Context, clinicID uuid.UUID) []Patient {
	out := []Patient{}
	for _, p := range m.byID {
		if p.ClinicID == clinicID {
			out = append(out, *p)
		}
	}
	return out
}

func (m *memPatients) Update(ctx context.Context, clinicID, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	p, err := m.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	return p, req.Apply(p)
}

func TestHandlerCreateAndList(t *testing.T) {
	mem := &memPatients{byID: map[uuid.UUID]*Patient{}}
	r := chi.NewRouter()
	r.Route("/clinics/{clinicID}", NewHandler(mem, logging.Discard()).RegisterRoutes)
	clinicID := uuid.New()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clinics/"+clinicID.String()+"/patients",
		strings.NewReader(`{"full_name":"Jo March","phone":"+15551234567"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clinics/"+clinicID.String()+"/patients",
		strings.NewReader(`{"full_name":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clinics/"+clinicID.String()+"/patients", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clinics/"+clinicID.String()+"/patients/"+uuid.New().String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCreateSurfacesBackendFailure(t *testing.T) {
	mem := &memPatients{byID: map[uuid.UUID]*Patient{}, fail: store.Classify("patients.create", errors.New("connection reset"))}
	r := chi.NewRouter()
	r.Route("/clinics/{clinicID}", NewHandler(mem, logging.Discard()).RegisterRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clinics/"+uuid.New().String()+"/patients",
		strings.NewReader(`{"full_name":"Jo March","email":"jo@example.com"}`)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection reset")
}
