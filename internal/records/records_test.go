package records

import (
	"context"
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

	"github.com/wolfman30/clinicops/internal/audit"
	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/logging"
)

var recordCols = []string{"id", "clinic_id", "patient_id", "appointment_id", "diagnosis", "treatment",
	"medications", "notes", "created_by", "created_at"}

var fixedNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

type captureAuditor struct{ events []audit.Event }

func (c *captureAuditor) RecordDetails(_ context.Context, e audit.Event, _ any) error {
	c.events = append(c.events, e)
	return nil
}

func TestCreateRequestValidate(t *testing.T) {
	req := CreateRequest{PatientID: uuid.New(), Diagnosis: "x"}
	assert.ErrorIs(t, req.Validate(), ErrInvalidRecord)

	req = CreateRequest{ClinicID: uuid.New(), PatientID: uuid.New(), Diagnosis: "  ", Treatment: ""}
	assert.ErrorIs(t, req.Validate(), ErrInvalidRecord)

	nilAppt := uuid.Nil
	req = CreateRequest{
		ClinicID:      uuid.New(),
		PatientID:     uuid.New(),
		AppointmentID: &nilAppt,
		Treatment:     " chemical peel ",
		Medications:   []string{" tretinoin ", "", "  "},
	}
	require.NoError(t, req.Validate())
	assert.Nil(t, req.AppointmentID)
	assert.Equal(t, "chemical peel", req.Treatment)
	assert.Equal(t, []string{"tretinoin"}, req.Medications)
}

func TestCreateInsertsAndAudits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID, patientID := uuid.New(), uuid.New()
	aud := &captureAuditor{}
	repo := NewRepositoryWithDB(mock, nil, logging.Discard()).
		WithAuditor(aud).
		WithClock(func() time.Time { return fixedNow })

	mock.ExpectQuery("SELECT").
		WithArgs(patientID, clinicID, (*uuid.UUID)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"patient_ok", "appointment_ok"}).AddRow(true, true))
	mock.ExpectExec("INSERT INTO medical_records").
		WithArgs(pgxmock.AnyArg(), clinicID, patientID, (*uuid.UUID)(nil), "Rosacea", "IPL",
			[]string{"metronidazole"}, "", "dr-1", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := repo.Create(context.Background(), CreateRequest{
		ClinicID:    clinicID,
		PatientID:   patientID,
		Diagnosis:   "Rosacea",
		Treatment:   "IPL",
		Medications: []string{"metronidazole"},
		CreatedBy:   "dr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, rec.CreatedAt)
	require.Len(t, aud.events, 1)
	assert.Equal(t, audit.EventRecordCreated, aud.events[0].EventType)
	assert.Equal(t, clinicID, aud.events[0].ClinicID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsForeignPatient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID, patientID := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT").
		WithArgs(patientID, clinicID, (*uuid.UUID)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"patient_ok", "appointment_ok"}).AddRow(false, true))

	_, err = NewRepositoryWithDB(mock, nil, logging.Discard()).Create(context.Background(), CreateRequest{
		ClinicID: clinicID, PatientID: patientID, Diagnosis: "Acne",
	})
	assert.ErrorIs(t, err, ErrPatientNotInClinic)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsAppointmentOfAnotherPatient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID, patientID, apptID := uuid.New(), uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT").
		WithArgs(patientID, clinicID, &apptID).
		WillReturnRows(pgxmock.NewRows([]string{"patient_ok", "appointment_ok"}).AddRow(true, false))

	_, err = NewRepositoryWithDB(mock, nil, logging.Discard()).Create(context.Background(), CreateRequest{
		ClinicID: clinicID, PatientID: patientID, AppointmentID: &apptID, Diagnosis: "Acne",
	})
	assert.ErrorIs(t, err, ErrAppointmentMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByPatient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID, patientID, apptID := uuid.New(), uuid.New(), uuid.New()
	notes := "tolerated well"
	mock.ExpectQuery("FROM medical_records").
		WithArgs(clinicID, patientID).
		WillReturnRows(pgxmock.NewRows(recordCols).
			AddRow(uuid.New(), clinicID, patientID, &apptID, "Melasma", "Peel", []string{"hydroquinone"}, &notes, (*string)(nil), fixedNow).
			AddRow(uuid.New(), clinicID, patientID, (*uuid.UUID)(nil), "Melasma", "", []string(nil), (*string)(nil), (*string)(nil), fixedNow.Add(-time.Hour)))

	got := NewRepositoryWithDB(mock, nil, logging.Discard()).ListByPatient(context.Background(), clinicID, patientID)
	require.Len(t, got, 2)
	assert.Equal(t, apptID, *got[0].AppointmentID)
	assert.Equal(t, "tolerated well", got[0].Notes)
	assert.Nil(t, got[1].AppointmentID)
	assert.Equal(t, []string{}, got[1].Medications)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByPatientDegradesToEmpty(t *testing.T) {
	got := NewRepositoryWithDB(store.Unconfigured{}, nil, logging.Discard()).ListByPatient(context.Background(), uuid.New(), uuid.New())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID, id := uuid.New(), uuid.New()
	mock.ExpectQuery("FROM medical_records").WithArgs(id, clinicID).WillReturnError(pgx.ErrNoRows)
	_, err = NewRepositoryWithDB(mock, nil, logging.Discard()).Get(context.Background(), clinicID, id)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

type memRecords struct {
	recs []MedicalRecord
	err  error
}

func (m *memRecords) Create(_ context.Context, req CreateRequest) (*MedicalRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	rec := MedicalRecord{ID: uuid.New(), ClinicID: req.ClinicID, PatientID: req.PatientID, Diagnosis: req.Diagnosis, CreatedBy: req.CreatedBy}
	m.recs = append(m.recs, rec)
	return &rec, nil
}

func (m *memRecords) Get(_ context.Context, clinicID, id uuid.UUID) (*MedicalRecord, error) {
	for i := range m.recs {
		if m.recs[i].ID == id && m.recs[i].ClinicID == clinicID {
			return &m.recs[i], nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *memRecords) ListByPatient(_ context.Context, clinicID, patientID uuid.UUID) []MedicalRecord {
	out := []MedicalRecord{}
	for _, r := range m.recs {
		if r.ClinicID == clinicID && r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out
}

func TestHandler(t *testing.T) {
	mem := &memRecords{}
	r := chi.NewRouter()
	r.Route("/clinics/{clinicID}", NewHandler(mem, logging.Discard()).RegisterRoutes)
	base := "/clinics/" + uuid.NewString() + "/patients/" + uuid.NewString() + "/records"

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base, strings.NewReader(`{"diagnosis":"Acne","medications":["adapalene"]}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "system", mem.recs[0].CreatedBy)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base, strings.NewReader(`{"notes":"only notes"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	mem.err = ErrPatientNotInClinic
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base, strings.NewReader(`{"diagnosis":"Acne"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clinics/"+uuid.NewString()+"/records/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
