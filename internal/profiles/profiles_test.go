package profiles

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinicops/pkg/logging"
)

func TestParseRole(t *testing.T) {
	for _, r := range []string{"doctor", "patient", "admin"} {
		got, err := ParseRole(r)
		require.NoError(t, err)
		assert.Equal(t, Role(r), got)
	}
	_, err := ParseRole("nurse")
	assert.ErrorIs(t, err, ErrUnknownRole)

	assert.True(t, RoleDoctor.CanManageClinic())
	assert.False(t, RolePatient.CanManageClinic())
}

func TestDecodePreferencesLegacyShape(t *testing.T) {
	p, err := DecodePreferences([]byte(`{"email": false, "whatsapp": true}`))
	require.NoError(t, err)
	assert.Equal(t, Preferences{Version: 1, EmailNotifications: false, SMSNotifications: true, WhatsAppNotifications: true}, p)

	_, err = DecodePreferences([]byte(`{"version": 7}`))
	assert.Error(t, err)
}

func TestUpsertValidates(t *testing.T) {
	repo := NewRepositoryWithDB(nil, nil, logging.Discard())
	err := repo.Upsert(context.Background(), &Profile{ID: uuid.New(), Role: "nurse", FullName: "X"})
	assert.ErrorIs(t, err, ErrUnknownRole)

	err = repo.Upsert(context.Background(), &Profile{Role: RoleDoctor, FullName: "X"})
	assert.Error(t, err)
}

func TestUpsertAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepositoryWithDB(mock, nil, logging.Discard())
	clinicID := uuid.New()
	p := &Profile{ID: uuid.New(), Role: RoleDoctor, ClinicID: &clinicID, FullName: "Dr. Ana Ortiz", Email: "ana@example.com"}

	mock.ExpectExec("INSERT INTO profiles").
		WithArgs(p.ID, "doctor", &clinicID, "Dr. Ana Ortiz", "ana@example.com", "", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, repo.Upsert(context.Background(), p))
	assert.Equal(t, DefaultPreferences(), p.Preferences)

	email := "ana@example.com"
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, role, clinic_id").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "role", "clinic_id", "full_name", "email", "phone", "specialty", "preferences", "created_at", "updated_at"}).
			AddRow(p.ID, "doctor", &clinicID, "Dr. Ana Ortiz", &email, nil, nil, []byte(`{"version":1,"email_notifications":true}`), now, now))

	got, err := repo.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, got.Role)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.True(t, got.Preferences.EmailNotifications)
	assert.False(t, got.Preferences.SMSNotifications)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingProfile(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, role").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = NewRepositoryWithDB(mock, nil, logging.Discard()).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestListDoctorsAndHandler(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID := uuid.New()
	specialty := "dermatology"
	mock.ExpectQuery("SELECT id, full_name, email, specialty").
		WithArgs(clinicID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "full_name", "email", "specialty"}).
			AddRow(uuid.New(), "Dr. Ana Ortiz", nil, &specialty).
			AddRow(uuid.New(), "Dr. Ben Lee", nil, nil))

	repo := NewRepositoryWithDB(mock, nil, logging.Discard())
	r := chi.NewRouter()
	r.Route("/clinics/{clinicID}", NewHandler(repo, logging.Discard()).RegisterRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clinics/"+clinicID.String()+"/doctors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
	assert.Contains(t, rec.Body.String(), "dermatology")
}

func TestListDoctorsDegradesToEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clinicID := uuid.New()
	mock.ExpectQuery("SELECT id, full_name").WithArgs(clinicID).WillReturnError(errors.New("permission denied"))

	got := NewRepositoryWithDB(mock, nil, logging.Discard()).ListDoctors(context.Background(), clinicID)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
