package patients

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// Repository persists patients.
type Repository struct {
	db     store.Querier
	runner *store.Runner
	logger *logging.Logger
	now    func() time.Time
}

// NewRepositoryWithDB builds a repository over a pgx pool or a mock.
func NewRepositoryWithDB(db store.Querier, runner *store.Runner, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{db: db, runner: runner, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	if now != nil {
		r.now = now
	}
	return r
}

const patientColumns = `id, user_id, clinic_id, full_name, email, phone, date_of_birth,
	medical_history, emergency_contact, insurance_info, communication_preferences, created_at, updated_at`

// Create validates and inserts a patient, returning the stored row.
func (r *Repository) Create(ctx context.Context, req CreateRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := r.now().UTC()
	p := &Patient{
		ID:                       uuid.New(),
		UserID:                   req.UserID,
		ClinicID:                 req.ClinicID,
		FullName:                 req.FullName,
		Email:                    req.Email,
		Phone:                    req.Phone,
		DateOfBirth:              req.DateOfBirth,
		CommunicationPreferences: DefaultCommunicationPreferences(),
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if req.MedicalHistory != nil {
		p.MedicalHistory = *req.MedicalHistory
	}
	if req.EmergencyContact != nil {
		p.EmergencyContact = *req.EmergencyContact
	}
	if req.InsuranceInfo != nil {
		p.InsuranceInfo = *req.InsuranceInfo
	}
	if req.CommunicationPreferences != nil {
		p.CommunicationPreferences = *req.CommunicationPreferences
	}
	p.stampVersions()

	blobs, err := encodeBlobs(p)
	if err != nil {
		return nil, err
	}
	err = store.Exec(ctx, r.runner, "patients.create", func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO patients (`+patientColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, p.UserID, p.ClinicID, p.FullName, p.Email, p.Phone, p.DateOfBirth,
			blobs[0], blobs[1], blobs[2], blobs[3], p.CreatedAt, p.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("patients: create: %w", err)
	}
	return p, nil
}

// Get loads a patient scoped to its clinic.
func (r *Repository) Get(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	p, err := store.Call(ctx, r.runner, "patients.get", func(ctx context.Context) (*Patient, error) {
		return scanPatient(r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1 AND clinic_id = $2`, id, clinicID))
	})
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: get: %w", err)
	}
	return p, nil
}

// ListByClinic returns the clinic's patients ordered by name. Failures degrade
// to an empty list.
func (r *Repository) ListByClinic(ctx context.Context, clinicID uuid.UUID) []Patient {
	patients, err := store.Call(ctx, r.runner, "patients.list", func(ctx context.Context) ([]Patient, error) {
		rows, err := r.db.Query(ctx, `SELECT `+patientColumns+` FROM patients WHERE clinic_id = $1 ORDER BY full_name`, clinicID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []Patient
		for rows.Next() {
			p, err := scanPatient(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *p)
		}
		return out, rows.Err()
	})
	return store.ListOrEmpty(r.logger, "patients.list", patients, err, "clinic_id", clinicID)
}

// Update applies req to the patient. The clinic association never changes.
func (r *Repository) Update(ctx context.Context, clinicID, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	p, err := r.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if err := req.Apply(p); err != nil {
		return nil, err
	}
	p.stampVersions()
	p.UpdatedAt = r.now().UTC()
	blobs, err := encodeBlobs(p)
	if err != nil {
		return nil, err
	}
	err = store.Exec(ctx, r.runner, "patients.update", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
			UPDATE patients SET
				full_name = $3, email = $4, phone = $5,
				medical_history = $6, emergency_contact = $7, insurance_info = $8,
				communication_preferences = $9, updated_at = $10
			WHERE id = $1 AND clinic_id = $2`,
			p.ID, p.ClinicID, p.FullName, p.Email, p.Phone,
			blobs[0], blobs[1], blobs[2], blobs[3], p.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: update: %w", err)
	}
	return p, nil
}

// Count returns the number of patients in a clinic.
func (r *Repository) Count(ctx context.Context, clinicID uuid.UUID) (int64, error) {
	n, err := store.Call(ctx, r.runner, "patients.count", func(ctx context.Context) (int64, error) {
		var n int64
		err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE clinic_id = $1`, clinicID).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("patients: count: %w", err)
	}
	return n, nil
}

// InClinic reports whether the patient belongs to the clinic. q may be a
// transaction; nil uses the repository's pool.
func (r *Repository) InClinic(ctx context.Context, q store.Querier, clinicID, id uuid.UUID) (bool, error) {
	if q == nil {
		q = r.db
	}
	var ok bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1 AND clinic_id = $2)`, id, clinicID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("patients: membership: %w", store.Classify("patients.in_clinic", err))
	}
	return ok, nil
}

func encodeBlobs(p *Patient) ([4][]byte, error) {
	var out [4][]byte
	for i, v := range []any{p.MedicalHistory, p.EmergencyContact, p.InsuranceInfo, p.CommunicationPreferences} {
		data, err := encodeBlob(v)
		if err != nil {
			return out, err
		}
		out[i] = data
	}
	return out, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email, phone *string
	var history, contact, insurance, prefs []byte
	if err := row.Scan(&p.ID, &p.UserID, &p.ClinicID, &p.FullName, &email, &phone, &p.DateOfBirth,
		&history, &contact, &insurance, &prefs, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if email != nil {
		p.Email = *email
	}
	if phone != nil {
		p.Phone = *phone
	}
	p.CommunicationPreferences = DefaultCommunicationPreferences()
	for _, blob := range []struct {
		raw []byte
		dst any
	}{
		{history, &p.MedicalHistory},
		{contact, &p.EmergencyContact},
		{insurance, &p.InsuranceInfo},
		{prefs, &p.CommunicationPreferences},
	} {
		if err := decodeBlob(blob.raw, blob.dst); err != nil {
			return nil, store.Decode("patients.scan", err)
		}
	}
	p.stampVersions()
	return &p, nil
}
