package records

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinicops/internal/audit"
	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/logging"
	"github.com/wolfman30/clinicops/pkg/resilience"
)

type auditor interface {
	RecordDetails(ctx context.Context, e audit.Event, details any) error
}

// Repository persists medical records.
type Repository struct {
	db      store.Querier
	runner  *store.Runner
	auditor auditor
	logger  *logging.Logger
	now     func() time.Time
}

// NewRepositoryWithDB builds a repository over a pgx pool or a mock.
func NewRepositoryWithDB(db store.Querier, runner *store.Runner, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{db: db, runner: runner, logger: logger, now: time.Now}
}

func (r *Repository) WithAuditor(a auditor) *Repository {
	r.auditor = a
	return r
}

func (r *Repository) WithClock(now func() time.Time) *Repository {
	if now != nil {
		r.now = now
	}
	return r
}

const recordColumns = `id, clinic_id, patient_id, appointment_id, diagnosis, treatment, medications, notes, created_by, created_at`

// Create inserts a record after checking the patient (and appointment, when
// given) belong to the clinic.
func (r *Repository) Create(ctx context.Context, req CreateRequest) (*MedicalRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rec := &MedicalRecord{
		ID:            uuid.New(),
		ClinicID:      req.ClinicID,
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		Diagnosis:     req.Diagnosis,
		Treatment:     req.Treatment,
		Medications:   req.Medications,
		Notes:         req.Notes,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     r.now().UTC(),
	}

	err := store.Exec(ctx, r.runner, "records.create", func(ctx context.Context) error {
		var patientOK, apptOK bool
		err := r.db.QueryRow(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM patients WHERE id = $1 AND clinic_id = $2),
				$3::uuid IS NULL OR EXISTS (
					SELECT 1 FROM appointments WHERE id = $3 AND patient_id = $1 AND clinic_id = $2)`,
			rec.PatientID, rec.ClinicID, rec.AppointmentID).Scan(&patientOK, &apptOK)
		if err != nil {
			return err
		}
		switch {
		case !patientOK:
			return resilience.Permanent(ErrPatientNotInClinic)
		case !apptOK:
			return resilience.Permanent(ErrAppointmentMismatch)
		}
		_, err = r.db.Exec(ctx, `
			INSERT INTO medical_records (`+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING`,
			rec.ID, rec.ClinicID, rec.PatientID, rec.AppointmentID, rec.Diagnosis, rec.Treatment,
			rec.Medications, rec.Notes, rec.CreatedBy, rec.CreatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("records: create: %w", err)
	}

	if r.auditor != nil {
		evt := audit.Event{
			EventType:     audit.EventRecordCreated,
			ClinicID:      rec.ClinicID,
			AppointmentID: rec.AppointmentID,
			Actor:         rec.CreatedBy,
		}
		details := map[string]any{"record_id": rec.ID, "patient_id": rec.PatientID}
		if err := r.auditor.RecordDetails(ctx, evt, details); err != nil {
			r.logger.Warn("records: audit failed", "record_id", rec.ID, "error", err)
		}
	}
	return rec, nil
}

// Get loads one record scoped to its clinic.
func (r *Repository) Get(ctx context.Context, clinicID, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := store.Call(ctx, r.runner, "records.get", func(ctx context.Context) (*MedicalRecord, error) {
		return scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM medical_records WHERE id = $1 AND clinic_id = $2`, id, clinicID))
	})
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("records: get: %w", err)
	}
	return rec, nil
}

// ListByPatient returns the patient's chart, newest first. Failures degrade to
// an empty list.
func (r *Repository) ListByPatient(ctx context.Context, clinicID, patientID uuid.UUID) []MedicalRecord {
	recs, err := store.Call(ctx, r.runner, "records.list", func(ctx context.Context) ([]MedicalRecord, error) {
		rows, err := r.db.Query(ctx, `
			SELECT `+recordColumns+` FROM medical_records
			WHERE clinic_id = $1 AND patient_id = $2
			ORDER BY created_at DESC`, clinicID, patientID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []MedicalRecord
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *rec)
		}
		return out, rows.Err()
	})
	return store.ListOrEmpty(r.logger, "records.list", recs, err, "clinic_id", clinicID, "patient_id", patientID)
}

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var rec MedicalRecord
	var notes, createdBy *string
	if err := row.Scan(&rec.ID, &rec.ClinicID, &rec.PatientID, &rec.AppointmentID, &rec.Diagnosis, &rec.Treatment,
		&rec.Medications, &notes, &createdBy, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if notes != nil {
		rec.Notes = *notes
	}
	if createdBy != nil {
		rec.CreatedBy = *createdBy
	}
	if rec.Medications == nil {
		rec.Medications = []string{}
	}
	return &rec, nil
}
