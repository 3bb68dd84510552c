package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/logging"
)

var (
	ErrAppointmentNotFound = errors.New("appointments: not found")
	// ErrConcurrentUpdate means the row changed status between read and write.
	ErrConcurrentUpdate = errors.New("appointments: concurrent update")
)

// Repository persists appointments.
type Repository struct {
	db     store.Querier
	runner *store.Runner
	logger *logging.Logger
}

// NewRepositoryWithDB builds a repository over a pgx pool or a mock.
func NewRepositoryWithDB(db store.Querier, runner *store.Runner, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{db: db, runner: runner, logger: logger}
}

const joinedSelect = `
	SELECT a.id, a.patient_id, a.doctor_id, a.clinic_id, a.appointment_date, a.duration_minutes,
	       a.treatment_type, a.status, a.follow_up_date, a.notes, a.created_at, a.updated_at,
	       COALESCE(p.full_name, ''), COALESCE(d.full_name, '')
	FROM appointments a
	LEFT JOIN patients p ON p.id = a.patient_id
	LEFT JOIN profiles d ON d.id = a.doctor_id`

// Filter narrows ListByClinic.
type Filter struct {
	From     *time.Time
	To       *time.Time
	DoctorID *uuid.UUID
	Status   *Status
	Limit    int
}

func (r *Repository) q(q store.Querier) store.Querier {
	if q == nil {
		return r.db
	}
	return q
}

// Insert writes a new appointment row. q may be a transaction.
func (r *Repository) Insert(ctx context.Context, q store.Querier, a *Appointment) error {
	_, err := r.q(q).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, clinic_id, appointment_date, duration_minutes,
			treatment_type, status, follow_up_date, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.PatientID, a.DoctorID, a.ClinicID, a.AppointmentDate, a.DurationMinutes,
		a.TreatmentType, string(a.Status), a.FollowUpDate, a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", store.Classify("appointments.insert", err))
	}
	return nil
}

// Get loads an appointment with joined names, scoped to its clinic.
func (r *Repository) Get(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	a, err := store.Call(ctx, r.runner, "appointments.get", func(ctx context.Context) (*Appointment, error) {
		return scanAppointment(r.db.QueryRow(ctx, joinedSelect+` WHERE a.id = $1 AND a.clinic_id = $2`, id, clinicID))
	})
	return a, notFound(err, "get")
}

// Lookup loads an appointment by id alone. Used by background derivation
// where the caller holds no clinic context.
func (r *Repository) Lookup(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := store.Call(ctx, r.runner, "appointments.lookup", func(ctx context.Context) (*Appointment, error) {
		return scanAppointment(r.db.QueryRow(ctx, joinedSelect+` WHERE a.id = $1`, id))
	})
	return a, notFound(err, "lookup")
}

// GetForUpdate locks the row inside a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx store.Querier, clinicID, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(tx.QueryRow(ctx, joinedSelect+` WHERE a.id = $1 AND a.clinic_id = $2 FOR UPDATE OF a`, id, clinicID))
	return a, notFound(store.Classify("appointments.get_for_update", err), "get for update")
}

// ListByClinic returns appointments with joined patient and doctor names,
// ordered by date. Failures degrade to an empty list.
func (r *Repository) ListByClinic(ctx context.Context, clinicID uuid.UUID, f Filter) []Appointment {
	query := joinedSelect + ` WHERE a.clinic_id = $1`
	args := []any{clinicID}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND a.appointment_date >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND a.appointment_date < $%d", len(args))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		query += fmt.Sprintf(" AND a.doctor_id = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		query += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	query += ` ORDER BY a.appointment_date`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	list, err := r.list(ctx, "appointments.list", query, args...)
	return store.ListOrEmpty(r.logger, "appointments.list", list, err, "clinic_id", clinicID)
}

// ListByPatient returns a patient's appointments, newest first.
func (r *Repository) ListByPatient(ctx context.Context, clinicID, patientID uuid.UUID) []Appointment {
	list, err := r.list(ctx, "appointments.list_by_patient",
		joinedSelect+` WHERE a.clinic_id = $1 AND a.patient_id = $2 ORDER BY a.appointment_date DESC`, clinicID, patientID)
	return store.ListOrEmpty(r.logger, "appointments.list_by_patient", list, err, "clinic_id", clinicID)
}

// ListFollowUps returns appointments that carry a follow-up date.
func (r *Repository) ListFollowUps(ctx context.Context, clinicID uuid.UUID) []Appointment {
	list, err := r.list(ctx, "appointments.list_follow_ups",
		joinedSelect+` WHERE a.clinic_id = $1 AND a.follow_up_date IS NOT NULL AND a.status <> 'cancelled' ORDER BY a.follow_up_date`, clinicID)
	return store.ListOrEmpty(r.logger, "appointments.list_follow_ups", list, err, "clinic_id", clinicID)
}

func (r *Repository) list(ctx context.Context, op, query string, args ...any) ([]Appointment, error) {
	return store.Call(ctx, r.runner, op, func(ctx context.Context) ([]Appointment, error) {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []Appointment
		for rows.Next() {
			a, err := scanAppointment(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *a)
		}
		return out, rows.Err()
	})
}

// LockDoctor serializes scheduling for one doctor until the transaction ends.
func (r *Repository) LockDoctor(ctx context.Context, tx store.Querier, doctorID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "doctor:"+doctorID.String()); err != nil {
		return fmt.Errorf("appointments: lock doctor: %w", store.Classify("appointments.lock_doctor", err))
	}
	return nil
}

// Overlapping reports whether the doctor has an active appointment intersecting
// [start, end), ignoring excludeID.
func (r *Repository) Overlapping(ctx context.Context, q store.Querier, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q(q).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND status IN ('scheduled', 'rescheduled')
			  AND appointment_date < $3
			  AND appointment_date + make_interval(mins => duration_minutes) > $2
			  AND id <> $4
		)`, doctorID, start, end, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("appointments: overlap check: %w", store.Classify("appointments.overlapping", err))
	}
	return exists, nil
}

// Busy returns the doctor's active intervals intersecting [from, to).
func (r *Repository) Busy(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	return store.Call(ctx, r.runner, "appointments.busy", func(ctx context.Context) ([]Slot, error) {
		rows, err := r.db.Query(ctx, `
			SELECT appointment_date, duration_minutes
			FROM appointments
			WHERE doctor_id = $1
			  AND status IN ('scheduled', 'rescheduled')
			  AND appointment_date < $3
			  AND appointment_date + make_interval(mins => duration_minutes) > $2
			ORDER BY appointment_date`, doctorID, from, to)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []Slot
		for rows.Next() {
			var start time.Time
			var mins int
			if err := rows.Scan(&start, &mins); err != nil {
				return nil, err
			}
			out = append(out, Slot{Start: start, End: start.Add(time.Duration(mins) * time.Minute)})
		}
		return out, rows.Err()
	})
}

// UpdateStatus moves an appointment from one status to another. The update only
// applies if the row is still in the expected status.
func (r *Repository) UpdateStatus(ctx context.Context, q store.Querier, id uuid.UUID, from, to Status, at time.Time) error {
	tag, err := r.q(q).Exec(ctx, `
		UPDATE appointments SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("appointments: update status: %w", store.Classify("appointments.update_status", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// UpdateSchedule moves an appointment to a new instant.
func (r *Repository) UpdateSchedule(ctx context.Context, q store.Querier, a *Appointment, from Status) error {
	tag, err := r.q(q).Exec(ctx, `
		UPDATE appointments SET appointment_date = $3, duration_minutes = $4, status = $5, updated_at = $6
		WHERE id = $1 AND status = $2`,
		a.ID, string(from), a.AppointmentDate, a.DurationMinutes, string(a.Status), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appointments: update schedule: %w", store.Classify("appointments.update_schedule", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// SetFollowUp sets or clears the follow-up date.
func (r *Repository) SetFollowUp(ctx context.Context, clinicID, id uuid.UUID, followUp *time.Time, at time.Time) error {
	err := store.Exec(ctx, r.runner, "appointments.set_follow_up", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
			UPDATE appointments SET follow_up_date = $3, updated_at = $4
			WHERE id = $1 AND clinic_id = $2`, id, clinicID, followUp, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	return notFound(err, "set follow-up")
}

// CountBetween counts a clinic's non-cancelled appointments in [start, end).
func (r *Repository) CountBetween(ctx context.Context, clinicID uuid.UUID, start, end time.Time) (int64, error) {
	return r.count(ctx, "appointments.count_between", `
		SELECT COUNT(*) FROM appointments
		WHERE clinic_id = $1 AND appointment_date >= $2 AND appointment_date < $3 AND status <> 'cancelled'`,
		clinicID, start, end)
}

// CountPendingFollowUps counts follow-ups that have not yet been booked.
func (r *Repository) CountPendingFollowUps(ctx context.Context, clinicID uuid.UUID) (int64, error) {
	return r.count(ctx, "appointments.count_follow_ups", `
		SELECT COUNT(*) FROM appointments
		WHERE clinic_id = $1 AND follow_up_date IS NOT NULL AND status <> 'cancelled'`, clinicID)
}

func (r *Repository) count(ctx context.Context, op, query string, args ...any) (int64, error) {
	n, err := store.Call(ctx, r.runner, op, func(ctx context.Context) (int64, error) {
		var n int64
		err := r.db.QueryRow(ctx, query, args...).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func notFound(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case store.IsNotFound(err):
		return ErrAppointmentNotFound
	default:
		return fmt.Errorf("appointments: %s: %w", op, err)
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	var treatment, notes *string
	if err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ClinicID, &a.AppointmentDate, &a.DurationMinutes,
		&treatment, &status, &a.FollowUpDate, &notes, &a.CreatedAt, &a.UpdatedAt,
		&a.PatientName, &a.DoctorName); err != nil {
		return nil, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return nil, store.Decode("appointments.scan", err)
	}
	a.Status = parsed
	if treatment != nil {
		a.TreatmentType = *treatment
	}
	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}
