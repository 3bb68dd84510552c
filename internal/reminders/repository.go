package reminders

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

// ErrNotPending means the reminder already left the pending state.
var ErrNotPending = errors.New("reminders: reminder is not pending")

// Repository persists reminders.
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

const selectColumns = `
	SELECT r.id, r.appointment_id, r.patient_id, r.clinic_id, r.channel, r.scheduled_for, r.sent_at,
	       r.status, r.message_content, COALESCE(r.failure_reason, ''), r.attempts, r.created_at, r.updated_at,
	       COALESCE(p.full_name, ''), COALESCE(p.email, ''), COALESCE(p.phone, ''),
	       COALESCE(c.name, ''), a.appointment_date, a.status`

const joins = `
	JOIN appointments a ON a.id = r.appointment_id
	LEFT JOIN patients p ON p.id = r.patient_id
	LEFT JOIN clinics c ON c.id = r.clinic_id`

const joinedSelect = selectColumns + `
	FROM reminders r` + joins

// Insert writes one reminder row.
func (r *Repository) Insert(ctx context.Context, rem *Reminder) error {
	err := store.Exec(ctx, r.runner, "reminders.insert", func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO reminders (id, appointment_id, patient_id, clinic_id, channel, scheduled_for,
				status, message_content, attempts, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`,
			rem.ID, rem.AppointmentID, rem.PatientID, rem.ClinicID, string(rem.Channel), rem.ScheduledFor,
			string(rem.Status), rem.MessageContent, rem.Attempts, rem.CreatedAt, rem.UpdatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("reminders: insert %s: %w", rem.Channel, err)
	}
	return nil
}

// ListFilter narrows ListByClinic.
type ListFilter struct {
	Status  *Status
	Channel *Channel
	Limit   int
}

// ListByClinic returns reminders with joined patient and appointment fields,
// soonest first. Failures degrade to an empty list.
func (r *Repository) ListByClinic(ctx context.Context, clinicID uuid.UUID, f ListFilter) []Reminder {
	query := joinedSelect + ` WHERE r.clinic_id = $1`
	args := []any{clinicID}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		query += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	if f.Channel != nil {
		args = append(args, string(*f.Channel))
		query += fmt.Sprintf(" AND r.channel = $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY r.scheduled_for ASC LIMIT $%d", len(args))

	list, err := r.list(ctx, "reminders.list", query, args...)
	return store.ListOrEmpty(r.logger, "reminders.list", list, err, "clinic_id", clinicID)
}

// ListByAppointment returns every reminder for an appointment.
func (r *Repository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Reminder, error) {
	list, err := r.list(ctx, "reminders.list_by_appointment",
		joinedSelect+` WHERE r.appointment_id = $1 ORDER BY r.channel`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("reminders: list by appointment: %w", err)
	}
	return list, nil
}

// ClaimDue leases up to limit pending reminders scheduled at or before asOf
// and returns them. Claimed rows move to asOf+lease, so concurrent workers
// skip them and a crashed worker's batch becomes due again once the lease
// runs out.
func (r *Repository) ClaimDue(ctx context.Context, asOf time.Time, lease time.Duration, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	list, err := r.list(ctx, "reminders.claim_due", `
		WITH claimed AS (
			UPDATE reminders SET scheduled_for = $2, updated_at = $1
			WHERE id IN (
				SELECT id FROM reminders
				WHERE status = 'pending' AND scheduled_for <= $1
				ORDER BY scheduled_for ASC
				LIMIT $3
				FOR UPDATE SKIP LOCKED)
			RETURNING *)`+selectColumns+`
		FROM claimed r`+joins+`
		ORDER BY r.scheduled_for ASC, r.id`,
		asOf, asOf.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: claim due: %w", err)
	}
	return list, nil
}

func (r *Repository) list(ctx context.Context, op, query string, args ...any) ([]Reminder, error) {
	return store.Call(ctx, r.runner, op, func(ctx context.Context) ([]Reminder, error) {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []Reminder
		for rows.Next() {
			rem, err := scanReminder(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *rem)
		}
		return out, rows.Err()
	})
}

// MarkSent transitions a reminder from pending to sent.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.transition(ctx, "reminders.mark_sent", `
		UPDATE reminders SET status = 'sent', sent_at = $2, attempts = attempts + 1, failure_reason = NULL, updated_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
}

// MarkFailed gives up on a pending reminder.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.transition(ctx, "reminders.mark_failed", `
		UPDATE reminders SET status = 'failed', failure_reason = $3, attempts = attempts + 1, updated_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at, reason)
}

// RecordAttemptFailure keeps a reminder pending and pushes it to retryAt.
func (r *Repository) RecordAttemptFailure(ctx context.Context, id uuid.UUID, reason string, retryAt, at time.Time) error {
	return r.transition(ctx, "reminders.record_attempt_failure", `
		UPDATE reminders SET failure_reason = $3, attempts = attempts + 1, scheduled_for = $4, updated_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at, reason, retryAt)
}

// Retime moves a pending reminder and replaces its message.
func (r *Repository) Retime(ctx context.Context, id uuid.UUID, scheduledFor time.Time, content string, at time.Time) error {
	return r.transition(ctx, "reminders.retime", `
		UPDATE reminders SET scheduled_for = $3, message_content = $4, updated_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at, scheduledFor, content)
}

func (r *Repository) transition(ctx context.Context, op, query string, args ...any) error {
	err := store.Exec(ctx, r.runner, op, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if store.IsNotFound(err) {
		return fmt.Errorf("%s: %w", op, ErrNotPending)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountPending counts a clinic's reminders that have not been sent.
func (r *Repository) CountPending(ctx context.Context, clinicID uuid.UUID) (int64, error) {
	n, err := store.Call(ctx, r.runner, "reminders.count_pending", func(ctx context.Context) (int64, error) {
		var n int64
		err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reminders WHERE clinic_id = $1 AND status = 'pending'`, clinicID).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("reminders: count pending: %w", err)
	}
	return n, nil
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var rem Reminder
	var channel, status string
	if err := row.Scan(&rem.ID, &rem.AppointmentID, &rem.PatientID, &rem.ClinicID, &channel, &rem.ScheduledFor, &rem.SentAt,
		&status, &rem.MessageContent, &rem.FailureReason, &rem.Attempts, &rem.CreatedAt, &rem.UpdatedAt,
		&rem.PatientName, &rem.PatientEmail, &rem.PatientPhone, &rem.ClinicName, &rem.AppointmentDate, &rem.AppointmentStatus); err != nil {
		return nil, err
	}
	c, err := ParseChannel(channel)
	if err != nil {
		return nil, store.Decode("reminders.scan", err)
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, store.Decode("reminders.scan", err)
	}
	rem.Channel = c
	rem.Status = st
	return &rem, nil
}
