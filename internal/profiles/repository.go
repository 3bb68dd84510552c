package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/logging"
)

var ErrProfileNotFound = errors.New("profiles: not found")

// Repository persists profiles. Profiles are never hard-deleted.
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

// Upsert creates the profile at sign-up completion or refreshes its contact fields.
func (r *Repository) Upsert(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("profiles: upsert: id required")
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return fmt.Errorf("profiles: upsert: %w", err)
	}
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("profiles: upsert: full name required")
	}
	if p.Preferences.Version == 0 {
		p.Preferences = DefaultPreferences()
	}
	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return fmt.Errorf("profiles: marshal preferences: %w", err)
	}
	now := r.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err = store.Exec(ctx, r.runner, "profiles.upsert", func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO profiles (id, role, clinic_id, full_name, email, phone, specialty, preferences, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				full_name = EXCLUDED.full_name,
				email = EXCLUDED.email,
				phone = EXCLUDED.phone,
				specialty = EXCLUDED.specialty,
				updated_at = EXCLUDED.updated_at`,
			p.ID, string(p.Role), p.ClinicID, p.FullName, p.Email, p.Phone, p.Specialty, prefs, p.CreatedAt, p.UpdatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("profiles: upsert: %w", err)
	}
	return nil
}

// Get loads a profile by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := store.Call(ctx, r.runner, "profiles.get", func(ctx context.Context) (*Profile, error) {
		row := r.db.QueryRow(ctx, `
			SELECT id, role, clinic_id, full_name, email, phone, specialty, preferences, created_at, updated_at
			FROM profiles WHERE id = $1`, id)
		var p Profile
		var role string
		var email, phone, specialty *string
		var prefs []byte
		if err := row.Scan(&p.ID, &role, &p.ClinicID, &p.FullName, &email, &phone, &specialty, &prefs, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		parsed, err := ParseRole(role)
		if err != nil {
			return nil, store.Decode("profiles.get", err)
		}
		p.Role = parsed
		p.Email, p.Phone, p.Specialty = deref(email), deref(phone), deref(specialty)
		if p.Preferences, err = DecodePreferences(prefs); err != nil {
			return nil, store.Decode("profiles.get", err)
		}
		return &p, nil
	})
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profiles: get: %w", err)
	}
	return p, nil
}

// UpdatePreferences replaces the notification toggles.
func (r *Repository) UpdatePreferences(ctx context.Context, id uuid.UUID, prefs Preferences) error {
	prefs.Version = PreferencesVersion
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("profiles: marshal preferences: %w", err)
	}
	err = store.Exec(ctx, r.runner, "profiles.update_preferences", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `UPDATE profiles SET preferences = $2, updated_at = $3 WHERE id = $1`, id, raw, r.now().UTC())
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
			return ErrProfileNotFound
		}
		return fmt.Errorf("profiles: update preferences: %w", err)
	}
	return nil
}

// ListDoctors returns the clinic's doctors ordered by name. Failures degrade
// to an empty list.
func (r *Repository) ListDoctors(ctx context.Context, clinicID uuid.UUID) []Doctor {
	doctors, err := store.Call(ctx, r.runner, "profiles.list_doctors", func(ctx context.Context) ([]Doctor, error) {
		rows, err := r.db.Query(ctx, `
			SELECT id, full_name, email, specialty
			FROM profiles
			WHERE clinic_id = $1 AND role = 'doctor'
			ORDER BY full_name`, clinicID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []Doctor
		for rows.Next() {
			var d Doctor
			var email, specialty *string
			if err := rows.Scan(&d.ID, &d.FullName, &email, &specialty); err != nil {
				return nil, err
			}
			d.Email, d.Specialty = deref(email), deref(specialty)
			out = append(out, d)
		}
		return out, rows.Err()
	})
	return store.ListOrEmpty(r.logger, "profiles.list_doctors", doctors, err, "clinic_id", clinicID)
}

// DoctorInClinic reports whether id is a doctor belonging to clinicID.
func (r *Repository) DoctorInClinic(ctx context.Context, q store.Querier, clinicID, id uuid.UUID) (bool, error) {
	if q == nil {
		q = r.db
	}
	var ok bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1 AND clinic_id = $2 AND role = 'doctor')`,
		id, clinicID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("profiles: doctor lookup: %w", store.Classify("profiles.doctor_in_clinic", err))
	}
	return ok, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
