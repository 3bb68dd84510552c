package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// ErrClinicNotFound is returned when no clinic matches the id.
var ErrClinicNotFound = errors.New("clinic: not found")

// Clinic is the tenant boundary owning patients, doctors and appointments.
type Clinic struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository persists clinics.
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

const clinicColumns = `id, name, address, phone, email, settings, created_at, updated_at`

// Create inserts a clinic, normalizing its settings.
func (r *Repository) Create(ctx context.Context, c *Clinic) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("clinic: create: name required")
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Settings == (Settings{}) {
		c.Settings = DefaultSettings()
	}
	c.Settings = c.Settings.Normalize()
	settings, err := EncodeSettings(c.Settings)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	err = store.Exec(ctx, r.runner, "clinics.create", func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO clinics (`+clinicColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.Name, c.Address, c.Phone, c.Email, settings, c.CreatedAt, c.UpdatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("clinic: create: %w", err)
	}
	return nil
}

// Get loads a clinic by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, err := store.Call(ctx, r.runner, "clinics.get", func(ctx context.Context) (*Clinic, error) {
		return scanClinic(r.db.QueryRow(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE id = $1`, id))
	})
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrClinicNotFound
		}
		return nil, fmt.Errorf("clinic: get: %w", err)
	}
	return c, nil
}

// List returns every clinic ordered by name. Failures degrade to an empty list.
func (r *Repository) List(ctx context.Context) []Clinic {
	clinics, err := store.Call(ctx, r.runner, "clinics.list", func(ctx context.Context) ([]Clinic, error) {
		rows, err := r.db.Query(ctx, `SELECT `+clinicColumns+` FROM clinics ORDER BY name`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []Clinic
		for rows.Next() {
			c, err := scanClinic(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *c)
		}
		return out, rows.Err()
	})
	return store.ListOrEmpty(r.logger, "clinics.list", clinics, err)
}

// Settings loads just the settings blob for a clinic.
func (r *Repository) Settings(ctx context.Context, id uuid.UUID) (Settings, error) {
	raw, err := store.Call(ctx, r.runner, "clinics.settings", func(ctx context.Context) ([]byte, error) {
		var raw []byte
		err := r.db.QueryRow(ctx, `SELECT settings FROM clinics WHERE id = $1`, id).Scan(&raw)
		return raw, err
	})
	if err != nil {
		if store.IsNotFound(err) {
			return Settings{}, ErrClinicNotFound
		}
		return Settings{}, fmt.Errorf("clinic: settings: %w", err)
	}
	s, err := DecodeSettings(raw)
	if err != nil {
		return Settings{}, store.Decode("clinics.settings", err)
	}
	return s, nil
}

// UpdateSettings replaces the settings blob.
func (r *Repository) UpdateSettings(ctx context.Context, id uuid.UUID, s Settings) (Settings, error) {
	s = s.Normalize()
	raw, err := EncodeSettings(s)
	if err != nil {
		return Settings{}, err
	}
	err = store.Exec(ctx, r.runner, "clinics.update_settings", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `UPDATE clinics SET settings = $2, updated_at = $3 WHERE id = $1`, id, raw, r.now().UTC())
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
			return Settings{}, ErrClinicNotFound
		}
		return Settings{}, fmt.Errorf("clinic: update settings: %w", err)
	}
	return s, nil
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	var address, phone, email *string
	var raw []byte
	if err := row.Scan(&c.ID, &c.Name, &address, &phone, &email, &raw, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Address = deref(address)
	c.Phone = deref(phone)
	c.Email = deref(email)
	settings, err := DecodeSettings(raw)
	if err != nil {
		return nil, store.Decode("clinics.scan", err)
	}
	c.Settings = settings
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
