// Package profiles stores role-tagged user accounts and exposes the doctor
// directory used by scheduling.
package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

var ErrUnknownRole = errors.New("profiles: unknown role")

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDoctor, RolePatient, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// CanManageClinic reports whether the role may act on clinic-wide data.
func (r Role) CanManageClinic() bool {
	switch r {
	case RoleDoctor, RoleAdmin:
		return true
	case RolePatient:
		return false
	default:
		return false
	}
}

// PreferencesVersion is the current schema version of the preferences blob.
const PreferencesVersion = 1

// Preferences holds per-channel notification toggles.
type Preferences struct {
	Version               int  `json:"version"`
	EmailNotifications    bool `json:"email_notifications"`
	SMSNotifications      bool `json:"sms_notifications"`
	WhatsAppNotifications bool `json:"whatsapp_notifications"`
}

// DefaultPreferences enables email and SMS.
func DefaultPreferences() Preferences {
	return Preferences{Version: PreferencesVersion, EmailNotifications: true, SMSNotifications: true}
}

// DecodePreferences parses a stored blob. The unversioned shape used
// "email"/"sms" keys.
func DecodePreferences(raw []byte) (Preferences, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultPreferences(), nil
	}
	var envelope struct {
		Version  int   `json:"version"`
		Email    *bool `json:"email"`
		SMS      *bool `json:"sms"`
		WhatsApp *bool `json:"whatsapp"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Preferences{}, fmt.Errorf("profiles: decode preferences: %w", err)
	}
	switch envelope.Version {
	case 0:
		p := DefaultPreferences()
		if envelope.Email != nil {
			p.EmailNotifications = *envelope.Email
		}
		if envelope.SMS != nil {
			p.SMSNotifications = *envelope.SMS
		}
		if envelope.WhatsApp != nil {
			p.WhatsAppNotifications = *envelope.WhatsApp
		}
		return p, nil
	case PreferencesVersion:
		var p Preferences
		if err := json.Unmarshal(raw, &p); err != nil {
			return Preferences{}, fmt.Errorf("profiles: decode preferences: %w", err)
		}
		return p, nil
	default:
		return Preferences{}, fmt.Errorf("profiles: unsupported preferences version %d", envelope.Version)
	}
}

// Profile is an authenticated user's account record. Its id is shared with
// the identity provider's user id.
type Profile struct {
	ID          uuid.UUID   `json:"id"`
	Role        Role        `json:"role"`
	ClinicID    *uuid.UUID  `json:"clinic_id,omitempty"`
	FullName    string      `json:"full_name"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	Specialty   string      `json:"specialty,omitempty"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Doctor is the slim projection used by scheduling screens.
type Doctor struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email,omitempty"`
	Specialty string    `json:"specialty,omitempty"`
}
