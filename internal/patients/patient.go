// Package patients stores clinic-scoped patient records. A patient belongs to
// exactly one clinic for its whole lifetime.
package patients

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound = errors.New("patients: not found")
	ErrInvalidPatient  = errors.New("patients: invalid request")
)

// BlobVersion is the schema version shared by the structured patient blobs.
const BlobVersion = 1

// MedicalHistory is the structured history captured at intake.
type MedicalHistory struct {
	Version    int      `json:"version"`
	Conditions []string `json:"conditions,omitempty"`
	Allergies  []string `json:"allergies,omitempty"`
	Surgeries  []string `json:"surgeries,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// EmergencyContact is who to call on the patient's behalf.
type EmergencyContact struct {
	Version      int    `json:"version"`
	Name         string `json:"name,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// InsuranceInfo holds coverage details.
type InsuranceInfo struct {
	Version      int    `json:"version"`
	Provider     string `json:"provider,omitempty"`
	PolicyNumber string `json:"policy_number,omitempty"`
	GroupNumber  string `json:"group_number,omitempty"`
}

// CommunicationPreferences holds per-channel consent.
type CommunicationPreferences struct {
	Version  int  `json:"version"`
	SMS      bool `json:"sms"`
	Email    bool `json:"email"`
	WhatsApp bool `json:"whatsapp"`
	Call     bool `json:"call"`
}

// DefaultCommunicationPreferences opts patients into SMS and email.
func DefaultCommunicationPreferences() CommunicationPreferences {
	return CommunicationPreferences{Version: BlobVersion, SMS: true, Email: true}
}

// Patient is a clinic-scoped patient record.
type Patient struct {
	ID                       uuid.UUID                `json:"id"`
	UserID                   *uuid.UUID               `json:"user_id,omitempty"`
	ClinicID                 uuid.UUID                `json:"clinic_id"`
	FullName                 string                   `json:"full_name"`
	Email                    string                   `json:"email,omitempty"`
	Phone                    string                   `json:"phone,omitempty"`
	DateOfBirth              *time.Time               `json:"date_of_birth,omitempty"`
	MedicalHistory           MedicalHistory           `json:"medical_history"`
	EmergencyContact         EmergencyContact         `json:"emergency_contact"`
	InsuranceInfo            InsuranceInfo            `json:"insurance_info"`
	CommunicationPreferences CommunicationPreferences `json:"communication_preferences"`
	CreatedAt                time.Time                `json:"created_at"`
	UpdatedAt                time.Time                `json:"updated_at"`
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	ClinicID                 uuid.UUID                 `json:"-"`
	UserID                   *uuid.UUID                `json:"user_id,omitempty"`
	FullName                 string                    `json:"full_name"`
	Email                    string                    `json:"email,omitempty"`
	Phone                    string                    `json:"phone,omitempty"`
	DateOfBirth              *time.Time                `json:"date_of_birth,omitempty"`
	MedicalHistory           *MedicalHistory           `json:"medical_history,omitempty"`
	EmergencyContact         *EmergencyContact         `json:"emergency_contact,omitempty"`
	InsuranceInfo            *InsuranceInfo            `json:"insurance_info,omitempty"`
	CommunicationPreferences *CommunicationPreferences `json:"communication_preferences,omitempty"`
}

// Validate checks the request and trims its text fields.
func (r *CreateRequest) Validate() error {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	if r.ClinicID == uuid.Nil {
		return fmt.Errorf("%w: clinic_id required", ErrInvalidPatient)
	}
	if r.FullName == "" {
		return fmt.Errorf("%w: full_name required", ErrInvalidPatient)
	}
	if r.Email == "" && r.Phone == "" {
		return fmt.Errorf("%w: email or phone required", ErrInvalidPatient)
	}
	if r.DateOfBirth != nil && r.DateOfBirth.After(time.Now()) {
		return fmt.Errorf("%w: date_of_birth in the future", ErrInvalidPatient)
	}
	return nil
}

// UpdateRequest carries mutable fields. The clinic association is not among them.
type UpdateRequest struct {
	FullName                 *string                   `json:"full_name,omitempty"`
	Email                    *string                   `json:"email,omitempty"`
	Phone                    *string                   `json:"phone,omitempty"`
	MedicalHistory           *MedicalHistory           `json:"medical_history,omitempty"`
	EmergencyContact         *EmergencyContact         `json:"emergency_contact,omitempty"`
	InsuranceInfo            *InsuranceInfo            `json:"insurance_info,omitempty"`
	CommunicationPreferences *CommunicationPreferences `json:"communication_preferences,omitempty"`
}

// Apply copies set fields onto p.
func (u UpdateRequest) Apply(p *Patient) error {
	if u.FullName != nil {
		name := strings.TrimSpace(*u.FullName)
		if name == "" {
			return fmt.Errorf("%w: full_name cannot be blank", ErrInvalidPatient)
		}
		p.FullName = name
	}
	if u.Email != nil {
		p.Email = strings.TrimSpace(*u.Email)
	}
	if u.Phone != nil {
		p.Phone = strings.TrimSpace(*u.Phone)
	}
	if p.Email == "" && p.Phone == "" {
		return fmt.Errorf("%w: email or phone required", ErrInvalidPatient)
	}
	if u.MedicalHistory != nil {
		p.MedicalHistory = *u.MedicalHistory
	}
	if u.EmergencyContact != nil {
		p.EmergencyContact = *u.EmergencyContact
	}
	if u.InsuranceInfo != nil {
		p.InsuranceInfo = *u.InsuranceInfo
	}
	if u.CommunicationPreferences != nil {
		p.CommunicationPreferences = *u.CommunicationPreferences
	}
	return nil
}

// Blob helpers: every stored blob carries the current version; unversioned
// rows decode as version 0 and are stamped on read.

func encodeBlob(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("patients: encode blob: %w", err)
	}
	return data, nil
}

func decodeBlob(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var envelope struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("patients: decode blob: %w", err)
	}
	if envelope.Version > BlobVersion {
		return fmt.Errorf("patients: unsupported blob version %d", envelope.Version)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("patients: decode blob: %w", err)
	}
	return nil
}

func (p *Patient) stampVersions() {
	p.MedicalHistory.Version = BlobVersion
	p.EmergencyContact.Version = BlobVersion
	p.InsuranceInfo.Version = BlobVersion
	p.CommunicationPreferences.Version = BlobVersion
}
