// Package records stores clinical notes written against a patient, optionally
// tied to the appointment they came out of.
package records

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRecord       = errors.New("records: invalid record")
	ErrRecordNotFound      = errors.New("records: record not found")
	ErrPatientNotInClinic  = errors.New("records: patient does not belong to clinic")
	ErrAppointmentMismatch = errors.New("records: appointment does not belong to patient")
)

// MedicalRecord is one entry in a patient's chart. Records are append-only.
type MedicalRecord struct {
	ID            uuid.UUID  `json:"id"`
	ClinicID      uuid.UUID  `json:"clinic_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Diagnosis     string     `json:"diagnosis"`
	Treatment     string     `json:"treatment"`
	Medications   []string   `json:"medications"`
	Notes         string     `json:"notes,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CreateRequest is the input for a new record.
type CreateRequest struct {
	ClinicID      uuid.UUID  `json:"-"`
	PatientID     uuid.UUID  `json:"-"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Diagnosis     string     `json:"diagnosis"`
	Treatment     string     `json:"treatment"`
	Medications   []string   `json:"medications"`
	Notes         string     `json:"notes"`
	CreatedBy     string     `json:"-"`
}

// Validate normalizes the request. A record needs a diagnosis or a treatment.
func (r *CreateRequest) Validate() error {
	if r.ClinicID == uuid.Nil {
		return fmt.Errorf("%w: clinic id required", ErrInvalidRecord)
	}
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient id required", ErrInvalidRecord)
	}
	if r.AppointmentID != nil && *r.AppointmentID == uuid.Nil {
		r.AppointmentID = nil
	}
	r.Diagnosis = strings.TrimSpace(r.Diagnosis)
	r.Treatment = strings.TrimSpace(r.Treatment)
	r.Notes = strings.TrimSpace(r.Notes)
	if r.Diagnosis == "" && r.Treatment == "" {
		return fmt.Errorf("%w: diagnosis or treatment required", ErrInvalidRecord)
	}
	meds := make([]string, 0, len(r.Medications))
	for _, m := range r.Medications {
		if m = strings.TrimSpace(m); m != "" {
			meds = append(meds, m)
		}
	}
	r.Medications = meds
	return nil
}
