// Package appointments schedules visits, enforces the appointment lifecycle and
// rejects double-booked doctors.
package appointments

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDuration is used when neither the request nor clinic settings specify one.
const DefaultDuration = 30 * time.Minute

// Appointment is a scheduled visit. PatientName and DoctorName are populated on
// joined reads.
type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	ClinicID        uuid.UUID  `json:"clinic_id"`
	AppointmentDate time.Time  `json:"appointment_date"`
	DurationMinutes int        `json:"duration_minutes"`
	TreatmentType   string     `json:"treatment_type,omitempty"`
	Status          Status     `json:"status"`
	FollowUpDate    *time.Time `json:"follow_up_date,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	PatientName     string     `json:"patient_name,omitempty"`
	DoctorName      string     `json:"doctor_name,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Duration returns the appointment length.
func (a Appointment) Duration() time.Duration {
	if a.DurationMinutes <= 0 {
		return DefaultDuration
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

// End returns the instant the appointment finishes.
func (a Appointment) End() time.Time {
	return a.AppointmentDate.Add(a.Duration())
}

// FollowUpStatus classifies the follow-up date, if any.
func (a Appointment) FollowUpStatus(now time.Time) (FollowUpStatus, bool) {
	if a.FollowUpDate == nil {
		return "", false
	}
	return ClassifyFollowUp(*a.FollowUpDate, now), true
}

// OverlapsTimeRange checks if two half-open time ranges overlap.
// Adjacent ranges (end1 == start2) and zero-length ranges do not overlap.
func OverlapsTimeRange(start1, end1, start2, end2 time.Time) bool {
	if start1.Equal(end1) || start2.Equal(end2) {
		return false
	}
	return start1.Before(end2) && start2.Before(end1)
}

// Slot is a bookable interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
