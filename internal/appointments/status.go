package appointments

import (
	"errors"
	"fmt"
	"time"
)

// Status is the closed set of appointment states.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

var (
	ErrUnknownStatus     = errors.New("appointments: unknown status")
	ErrInvalidTransition = errors.New("appointments: invalid status transition")
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// Active reports whether the appointment still occupies its doctor's time.
func (s Status) Active() bool {
	switch s {
	case StatusScheduled, StatusRescheduled:
		return true
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return false
	default:
		return false
	}
}

// CanTransition reports whether an appointment may move from one status to another.
// Completed, cancelled and no-show are terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusScheduled, StatusRescheduled:
		switch to {
		case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
			return true
		case StatusScheduled:
			return false
		}
		return false
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return false
	default:
		return false
	}
}

// FollowUpStatus classifies a follow-up date relative to now.
type FollowUpStatus string

const (
	FollowUpOverdue   FollowUpStatus = "overdue"
	FollowUpUpcoming  FollowUpStatus = "upcoming"
	FollowUpScheduled FollowUpStatus = "scheduled"
)

// FollowUpWindow is how far ahead a follow-up counts as upcoming.
const FollowUpWindow = 3 * 24 * time.Hour

// ClassifyFollowUp maps a follow-up instant to its status at now.
// A follow-up exactly FollowUpWindow away is scheduled, not upcoming.
func ClassifyFollowUp(followUp, now time.Time) FollowUpStatus {
	switch {
	case followUp.Before(now):
		return FollowUpOverdue
	case followUp.Before(now.Add(FollowUpWindow)):
		return FollowUpUpcoming
	default:
		return FollowUpScheduled
	}
}
