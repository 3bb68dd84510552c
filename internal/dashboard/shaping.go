package dashboard

import (
	"time"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/reminders"
)

// AppointmentsByStatus counts appointments per lifecycle status. Every known
// status is present, zero when absent.
func AppointmentsByStatus(list []appointments.Appointment) map[appointments.Status]int {
	out := map[appointments.Status]int{
		appointments.StatusScheduled:   0,
		appointments.StatusCompleted:   0,
		appointments.StatusCancelled:   0,
		appointments.StatusNoShow:      0,
		appointments.StatusRescheduled: 0,
	}
	for _, a := range list {
		out[a.Status]++
	}
	return out
}

// MonthBucket is one calendar month of appointment activity.
type MonthBucket struct {
	Month     string `json:"month"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Cancelled int    `json:"cancelled"`
}

// MonthlyBuckets returns the last months calendar months ending with the month
// containing now, oldest first, in loc. Appointments outside the range are
// ignored and empty months are kept.
func MonthlyBuckets(list []appointments.Appointment, now time.Time, months int, loc *time.Location) []MonthBucket {
	if months <= 0 {
		return []MonthBucket{}
	}
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -(months - 1), 0)

	out := make([]MonthBucket, months)
	index := make(map[string]int, months)
	for i := range out {
		key := first.AddDate(0, i, 0).Format("2006-01")
		out[i].Month = key
		index[key] = i
	}
	for _, a := range list {
		i, ok := index[a.AppointmentDate.In(loc).Format("2006-01")]
		if !ok {
			continue
		}
		out[i].Total++
		switch a.Status {
		case appointments.StatusCompleted:
			out[i].Completed++
		case appointments.StatusCancelled:
			out[i].Cancelled++
		}
	}
	return out
}

// RemindersByChannel counts reminders per channel and status.
func RemindersByChannel(list []reminders.Reminder) map[reminders.Channel]map[reminders.Status]int {
	out := map[reminders.Channel]map[reminders.Status]int{}
	for ch, group := range reminders.GroupByChannel(list) {
		out[ch] = reminders.CountByStatus(group)
	}
	return out
}

// FollowUpSummary counts follow-ups by how soon they fall due.
type FollowUpSummary struct {
	Overdue   int `json:"overdue"`
	Upcoming  int `json:"upcoming"`
	Scheduled int `json:"scheduled"`
}

// SummarizeFollowUps classifies every appointment carrying a follow-up date.
func SummarizeFollowUps(list []appointments.Appointment, now time.Time) FollowUpSummary {
	var out FollowUpSummary
	for _, a := range list {
		status, ok := a.FollowUpStatus(now)
		if !ok {
			continue
		}
		switch status {
		case appointments.FollowUpOverdue:
			out.Overdue++
		case appointments.FollowUpUpcoming:
			out.Upcoming++
		default:
			out.Scheduled++
		}
	}
	return out
}
