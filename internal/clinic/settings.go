// Package clinic owns the tenant record and its versioned settings blob.
package clinic

import (
	"encoding/json"
	"fmt"
	"time"
)

// SettingsVersion is the current schema version of the settings blob.
const SettingsVersion = 1

const (
	DefaultAppointmentDuration = 30 * time.Minute
	DefaultReminderLeadTime    = 24 * time.Hour
	DefaultTimezone            = "UTC"
)

// DayHours represents the opening hours for a single day.
// Nil means the clinic is closed that day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "17:00" in 24-hour format
}

// WorkingHours maps weekdays to their hours.
type WorkingHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// Settings is the clinic-level scheduling configuration.
type Settings struct {
	Version                    int          `json:"version"`
	AppointmentDurationMinutes int          `json:"appointment_duration_minutes"`
	ReminderLeadMinutes        int          `json:"reminder_lead_minutes"`
	Timezone                   string       `json:"timezone"`
	WorkingHours               WorkingHours `json:"working_hours"`
}

// DefaultSettings returns the settings applied to a clinic with no overrides.
func DefaultSettings() Settings {
	weekday := &DayHours{Open: "09:00", Close: "17:00"}
	return Settings{
		Version:                    SettingsVersion,
		AppointmentDurationMinutes: int(DefaultAppointmentDuration / time.Minute),
		ReminderLeadMinutes:        int(DefaultReminderLeadTime / time.Minute),
		Timezone:                   DefaultTimezone,
		WorkingHours: WorkingHours{
			Monday:    weekday,
			Tuesday:   weekday,
			Wednesday: weekday,
			Thursday:  weekday,
			Friday:    weekday,
		},
	}
}

// Normalize fills zero values with defaults and stamps the current version.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if s.AppointmentDurationMinutes <= 0 {
		s.AppointmentDurationMinutes = def.AppointmentDurationMinutes
	}
	if s.ReminderLeadMinutes <= 0 {
		s.ReminderLeadMinutes = def.ReminderLeadMinutes
	}
	if s.Timezone == "" {
		s.Timezone = def.Timezone
	} else if _, err := time.LoadLocation(s.Timezone); err != nil {
		s.Timezone = def.Timezone
	}
	s.Version = SettingsVersion
	return s
}

// AppointmentDuration is the default slot length for new appointments.
func (s Settings) AppointmentDuration() time.Duration {
	if s.AppointmentDurationMinutes <= 0 {
		return DefaultAppointmentDuration
	}
	return time.Duration(s.AppointmentDurationMinutes) * time.Minute
}

// ReminderLeadTime is how long before an appointment reminders are due.
func (s Settings) ReminderLeadTime() time.Duration {
	if s.ReminderLeadMinutes <= 0 {
		return DefaultReminderLeadTime
	}
	return time.Duration(s.ReminderLeadMinutes) * time.Minute
}

// Location resolves the clinic timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DayWindow returns the [start, end) bounds of the clinic-local day containing t.
func (s Settings) DayWindow(t time.Time) (time.Time, time.Time) {
	local := t.In(s.Location())
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return start, start.AddDate(0, 0, 1)
}

// ForDay returns the hours for a given weekday.
func (w WorkingHours) ForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return w.Sunday
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return nil
	}
}

// HasAny returns true if at least one day has hours configured.
func (w WorkingHours) HasAny() bool {
	return w.Sunday != nil || w.Monday != nil || w.Tuesday != nil ||
		w.Wednesday != nil || w.Thursday != nil || w.Friday != nil || w.Saturday != nil
}

// IsOpenAt reports whether [t, t+d) falls inside the clinic's hours for that day.
// A clinic with no hours configured is treated as appointment-only and always open.
func (s Settings) IsOpenAt(t time.Time, d time.Duration) bool {
	if !s.WorkingHours.HasAny() {
		return true
	}
	local := t.In(s.Location())
	hours := s.WorkingHours.ForDay(local.Weekday())
	if hours == nil {
		return false
	}
	open, err := clockMinutes(hours.Open)
	if err != nil {
		return false
	}
	closing, err := clockMinutes(hours.Close)
	if err != nil {
		return false
	}
	start := local.Hour()*60 + local.Minute()
	end := start + int(d/time.Minute)
	return start >= open && end <= closing
}

// OpenWindow returns the clinic-local opening and closing instants for the day
// containing t. ok is false when the clinic is closed that day. A clinic with no
// hours configured is open for the whole day.
func (s Settings) OpenWindow(t time.Time) (open, closing time.Time, ok bool) {
	start, end := s.DayWindow(t)
	if !s.WorkingHours.HasAny() {
		return start, end, true
	}
	hours := s.WorkingHours.ForDay(start.Weekday())
	if hours == nil {
		return time.Time{}, time.Time{}, false
	}
	o, err := clockMinutes(hours.Open)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	c, err := clockMinutes(hours.Close)
	if err != nil || c <= o {
		return time.Time{}, time.Time{}, false
	}
	return start.Add(time.Duration(o) * time.Minute), start.Add(time.Duration(c) * time.Minute), true
}

func clockMinutes(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// legacySettings is the unversioned shape written before the schema was pinned.
type legacySettings struct {
	AppointmentDuration int `json:"appointment_duration"`
	ReminderAdvanceTime int `json:"reminder_advance_time"` // hours
	WorkingHours        struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"working_hours"`
	Timezone string `json:"timezone"`
}

// DecodeSettings parses a stored settings blob, migrating older shapes to the
// current version. An empty blob yields the defaults.
func DecodeSettings(raw []byte) (Settings, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultSettings(), nil
	}
	var envelope struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Settings{}, fmt.Errorf("clinic: decode settings: %w", err)
	}

	switch envelope.Version {
	case 0:
		var legacy legacySettings
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return Settings{}, fmt.Errorf("clinic: decode legacy settings: %w", err)
		}
		return migrateLegacy(legacy), nil
	case SettingsVersion:
		var s Settings
		if err := json.Unmarshal(raw, &s); err != nil {
			return Settings{}, fmt.Errorf("clinic: decode settings: %w", err)
		}
		return s.Normalize(), nil
	default:
		return Settings{}, fmt.Errorf("clinic: unsupported settings version %d", envelope.Version)
	}
}

func migrateLegacy(legacy legacySettings) Settings {
	s := DefaultSettings()
	if legacy.AppointmentDuration > 0 {
		s.AppointmentDurationMinutes = legacy.AppointmentDuration
	}
	if legacy.ReminderAdvanceTime > 0 {
		s.ReminderLeadMinutes = legacy.ReminderAdvanceTime * 60
	}
	if legacy.Timezone != "" {
		s.Timezone = legacy.Timezone
	}
	if legacy.WorkingHours.Start != "" && legacy.WorkingHours.End != "" {
		day := &DayHours{Open: legacy.WorkingHours.Start, Close: legacy.WorkingHours.End}
		s.WorkingHours = WorkingHours{Monday: day, Tuesday: day, Wednesday: day, Thursday: day, Friday: day}
	}
	return s.Normalize()
}

// EncodeSettings serializes settings at the current version.
func EncodeSettings(s Settings) ([]byte, error) {
	data, err := json.Marshal(s.Normalize())
	if err != nil {
		return nil, fmt.Errorf("clinic: encode settings: %w", err)
	}
	return data, nil
}
