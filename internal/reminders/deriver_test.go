package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/clinic"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type fakeLookup struct {
	appt *appointments.Appointment
}

func (f fakeLookup) Lookup(_ context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	if f.appt == nil || f.appt.ID != id {
		return nil, appointments.ErrAppointmentNotFound
	}
	return f.appt, nil
}

type memStore struct {
	mu      sync.Mutex
	rows    []Reminder
	failFor map[Channel]error
	retimed map[uuid.UUID]time.Time
}

func (m *memStore) Insert(_ context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[r.Channel]; err != nil {
		return err
	}
	m.rows = append(m.rows, *r)
	return nil
}

func (m *memStore) ListByAppointment(_ context.Context, id uuid.UUID) ([]Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reminder
	for _, r := range m.rows {
		if r.AppointmentID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Retime(_ context.Context, id uuid.UUID, at time.Time, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retimed == nil {
		m.retimed = map[uuid.UUID]time.Time{}
	}
	m.retimed[id] = at
	return nil
}

func testAppointment() *appointments.Appointment {
	return &appointments.Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		DoctorID:        uuid.New(),
		ClinicID:        uuid.New(),
		AppointmentDate: time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Status:          appointments.StatusScheduled,
		PatientName:     "Jo March",
	}
}

func TestDeriveDefaultChannelsAt24HoursBefore(t *testing.T) {
	appt := testAppointment()
	st := &memStore{}
	d := NewDeriver(fakeLookup{appt}, st, nil, logging.Discard())

	created, err := d.Derive(context.Background(), appt.ID, nil)
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Len(t, st.rows, 2)

	channels := map[Channel]bool{}
	for _, r := range st.rows {
		channels[r.Channel] = true
		assert.Equal(t, appt.AppointmentDate.Add(-24*time.Hour), r.ScheduledFor)
		assert.Equal(t, StatusPending, r.Status)
		assert.Equal(t, appt.ID, r.AppointmentID)
		assert.Equal(t, appt.PatientID, r.PatientID)
		assert.NotEmpty(t, r.MessageContent)
	}
	assert.Equal(t, map[Channel]bool{ChannelSMS: true, ChannelEmail: true}, channels)
}

func TestDeriveUsesClinicLeadTime(t *testing.T) {
	appt := testAppointment()
	st := &memStore{}
	settings := clinic.DefaultSettings()
	settings.ReminderLeadMinutes = 120
	d := NewDeriver(fakeLookup{appt}, st, clinic.StaticSettings(settings), logging.Discard())

	created, err := d.Derive(context.Background(), appt.ID, []string{"whatsapp"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, appt.AppointmentDate.Add(-2*time.Hour), created[0].ScheduledFor)
}

type failingSettings struct{}

func (failingSettings) Settings(context.Context, uuid.UUID) (clinic.Settings, error) {
	return clinic.Settings{}, errors.New("redis down")
}

func TestDeriveFallsBackToDefaultLead(t *testing.T) {
	appt := testAppointment()
	d := NewDeriver(fakeLookup{appt}, &memStore{}, failingSettings{}, logging.Discard()).
		WithDefaultLead(6 * time.Hour)

	created, err := d.Derive(context.Background(), appt.ID, []string{"sms"})
	require.NoError(t, err)
	assert.Equal(t, appt.AppointmentDate.Add(-6*time.Hour), created[0].ScheduledFor)
}

func TestDerivePartialFailureKeepsWrittenRows(t *testing.T) {
	appt := testAppointment()
	st := &memStore{failFor: map[Channel]error{ChannelEmail: errors.New("constraint")}}
	d := NewDeriver(fakeLookup{appt}, st, nil, logging.Discard())

	created, err := d.Derive(context.Background(), appt.ID, []string{"sms", "email"})
	require.Error(t, err)

	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []Channel{ChannelSMS}, partial.Created)
	assert.Equal(t, []Channel{ChannelEmail}, partial.Failed)
	assert.Contains(t, err.Error(), "constraint")
	require.Len(t, created, 1)
	require.Len(t, st.rows, 1)
	assert.Equal(t, ChannelSMS, st.rows[0].Channel)
}

func TestDeriveRejectsUnknownChannel(t *testing.T) {
	appt := testAppointment()
	st := &memStore{}
	d := NewDeriver(fakeLookup{appt}, st, nil, logging.Discard())

	_, err := d.Derive(context.Background(), appt.ID, []string{"pager"})
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.Empty(t, st.rows)
}

func TestDeriveMissingAppointment(t *testing.T) {
	d := NewDeriver(fakeLookup{}, &memStore{}, nil, logging.Discard())
	_, err := d.Derive(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, appointments.ErrAppointmentNotFound)
}

func TestDeriveInClinicChecksTenant(t *testing.T) {
	appt := testAppointment()
	d := NewDeriver(fakeLookup{appt}, &memStore{}, nil, logging.Discard())
	_, err := d.DeriveInClinic(context.Background(), uuid.New(), appt.ID, nil)
	assert.ErrorIs(t, err, appointments.ErrAppointmentNotFound)
}

func TestRetimeForAppointmentMovesPendingOnly(t *testing.T) {
	appt := testAppointment()
	pending := Reminder{ID: uuid.New(), AppointmentID: appt.ID, Channel: ChannelSMS, Status: StatusPending}
	sent := Reminder{ID: uuid.New(), AppointmentID: appt.ID, Channel: ChannelEmail, Status: StatusSent}
	st := &memStore{rows: []Reminder{pending, sent}}
	d := NewDeriver(fakeLookup{appt}, st, nil, logging.Discard())

	moved := *appt
	moved.AppointmentDate = appt.AppointmentDate.Add(48 * time.Hour)
	require.NoError(t, d.RetimeForAppointment(context.Background(), &moved))
	assert.Equal(t, map[uuid.UUID]time.Time{pending.ID: moved.AppointmentDate.Add(-24 * time.Hour)}, st.retimed)
}
