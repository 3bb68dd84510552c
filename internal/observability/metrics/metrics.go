package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClinicMetrics exposes counters/histograms for data-access calls and the
// scheduling and reminder flows.
type ClinicMetrics struct {
	callAttempts        *prometheus.CounterVec
	callLatency         *prometheus.HistogramVec
	appointmentsTotal   *prometheus.CounterVec
	remindersCreated    *prometheus.CounterVec
	remindersDispatched *prometheus.CounterVec
}

func NewClinicMetrics(reg prometheus.Registerer) *ClinicMetrics {
	m := &ClinicMetrics{
		callAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "store",
			Name:      "call_attempts_total",
			Help:      "Data-access call attempts by operation and outcome",
		}, []string{"op", "outcome"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicops",
			Subsystem: "store",
			Name:      "call_duration_seconds",
			Help:      "End-to-end duration of data-access calls including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		appointmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment lifecycle transitions by resulting status",
		}, []string{"status"}),
		remindersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "reminders",
			Name:      "created_total",
			Help:      "Reminder rows derived from appointments",
		}, []string{"channel", "outcome"}),
		remindersDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "reminders",
			Name:      "dispatched_total",
			Help:      "Reminder dispatch attempts by channel and resulting status",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callAttempts, m.callLatency, m.appointmentsTotal, m.remindersCreated, m.remindersDispatched)
	return m
}

// ObserveAttempt records one attempt of a wrapped call.
func (m *ClinicMetrics) ObserveAttempt(op, outcome string) {
	if m == nil {
		return
	}
	m.callAttempts.WithLabelValues(op, outcome).Inc()
}

func (m *ClinicMetrics) ObserveCallDuration(op string, seconds float64) {
	if m == nil {
		return
	}
	m.callLatency.WithLabelValues(op).Observe(seconds)
}

func (m *ClinicMetrics) ObserveAppointment(status string) {
	if m == nil {
		return
	}
	m.appointmentsTotal.WithLabelValues(status).Inc()
}

func (m *ClinicMetrics) ObserveReminderCreated(channel string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.remindersCreated.WithLabelValues(channel, outcome).Inc()
}

func (m *ClinicMetrics) ObserveReminderDispatched(channel, status string) {
	if m == nil {
		return
	}
	m.remindersDispatched.WithLabelValues(channel, status).Inc()
}
