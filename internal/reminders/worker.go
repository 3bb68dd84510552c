package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
	"github.com/wolfman30/clinicops/pkg/resilience"
)

// Dispatcher delivers a reminder over its channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, r *Reminder) error
}

// ErrUndeliverable marks a dispatch failure that will not succeed on retry,
// such as a missing phone number or an unsupported channel.
var ErrUndeliverable = errors.New("reminders: undeliverable")

type dueStore interface {
	ClaimDue(ctx context.Context, asOf time.Time, lease time.Duration, limit int) ([]Reminder, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	RecordAttemptFailure(ctx context.Context, id uuid.UUID, reason string, retryAt, at time.Time) error
}

// Worker sends due reminders on a fixed interval.
type Worker struct {
	store       dueStore
	dispatcher  Dispatcher
	publisher   events.Publisher
	metrics     *metrics.ClinicMetrics
	logger      *logging.Logger
	interval    time.Duration
	batchSize   int
	lease       time.Duration
	maxAttempts int
	backoff     resilience.Policy
	now         func() time.Time
}

func NewWorker(store dueStore, dispatcher Dispatcher, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		store:       store,
		dispatcher:  dispatcher,
		publisher:   events.NopPublisher{},
		logger:      logger,
		interval:    time.Minute,
		batchSize:   50,
		lease:       5 * time.Minute,
		maxAttempts: 3,
		backoff: resilience.Policy{
			BaseDelay: time.Minute,
			MaxDelay:  30 * time.Minute,
			Jitter:    0.2,
		},
		now: time.Now,
	}
}

func (w *Worker) WithInterval(interval time.Duration) *Worker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

func (w *Worker) WithBatchSize(size int) *Worker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// WithLease sets how long a claimed batch stays hidden from other workers.
// It should exceed the time one batch takes to dispatch.
func (w *Worker) WithLease(d time.Duration) *Worker {
	if d > 0 {
		w.lease = d
	}
	return w
}

func (w *Worker) WithMaxAttempts(n int) *Worker {
	if n > 0 {
		w.maxAttempts = n
	}
	return w
}

func (w *Worker) WithPublisher(p events.Publisher) *Worker {
	if p != nil {
		w.publisher = p
	}
	return w
}

func (w *Worker) WithMetrics(m *metrics.ClinicMetrics) *Worker {
	w.metrics = m
	return w
}

func (w *Worker) WithClock(now func() time.Time) *Worker {
	if now != nil {
		w.now = now
	}
	return w
}

// Run polls for due reminders until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w.store == nil || w.dispatcher == nil {
		return
	}
	w.logger.Info("reminder worker started", "interval", w.interval, "batch_size", w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("reminder worker: process due", "error", err)
			}
		}
	}
}

// ProcessDue claims one batch of due reminders, dispatches it and returns
// how many were sent.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "reminders.process_due")
	defer span.End()

	now := w.now().UTC()
	due, err := w.store.ClaimDue(ctx, now, w.lease, w.batchSize)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("reminder worker: claim due: %w", err)
	}
	span.SetAttributes(attribute.Int("due", len(due)))
	if len(due) == 0 {
		return 0, nil
	}

	sent := 0
	for i := range due {
		r := &due[i]
		if err := w.processOne(ctx, r, now); err != nil {
			w.logger.Error("reminder worker: failed to process reminder",
				"reminder_id", r.ID, "channel", r.Channel, "error", err)
			continue
		}
		if r.Status == StatusSent {
			sent++
		}
	}
	return sent, nil
}

func (w *Worker) processOne(ctx context.Context, r *Reminder, now time.Time) error {
	if status, err := appointments.ParseStatus(r.AppointmentStatus); err == nil && !status.Active() {
		r.Status = StatusFailed
		w.metrics.ObserveReminderDispatched(string(r.Channel), string(StatusFailed))
		return w.store.MarkFailed(ctx, r.ID, "appointment "+string(status), now)
	}

	sendErr := w.dispatcher.Dispatch(ctx, r)
	if sendErr == nil {
		if err := w.store.MarkSent(ctx, r.ID, now); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		r.Status = StatusSent
		r.Attempts++
		w.metrics.ObserveReminderDispatched(string(r.Channel), string(StatusSent))
		w.publish(ctx, r, now)
		w.logger.Info("reminder sent", "reminder_id", r.ID, "appointment_id", r.AppointmentID, "channel", r.Channel)
		return nil
	}

	attempts := r.Attempts + 1
	if errors.Is(sendErr, ErrUndeliverable) || attempts >= w.maxAttempts {
		r.Status = StatusFailed
		r.Attempts = attempts
		w.metrics.ObserveReminderDispatched(string(r.Channel), string(StatusFailed))
		if err := w.store.MarkFailed(ctx, r.ID, sendErr.Error(), now); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		w.publish(ctx, r, now)
		return sendErr
	}

	retryAt := now.Add(w.backoff.Backoff(r.Attempts))
	w.metrics.ObserveReminderDispatched(string(r.Channel), "retry")
	if err := w.store.RecordAttemptFailure(ctx, r.ID, sendErr.Error(), retryAt, now); err != nil {
		return fmt.Errorf("record attempt failure: %w", err)
	}
	return sendErr
}

func (w *Worker) publish(ctx context.Context, r *Reminder, now time.Time) {
	err := w.publisher.Publish(ctx, r.ClinicID.String(), events.ReminderDispatchedV1{
		ReminderID:    r.ID.String(),
		AppointmentID: r.AppointmentID.String(),
		ClinicID:      r.ClinicID.String(),
		Channel:       string(r.Channel),
		Status:        string(r.Status),
		Attempts:      r.Attempts,
		OccurredAt:    now,
	})
	if err != nil {
		w.logger.Warn("failed to publish reminder event", "reminder_id", r.ID, "error", err)
	}
}
