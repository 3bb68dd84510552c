// Package bootstrap wires configuration into the running components shared
// by the API server and the reminder worker.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicops/internal/api/router"
	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/audit"
	"github.com/wolfman30/clinicops/internal/clinic"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/dashboard"
	"github.com/wolfman30/clinicops/internal/events"
	httpmiddleware "github.com/wolfman30/clinicops/internal/http/middleware"
	"github.com/wolfman30/clinicops/internal/notify"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/internal/patients"
	"github.com/wolfman30/clinicops/internal/profiles"
	"github.com/wolfman30/clinicops/internal/records"
	"github.com/wolfman30/clinicops/internal/reminders"
	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// App holds every wired component. Fields are safe to use after Build returns.
type App struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	DB       store.DB
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.ClinicMetrics

	Clinics      *clinic.Repository
	Settings     *clinic.SettingsCache
	Profiles     *profiles.Repository
	Patients     *patients.Repository
	Appointments *appointments.Repository
	Reminders    *reminders.Repository
	Records      *records.Repository
	Audit        *audit.Service
	Publisher    events.Publisher

	Scheduler *appointments.Scheduler
	Deriver   *reminders.Deriver
	Dashboard *dashboard.Aggregator

	closers []func()
}

// Build opens the backing services and wires the domain components. Without
// DATABASE_URL every data call fails with a configuration error rather than
// the process refusing to start.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	db, closeDB, err := store.Open(ctx, store.Options{URL: cfg.DatabaseURL, MaxConns: int32(cfg.DatabaseMaxConns)})
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, closeDB)
	if _, ok := db.(store.Unconfigured); ok {
		logger.Warn("DATABASE_URL not set; data access is disabled")
	}

	var auditDB *sql.DB
	if pool, ok := db.(*pgxpool.Pool); ok {
		auditDB = stdlib.OpenDBFromPool(pool)
		a.closers = append(a.closers, func() { _ = auditDB.Close() })
	}
	a.Audit = audit.NewService(auditDB)

	a.Redis = BuildRedisClient(ctx, cfg, logger, true)
	if a.Redis != nil {
		client := a.Redis
		a.closers = append(a.closers, func() { _ = client.Close() })
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewClinicMetrics(a.Registry)

	a.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		a.Publisher = kp
		a.closers = append(a.closers, func() { _ = kp.Close() })
		logger.Info("kafka publisher enabled", "topic", cfg.KafkaTopic, "brokers", len(cfg.KafkaBrokers))
	}

	runner := store.NewRunner(cfg.CallPolicy(), a.Metrics, logger)
	a.Clinics = clinic.NewRepositoryWithDB(db, runner, logger)
	a.Settings = clinic.NewSettingsCache(a.Clinics, a.Redis, cfg.SettingsTTL, logger)
	a.Profiles = profiles.NewRepositoryWithDB(db, runner, logger)
	a.Patients = patients.NewRepositoryWithDB(db, runner, logger)
	a.Appointments = appointments.NewRepositoryWithDB(db, runner, logger)
	a.Reminders = reminders.NewRepositoryWithDB(db, runner, logger)
	a.Records = records.NewRepositoryWithDB(db, runner, logger).WithAuditor(a.Audit)

	a.Deriver = reminders.NewDeriver(a.Appointments, a.Reminders, a.Settings, logger).
		WithDefaultLead(cfg.ReminderLeadTime).
		WithClinics(a.Clinics).
		WithAuditor(a.Audit).
		WithMetrics(a.Metrics)
	a.Scheduler = appointments.NewScheduler(db, a.Appointments, a.Patients, a.Profiles, runner, logger).
		WithSettings(a.Settings).
		WithReminders(a.Deriver).
		WithAuditor(a.Audit).
		WithPublisher(a.Publisher).
		WithMetrics(a.Metrics).
		WithWorkingHours(cfg.EnforceWorkingHours)
	a.Dashboard = dashboard.NewAggregator(a.Patients, a.Appointments, a.Reminders, logger).
		WithSettings(a.Settings)

	return a, nil
}

// Handler builds the HTTP surface. The rate limiter's sweeper stops with ctx.
func (a *App) Handler(ctx context.Context) http.Handler {
	logger := a.Logger
	var limiter *httpmiddleware.RateLimiter
	if a.Config.RateLimitPerSecond > 0 && a.Config.RateLimitBurst > 0 {
		limiter = httpmiddleware.NewRateLimiter(ctx, a.Config.RateLimitPerSecond, a.Config.RateLimitBurst)
	}
	return router.New(&router.Config{
		Logger:             logger,
		StaffAuthSecret:    a.Config.StaffJWTSecret,
		CORSAllowedOrigins: a.Config.CORSAllowedOrigins,
		MetricsHandler:     promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}),
		RateLimiter:        limiter,
		HealthChecks:       a.healthChecks(),
		Modules: []router.RouteRegistrar{
			clinic.NewHandler(a.Clinics, a.Settings, logger),
			profiles.NewHandler(a.Profiles, logger),
			patients.NewHandler(a.Patients, logger),
			appointments.NewHandler(a.Appointments, a.Scheduler, logger),
			reminders.NewHandler(a.Reminders, a.Deriver, logger),
			records.NewHandler(a.Records, logger),
			audit.NewHandler(a.Audit, logger),
			dashboard.NewHandler(a.Dashboard, a.Appointments, a.Reminders, a.Registry, logger).WithSettings(a.Settings),
		},
	})
}

// Worker builds the reminder dispatcher loop.
func (a *App) Worker(ctx context.Context) (*reminders.Worker, error) {
	email, err := BuildEmailSender(ctx, a.Config, a.Logger)
	if err != nil {
		return nil, err
	}
	sms := BuildSMSSender(a.Config, a.Logger)
	if sms == nil {
		a.Logger.Warn("twilio not configured; sms and whatsapp reminders will fail as undeliverable")
	}
	return reminders.NewWorker(a.Reminders, notify.NewChannelDispatcher(email, sms, a.Logger), a.Logger).
		WithInterval(a.Config.ReminderPollInterval).
		WithBatchSize(a.Config.ReminderBatchSize).
		WithMaxAttempts(a.Config.ReminderMaxAttempts).
		WithPublisher(a.Publisher).
		WithMetrics(a.Metrics), nil
}

func (a *App) healthChecks() map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{
		"postgres": func(ctx context.Context) error {
			pinger, ok := a.DB.(interface{ Ping(context.Context) error })
			if !ok {
				return fmt.Errorf("not configured")
			}
			return pinger.Ping(ctx)
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
