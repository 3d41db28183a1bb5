// Package app assembles the services, dispatcher and HTTP router from
// configuration. Storage and broker are opened by the caller.
package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/careflow-api/config"
	"github.com/jwalitptl/careflow-api/internal/email"
	authhandler "github.com/jwalitptl/careflow-api/internal/handler/auth"
	followuphandler "github.com/jwalitptl/careflow-api/internal/handler/followup"
	"github.com/jwalitptl/careflow-api/internal/handler/health"
	"github.com/jwalitptl/careflow-api/internal/handler/live"
	patienthandler "github.com/jwalitptl/careflow-api/internal/handler/patient"
	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/realtime"
	"github.com/jwalitptl/careflow-api/internal/repository"
	"github.com/jwalitptl/careflow-api/internal/router"
	authsvc "github.com/jwalitptl/careflow-api/internal/service/auth"
	"github.com/jwalitptl/careflow-api/internal/service/event"
	"github.com/jwalitptl/careflow-api/internal/service/followup"
	"github.com/jwalitptl/careflow-api/internal/service/notification"
	"github.com/jwalitptl/careflow-api/internal/service/patient"
	"github.com/jwalitptl/careflow-api/pkg/auth"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/messaging"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
	"github.com/jwalitptl/careflow-api/pkg/security"
	"github.com/jwalitptl/careflow-api/pkg/worker"
)

const metricsNamespace = "careflow"

// Deps are the externally opened resources.
type Deps struct {
	Store  repository.Store
	Broker messaging.Broker
	// Readiness lists extra dependencies for /health/ready.
	Readiness map[string]health.Pinger
	// Registry and Metrics are created when nil.
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	// Now overrides the clock in tests.
	Now func() time.Time
}

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Store      repository.Store
	Broker     messaging.Broker
	Hub        *realtime.Hub
	Events     *event.EventService
	Auth       *authsvc.Service
	Patients   *patient.Service
	FollowUps  *followup.Service
	Dispatcher *notification.Service
	Router     *router.Router
}

// NewMetrics builds a registry carrying the Go and process collectors plus
// the application metrics.
func NewMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, metrics.NewMetrics(metricsNamespace, reg)
}

func New(cfg *config.Config, log *logger.Logger, deps Deps) (*App, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	reg, m := deps.Registry, deps.Metrics
	if reg == nil || m == nil {
		reg, m = NewMetrics()
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  m,
		Store:    deps.Store,
		Broker:   deps.Broker,
		Events:   event.NewEventService(now),
	}

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, now)
	authService, err := authsvc.NewService(cfg.Auth.Roster, jwtSvc, security.NewBcryptHasher(0), nil, authsvc.Options{
		StaffTTL:         cfg.JWT.Expiry,
		PatientTTL:       cfg.JWT.PatientExpiry,
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutDuration:  cfg.Auth.LockoutDuration,
	}, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to build auth service: %w", err)
	}
	a.Auth = authService

	a.Patients = patient.NewService(deps.Store, a.Events, authService, log, m, cfg.Auth.CodeCacheTTL, patient.WithClock(now))
	authService.SetPatientLookup(a.Patients)
	a.FollowUps = followup.NewService(deps.Store, a.Events, log, now)

	a.Hub = realtime.NewHub(deps.Broker, cfg.Redis.Channel, log, m)
	a.Dispatcher = notification.NewService(deps.Broker, cfg.Redis.Channel, newNotifier(cfg, log, m), newEmail(cfg, log), log, m)

	authMW := middleware.NewAuthMiddleware(authService, cfg.Auth.ServiceKey)
	authH := authhandler.NewHandler(authService)

	checks := map[string]health.Pinger{"database": deps.Store}
	for name, p := range deps.Readiness {
		checks[name] = p
	}

	r, err := router.NewRouter(router.RouterConfig{
		Mode:             cfg.Server.Mode,
		RequestTimeout:   cfg.Server.RequestTimeout,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSOrigins:      cfg.CORS.AllowedOrigins,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		HSTS:             cfg.IsProduction(),
	}, authMW, router.Handlers{
		Health:   health.NewHandler(checks),
		Auth:     authH,
		Staff:    router.RoutesFunc(authH.RegisterStaffRoutes),
		Patients: patienthandler.NewHandler(a.Patients, authMW),
		FollowUp: followuphandler.NewHandler(a.FollowUps, authMW),
		Live:     live.NewHandler(a.Hub, a.Patients, a.FollowUps, cfg.Realtime.KeepAlive, log, m),
	}, m, reg)
	if err != nil {
		return nil, err
	}
	r.Setup()
	a.Router = r
	return a, nil
}

func newNotifier(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) notification.Notifier {
	if !cfg.Webhook.Enabled || cfg.Webhook.URL == "" {
		return nil
	}
	return notification.NewWebhookNotifier(cfg.Webhook, log, m)
}

func newEmail(cfg *config.Config, log *logger.Logger) email.Service {
	if !cfg.SMTP.Enabled {
		return email.NewLogService(log)
	}
	return email.NewSMTPService(cfg.SMTP)
}

// OutboxProcessor builds the worker that drains the outbox through the
// dispatcher.
func (a *App) OutboxProcessor() *worker.OutboxProcessor {
	return worker.NewOutboxProcessor(a.Store.Outbox(), a.Dispatcher, a.Config.Outbox.ToWorkerConfig(), a.Logger, a.Metrics)
}

// OutboxCleanup builds the processed-event retention job.
func (a *App) OutboxCleanup() *worker.OutboxCleanup {
	return worker.NewOutboxCleanup(a.Store.Outbox(), a.Config.Outbox.RetentionPeriod, a.Config.Outbox.CleanupInterval, a.Logger)
}
