package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/appointment"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
)

type RouterConfig struct {
	Service   *appointment.Service
	Directory *directory.Directory
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    zerolog.Logger
	// Metrics and Gatherer are optional; with a Gatherer /metrics is served.
	Metrics  HTTPObserver
	Gatherer prometheus.Gatherer
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}

	// Health endpoints
	health := NewHealthHandler(cfg.Directory, cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/clock", clockHandler(cfg.Service))

	// Doctor endpoints
	r.Get("/doctors", listDoctorsHandler(cfg.Service))
	r.Get("/doctors/search", searchDoctorHandler(cfg.Service))
	r.Get("/doctors/search/availability", weeklyAvailabilityHandler(cfg.Service))
	r.Get("/doctors/{id}/availability", availabilityHandler(cfg.Service))

	// Appointment endpoints
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Post("/appointments/{eventID}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Post("/appointments/{eventID}/reschedule", rescheduleAppointmentHandler(cfg.Service))

	return r
}
