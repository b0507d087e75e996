package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-booking-engine/internal/api"
	"github.com/hackgods/clinic-booking-engine/internal/appointment"
	"github.com/hackgods/clinic-booking-engine/internal/calendar"
	"github.com/hackgods/clinic-booking-engine/internal/config"
	"github.com/hackgods/clinic-booking-engine/internal/db"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/internal/metrics"
	"github.com/hackgods/clinic-booking-engine/internal/notify"
	redisclient "github.com/hackgods/clinic-booking-engine/internal/redis"
	"github.com/hackgods/clinic-booking-engine/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "dev")
		boot.Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(cfg.LogLevel, cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("timezone", cfg.ClinicTimezone).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir, err := directory.Load(cfg.DoctorsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DoctorsPath).Msg("load doctor directory")
	}
	log.Info().Int("doctors", dir.Len()).Msg("doctor directory loaded")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewBookingMetrics(reg)

	gw, err := calendar.NewGoogleGateway(rootCtx, cfg.GoogleCredentialsFile, cfg.ClinicTimezone)
	if err != nil {
		log.Fatal().Err(err).Msg("calendar gateway")
	}

	deps := appointment.Deps{
		Directory: dir,
		Calendar:  calendar.Instrument(gw, m),
		Metrics:   m,
		Logger:    log,
	}

	// Postgres is optional: it only carries the audit log.
	var pgPool *pgxpool.Pool
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		cancelPg()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		deps.Audit = appointment.NewPgAudit(pgPool)
		log.Info().Msg("connected to Postgres, audit log enabled")
	} else {
		log.Warn().Msg("POSTGRES_DSN not set, audit log disabled")
	}

	// Redis is optional: it only carries idempotency claims.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		deps.Claims = redisclient.NewRedisClaimer(rdb, cfg.IdempotencyTTL)
		log.Info().Dur("ttl", cfg.IdempotencyTTL).Msg("connected to Redis, idempotency claims enabled")
	} else {
		log.Warn().Msg("REDIS_ADDR not set, retried bookings are not deduplicated")
	}

	sender, err := notify.NewSenderFromConfig(rootCtx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.EmailProvider).Msg("email provider unavailable, notifications are logged only")
		sender = notify.NewStubEmailSender(log)
	}
	deps.Notifier = notify.NewNotifier(sender, notify.Config{
		ClinicName: cfg.ClinicName,
		FromEmail:  notify.FromAddress(cfg),
		Timezone:   cfg.ClinicTimezone,
	}, log)

	svc := appointment.NewService(deps, cfg)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:   svc,
			Directory: dir,
			PgPool:    pgPool,
			Redis:     rdb,
			Logger:    log,
			Metrics:   m,
			Gatherer:  reg,
			Env:       cfg.Env,
			Version:   version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// the slowest booking must still get its response out
		WriteTimeout: cfg.BookingBudget() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
			stop()
			os.Exit(1)
		}
	}

	log.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
