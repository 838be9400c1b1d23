package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/careloop/patient-email-api/internal/audit"
	"github.com/careloop/patient-email-api/internal/auth"
	"github.com/careloop/patient-email-api/internal/common"
	"github.com/careloop/patient-email-api/internal/config"
	"github.com/careloop/patient-email-api/internal/db"
	"github.com/careloop/patient-email-api/internal/health"
	"github.com/careloop/patient-email-api/internal/hooks"
	"github.com/careloop/patient-email-api/internal/mailer"
	"github.com/careloop/patient-email-api/internal/obs"
	"github.com/careloop/patient-email-api/internal/patient"
	"github.com/careloop/patient-email-api/internal/profile"
	"github.com/careloop/patient-email-api/internal/ratelimit"
	"github.com/careloop/patient-email-api/internal/security"
	"github.com/careloop/patient-email-api/internal/template"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "patient_email")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "patient-email-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "patient-email-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{
		Verifier:     verifier,
		AccessCookie: envOrDefault("AUTH_ACCESS_COOKIE", "careloop_access"),
	}

	patientRepo := patient.NewRepo(pool)
	profileRepo := profile.NewRepo(pool)
	templateRepo := template.NewRepo(pool)
	auditRepo := audit.NewRepo(pool, logger)

	profileSvc := profile.NewService(patientRepo, profileRepo)
	templateSvc := template.NewService(templateRepo)

	renderer, err := mailer.NewRenderer()
	if err != nil {
		logger.Fatal().Err(err).Msg("parse email templates")
	}
	transport := mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort,
		cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPTLSMode, logger)
	mailSvc := mailer.NewService(patientRepo, profileRepo, templateRepo,
		renderer, transport, auditRepo, cfg.OrgDisplayName, logger)

	profileHandler := &profile.Handler{
		Service:        profileSvc,
		PatientPageURL: cfg.PatientPageURL,
		PerPage:        cfg.ListPerPage,
		MaxPerPage:     cfg.MaxPerPage,
	}
	templateHandler := &template.Handler{
		Service:    templateSvc,
		PerPage:    cfg.ListPerPage,
		MaxPerPage: cfg.MaxPerPage,
	}
	mailHandler := mailer.NewHandler(mailSvc, profileSvc, cfg.PatientPageURL)
	auditHandler := &audit.Handler{Audit: auditRepo, MaxLimit: cfg.MaxPerPage}

	hookRegistry := hooks.NewRegistry(logger)
	adapter, err := hooks.NewAdapter(patientRepo, profileRepo)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse hook partials")
	}
	if err := adapter.RegisterAll(hookRegistry); err != nil {
		logger.Fatal().Err(err).Msg("register hook fragments")
	}
	hookHandler := &hooks.Handler{Registry: hookRegistry}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	sendLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.SendKey,
			Window: cfg.SendRateWindow,
			Max:    cfg.SendRateMax,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter unavailable")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      health.Probe{Pool: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(g chi.Router) {
			g.Use(authMiddleware.RequirePermission(auth.PermManagePatientEmails))
			g.Get("/email-profiles", profileHandler.List)
			g.Get("/patients/{patientID}/email", profileHandler.Get)
			g.Post("/patients/{patientID}/email", profileHandler.Edit)

			g.Get("/patients/{patientID}/email/audit", auditHandler.ListByPatient)

			g.Get("/email-templates", templateHandler.List)
			g.Post("/email-templates", templateHandler.Create)
			g.Get("/email-templates/{templateID}", templateHandler.Get)
			g.Put("/email-templates/{templateID}", templateHandler.Update)
		})

		v.Group(func(g chi.Router) {
			g.Use(authMiddleware.RequirePermission(auth.PermSendPatientEmails))
			g.Use(sendLimiter.Middleware)
			g.With(idem.Middleware).Post("/patients/{patientID}/email/actions", mailHandler.QuickAction)
		})
	})

	r.Route("/patients/{patientID}/email/send", func(p chi.Router) {
		p.Use(authMiddleware.RequirePermissionPage(auth.PermSendPatientEmails, func(r *http.Request) string {
			return cfg.PatientPageURL(chi.URLParam(r, "patientID"))
		}))
		p.Get("/", mailHandler.ShowSendForm)
		p.With(sendLimiter.Middleware).Post("/", mailHandler.SubmitSendForm)
	})

	r.With(authMiddleware.RequireAuth).
		Get("/partials/patients/{patientID}/email/{variant}", hookHandler.Partial)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
