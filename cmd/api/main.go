package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medantara/backend-klinik/internal/analytics"
	"github.com/medantara/backend-klinik/internal/app"
	"github.com/medantara/backend-klinik/internal/appointment"
	"github.com/medantara/backend-klinik/internal/audit"
	"github.com/medantara/backend-klinik/internal/auth"
	"github.com/medantara/backend-klinik/internal/billing"
	"github.com/medantara/backend-klinik/internal/catalog"
	"github.com/medantara/backend-klinik/internal/common"
	"github.com/medantara/backend-klinik/internal/config"
	"github.com/medantara/backend-klinik/internal/customer"
	"github.com/medantara/backend-klinik/internal/doctor"
	"github.com/medantara/backend-klinik/internal/expense"
	"github.com/medantara/backend-klinik/internal/health"
	"github.com/medantara/backend-klinik/internal/invoice"
	"github.com/medantara/backend-klinik/internal/obs"
	"github.com/medantara/backend-klinik/internal/ratelimit"
	"github.com/medantara/backend-klinik/internal/reminder"
	"github.com/medantara/backend-klinik/internal/security"
	"github.com/medantara/backend-klinik/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "klinik")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "klinik-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := app.NewPostgres(ctx, cfg.DatabaseURL, "klinik-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise database")
	}
	defer pool.Close()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, metricsEnabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskOpt, err := app.TaskRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise task queue")
	}
	taskClient := asynq.NewClient(taskOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()
	taskInspector := asynq.NewInspector(taskOpt)

	validate := common.NewValidator()
	mailer := common.NopEmailSender{}

	authService, err := auth.NewService(auth.Config{
		Queries:         &auth.PGStore{Pool: pool},
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		ResetTokenTTL:   cfg.PasswordResetTTL,
		Mailer:          mailer,
		ResetBaseURL:    cfg.PublicBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{
		Service:           authService,
		RefreshCookieName: cfg.RefreshCookieName,
		CookieDomain:      cfg.RefreshCookieDomain,
		CookieSecure:      cfg.RefreshCookieSecure,
		CookieSameSite:    cfg.RefreshCookieSameSite,
	}
	authMiddleware := auth.Middleware{Service: authService}

	loginGuard := ratelimit.Guard{
		Window: ratelimit.SlidingWindow{Client: redisClient},
		Scope:  "auth",
		Max:    10,
		Per:    time.Minute,
		OnError: func(err error) {
			logger.Error().Err(err).Msg("login throttle")
		},
	}

	customerHandler := &customer.Handler{Service: &customer.Service{Pool: pool}, Validate: validate}
	doctorHandler := &doctor.Handler{Service: &doctor.Service{Pool: pool}, Validate: validate}
	catalogHandler := &catalog.Handler{
		Service:  &catalog.Service{Pool: pool, Cache: catalog.NewCache(redisClient, cfg.CatalogCacheTTL)},
		Validate: validate,
	}
	appointmentHandler := &appointment.Handler{Service: &appointment.Service{Pool: pool}, Validate: validate}
	expenseHandler := &expense.Handler{Service: &expense.Service{Pool: pool}, Validate: validate}

	invoiceService := &invoice.Service{
		Store:  &invoice.PGStore{Pool: pool},
		Policy: billing.CoinPolicy{CapRatio: cfg.CoinCapRatio, CoinValue: cfg.CoinValue},
		Reminders: &reminder.Scheduler{
			Client:    taskClient,
			Inspector: taskInspector,
			Lead:      cfg.ReminderLead,
		},
		OnReminderError: func(err error) {
			logger.Error().Err(err).Msg("schedule payment reminder")
		},
	}
	invoiceHandler := &invoice.Handler{
		Service:  invoiceService,
		Validate: validate,
		Renderer: &invoice.PDFRenderer{ClinicName: cfg.ClinicName, CurrencyCode: cfg.CurrencyCode},
	}

	analyticsHandler := &analytics.Handler{
		Service: &analytics.Service{Q: &analytics.PGStore{Pool: pool}, R: redisClient, TTL: cfg.AnalyticsCacheTTL},
	}
	userHandler := &user.Handler{Service: &user.Service{Pool: pool}}

	auditStore := &audit.PGStore{Pool: pool}
	auditRecorder := audit.HTTPRecorder{
		Service: audit.Service{Store: auditStore, Enabled: envBool("AUDIT_ENABLED", true)},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("record audit entry")
		},
	}
	auditHandler := audit.Handler{Store: auditStore}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

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
	r.Use(security.Headers{
		Enable:     envBool("SECURE_HEADERS_ENABLED", true),
		EnableHSTS: envBool("SECURE_HSTS_ENABLED", false),
	}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_MAX_BODY_BYTES", 1<<20))}.Middleware)
	if cfg.APIRateLimitEnabled {
		limit, err := app.NewRateLimiter(redisClient, cfg.RateLimit)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise rate limiter")
		}
		r.Use(limit)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{Probes: []health.Probe{
		{
			Name:    "db",
			Timeout: envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
			Check:   func(ctx context.Context) error { return pool.Ping(ctx) },
		},
		{
			Name:    "redis",
			Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
			Check:   func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.With(loginGuard.Middleware).Post("/register", authHandler.Register)
			a.With(loginGuard.Middleware).Post("/login", authHandler.Login)
			a.Post("/refresh", authHandler.Refresh)
			a.Post("/logout", authHandler.Logout)
			a.With(loginGuard.Middleware).Post("/password/forgot", authHandler.ForgotPassword)
			a.Post("/password/reset", authHandler.ResetPassword)

			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Get("/me", authHandler.Me)
			})
		})

		v.Group(func(staff chi.Router) {
			staff.Use(authMiddleware.RequireAuth)
			staff.Use(auditRecorder.Middleware)

			staff.Route("/customers", func(c chi.Router) {
				c.Get("/", customerHandler.List)
				c.Post("/", customerHandler.Create)
				c.Route("/{customerID}", func(one chi.Router) {
					one.Get("/", customerHandler.Get)
					one.Put("/", customerHandler.Update)
					one.Delete("/", customerHandler.Delete)
					one.Get("/wallet", customerHandler.Wallet)
					one.With(auth.RequireRole("admin", "finance")).Post("/coins", customerHandler.GrantCoins)
				})
			})

			staff.Route("/doctors", func(d chi.Router) {
				d.Get("/", doctorHandler.List)
				d.With(auth.RequireRole("admin")).Post("/", doctorHandler.Create)
				d.Route("/{doctorID}", func(one chi.Router) {
					one.Get("/", doctorHandler.Get)
					one.With(auth.RequireRole("admin")).Put("/", doctorHandler.Update)
					one.With(auth.RequireRole("admin")).Delete("/", doctorHandler.Delete)
				})
			})

			staff.Route("/services", func(s chi.Router) {
				s.Get("/", catalogHandler.List)
				s.With(auth.RequireRole("admin")).Post("/", catalogHandler.Create)
				s.Route("/{serviceID}", func(one chi.Router) {
					one.Get("/", catalogHandler.Get)
					one.With(auth.RequireRole("admin")).Put("/", catalogHandler.Update)
					one.With(auth.RequireRole("admin")).Delete("/", catalogHandler.Delete)
				})
			})

			staff.Route("/appointments", func(a chi.Router) {
				a.Get("/", appointmentHandler.List)
				a.Post("/", appointmentHandler.Book)
				a.Route("/{appointmentID}", func(one chi.Router) {
					one.Get("/", appointmentHandler.Get)
					one.Patch("/status", appointmentHandler.UpdateStatus)
					one.Patch("/schedule", appointmentHandler.Reschedule)
				})
			})

			staff.Route("/invoices", func(i chi.Router) {
				i.Get("/", invoiceHandler.List)
				i.Get("/terms", invoiceHandler.Terms)
				i.Post("/preview", invoiceHandler.Preview)
				i.With(idem.Middleware).Post("/", invoiceHandler.Create)
				i.Route("/{invoiceID}", func(one chi.Router) {
					one.Get("/", invoiceHandler.Get)
					one.Put("/", invoiceHandler.Update)
					one.Get("/pdf", invoiceHandler.PDF)
					one.With(auth.RequireRole("admin", "finance"), idem.Middleware).Post("/payments", invoiceHandler.Pay)
					one.With(auth.RequireRole("admin", "finance")).Post("/void", invoiceHandler.Void)
				})
			})

			staff.Route("/expenses", func(e chi.Router) {
				e.Use(auth.RequireRole("admin", "finance"))
				e.Get("/", expenseHandler.List)
				e.Get("/totals", expenseHandler.Totals)
				e.Post("/", expenseHandler.Create)
				e.Route("/{expenseID}", func(one chi.Router) {
					one.Put("/", expenseHandler.Update)
					one.Delete("/", expenseHandler.Delete)
				})
			})

			staff.Route("/analytics", func(an chi.Router) {
				an.Use(auth.RequireRole("admin", "finance"))
				an.Get("/overview", analyticsHandler.Overview)
				an.Get("/revenue", analyticsHandler.Revenue)
				an.Get("/top-services", analyticsHandler.TopServices)
			})

			staff.With(auth.RequireRole("admin")).Get("/audit", auditHandler.List)

			staff.Route("/users", func(u chi.Router) {
				u.Use(auth.RequireRole("admin"))
				u.Get("/", userHandler.List)
				u.Route("/{userID}", func(one chi.Router) {
					one.Get("/", userHandler.Get)
					one.Put("/roles", userHandler.UpdateRoles)
					one.Delete("/", userHandler.Delete)
				})
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
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

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
