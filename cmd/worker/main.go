package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/medantara/backend-klinik/internal/app"
	"github.com/medantara/backend-klinik/internal/common"
	"github.com/medantara/backend-klinik/internal/config"
	"github.com/medantara/backend-klinik/internal/lock"
	"github.com/medantara/backend-klinik/internal/obs"
	"github.com/medantara/backend-klinik/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "klinik")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := app.NewPostgres(startupCtx, cfg.DatabaseURL, "klinik-worker")
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise database")
	}
	defer pool.Close()

	startupCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
	redisClient, err := app.NewRedis(startupCtx, cfg.RedisURL, false)
	cancel()
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

	processor := &reminder.Processor{
		Pool:   pool,
		Mailer: common.NopEmailSender{},
		Logger: logger,
		Lock:   &lock.Locker{R: redisClient},
	}

	srv := asynq.NewServer(taskOpt, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 5),
		Queues:      map[string]int{reminder.Queue: 1},
	})

	scheduler := asynq.NewScheduler(taskOpt, &asynq.SchedulerOpts{})
	overdueCron := envOrDefault("REMINDER_OVERDUE_CRON", "0 8 * * *")
	if _, err := scheduler.Register(overdueCron, reminder.NewOverdueScanTask(), asynq.Queue(reminder.Queue)); err != nil {
		logger.Fatal().Err(err).Msg("register overdue scan")
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down worker")
		scheduler.Shutdown()
		srv.Shutdown()
	}()

	logger.Info().Str("queue", reminder.Queue).Msg("worker starting")
	if err := srv.Run(processor.Mux()); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
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

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
