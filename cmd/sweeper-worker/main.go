package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/smilecare/dental-scheduling/internal/appointment"
	"github.com/smilecare/dental-scheduling/internal/config"
	"github.com/smilecare/dental-scheduling/internal/db"
	"github.com/smilecare/dental-scheduling/internal/directory"
	"github.com/smilecare/dental-scheduling/internal/notify"
	redisclient "github.com/smilecare/dental-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "sweeper").Logger()
	logger.Info().Str("env", cfg.Env).Str("cron", cfg.SweepCron).Msg("sweeper-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewClient(rootCtx, redisclient.Config{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
		Timeout:  cfg.RedisTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()

	// The sweep never dispatches notices, so the worker carries noop sinks.
	dir := directory.NewPgRepository(pgPool)
	fanout := notify.NewFanout(notify.NewPgStore(pgPool), dir,
		notify.NoopPushSink{}, notify.NoopTextSink{},
		redisclient.NewPublisher(rdb), cfg.DefaultLocale, cfg.DispatchTimeout, logger)

	locker := redisclient.NewRedisBookingLocker(rdb, cfg.LockTTL)
	svc := appointment.NewService(appointment.NewPgRepository(pgPool), dir, locker, fanout, logger)

	// Run once at startup so a worker restarted after midnight still catches up.
	runOnce(rootCtx, svc, logger)

	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepCron, func() {
		runOnce(rootCtx, svc, logger)
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.SweepCron).Msg("invalid sweep cron spec")
	}
	c.Start()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping sweeper")
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	count, err := svc.SweepStale(runCtx, time.Now())
	if err != nil {
		logger.Error().Err(err).Msg("sweep run error")
		return
	}
	logger.Info().Int64("completed", count).Dur("took", time.Since(start)).Msg("sweep run complete")
}
