package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilecare/dental-scheduling/internal/api"
	"github.com/smilecare/dental-scheduling/internal/appointment"
	"github.com/smilecare/dental-scheduling/internal/config"
	"github.com/smilecare/dental-scheduling/internal/db"
	"github.com/smilecare/dental-scheduling/internal/directory"
	"github.com/smilecare/dental-scheduling/internal/emergency"
	"github.com/smilecare/dental-scheduling/internal/notify"
	redisclient "github.com/smilecare/dental-scheduling/internal/redis"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg.Env, os.Stderr)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		logger.Fatal().Err(err).Msg("migration error")
	}
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
	logger.Info().Msg("connected to Redis")

	dir := directory.NewPgRepository(pgPool)
	noteStore := notify.NewPgStore(pgPool)

	var push notify.PushSink = notify.NoopPushSink{}
	if cfg.FCMEndpoint != "" {
		push = notify.NewFCMSink(cfg.FCMEndpoint, cfg.FCMServerKey)
	}
	var text notify.TextSink = notify.NoopTextSink{}
	if cfg.TextGatewayURL != "" {
		text = notify.NewTextGatewaySink(cfg.TextGatewayURL, cfg.TextGatewayToken)
	}
	fanout := notify.NewFanout(noteStore, dir, push, text,
		redisclient.NewPublisher(rdb), cfg.DefaultLocale, cfg.DispatchTimeout,
		logger.With().Str("component", "fanout").Logger())

	locker := redisclient.NewRedisBookingLocker(rdb, cfg.LockTTL)
	apptSvc := appointment.NewService(appointment.NewPgRepository(pgPool), dir, locker, fanout,
		logger.With().Str("component", "appointments").Logger())
	emergSvc := emergency.NewService(emergency.NewPgRepository(pgPool), dir, fanout,
		logger.With().Str("component", "emergencies").Logger())

	router := api.NewRouter(api.RouterConfig{
		Appointments:  apptSvc,
		Emergencies:   emergSvc,
		Notifications: noteStore,
		Prefs:         dir,
		PgPool:        pgPool,
		Redis:         rdb,
		JWTSecret:     cfg.JWTSecret,
		Env:           cfg.Env,
		Version:       version,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
