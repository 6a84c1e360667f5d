package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskcal/internal/api"
	"taskcal/internal/calendar"
	"taskcal/internal/config"
	"taskcal/internal/database"
	"taskcal/internal/domain"
	"taskcal/internal/events"
	"taskcal/internal/logging"
	"taskcal/internal/metrics"
	"taskcal/internal/repository"
	"taskcal/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health server and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(cmd, "api-main")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	bus := events.NewEventBus()
	subscribeTaskMetrics(bus, logger)

	calLog := logging.Component(logger, "calendar")
	gateway := calendar.NewGateway(
		calendar.NewResolver(db),
		calendar.NewProber(cfg.Calendar, livenessCache(redisClient, logger), calLog),
		cfg.Calendar,
		calLog,
	)
	tasks := service.NewTaskService(db, gateway, bus, logging.Component(logger, "tasks"))

	checks := []api.ReadinessCheck{{Name: "database", Check: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, api.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return repository.Ping(ctx, redisClient)
		}})
	}
	httpServer := api.NewHTTPServer(cfg.API, tasks, cfg.Exports.SheetName, checks, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	startMetrics(ctx, cfg, logger)

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup, logger)
		go backups.Start(ctx)
	}

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// livenessCache prefers redis and falls back to process memory.
func livenessCache(client *redis.Client, logger *zerolog.Logger) domain.LivenessCache {
	memory := repository.NewMemoryLivenessCache()
	if client == nil {
		return memory
	}
	return repository.NewFailoverLivenessCache(repository.NewRedisLivenessCache(client), memory, logger)
}

func subscribeTaskMetrics(bus *events.EventBus, logger *zerolog.Logger) {
	bus.OnError(func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event", event.Type).Msg("task event handler error")
	})
	for _, eventType := range events.TaskEvents {
		bus.Subscribe(eventType, func(event *events.Event) error {
			metrics.IncTaskEvent(event.Type)
			return nil
		})
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.SetServing(false)
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
