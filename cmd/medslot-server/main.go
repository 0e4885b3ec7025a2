package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"medslot/backend/internal/clock"
	"medslot/backend/internal/config"
	"medslot/backend/internal/events"
	"medslot/backend/internal/service/bookings"
	"medslot/backend/internal/store"
	"medslot/backend/internal/store/file"
	"medslot/backend/internal/store/postgres"
	redisstore "medslot/backend/internal/store/redis"
	grpcTransport "medslot/backend/internal/transport/grpc"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "medslot-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "medslot-server"),
	)
	slog.SetDefault(log)

	if err := run(log, cfg); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(log *slog.Logger, cfg config.Config) error {
	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.String("snapshot_backend", cfg.SnapshotBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redisstore.Client
	if cfg.SnapshotBackend == config.SnapshotBackendRedis || cfg.EventsEnabled {
		c, err := redisstore.NewClient(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		redisClient = c
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
	}

	st, closeStore, err := openSnapshotStore(ctx, log, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []bookings.Option{bookings.WithLogger(log)}
	if cfg.EventsEnabled {
		pub := events.NewRedisPublisher(redisClient.Client(), cfg.EventsChannel)
		opts = append(opts, bookings.WithPublisher(pub))
		log.Info("publishing booking events", slog.String("channel", pub.Channel()))
	}

	svc := bookings.NewService(st, clock.System{Location: cfg.ClockLocation}, bookings.Config{
		Policy:                cfg.Availability,
		RequireAdvertisedSlot: cfg.RequireAdvertisedSlot,
		SeedOnEmpty:           cfg.SeedEnabled,
	}, opts...)
	if _, err := svc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcTransport.LoggingInterceptor(log),
			grpcTransport.RateLimitInterceptor(cfg.GRPCRateLimit, cfg.GRPCRateBurst, log),
			grpcTransport.DefaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
		),
	)
	grpcTransport.RegisterSchedulingServiceServer(grpcServer, grpcTransport.NewSchedulingServer(svc, log))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(grpcTransport.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunRefreshWorker(gctx, cfg.RefreshInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			log.Info("shutdown signal received")
		}
		healthServer.Shutdown()
		shutdown(log, grpcServer, cfg.ShutdownTimeout)
		return nil
	})

	return g.Wait()
}

func openSnapshotStore(ctx context.Context, log *slog.Logger, cfg config.Config, redisClient *redisstore.Client) (store.SnapshotStore, func(), error) {
	switch cfg.SnapshotBackend {
	case config.SnapshotBackendPostgres:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return nil, nil, err
		}
		closeDB := func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}

		repo := postgres.NewSnapshotRepo(db, cfg.SnapshotKey)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeDB()
			return nil, nil, err
		}
		return repo, closeDB, nil

	case config.SnapshotBackendRedis:
		s := redisstore.NewSnapshotStore(redisClient.Client(), cfg.SnapshotKey)
		log.Info("using redis snapshot store", slog.String("key", s.Key()))
		return s, func() {}, nil

	default:
		s := file.NewSnapshotStore(afero.NewOsFs(), cfg.SnapshotPath)
		log.Info("using file snapshot store", slog.String("path", s.Path()))
		return s, func() {}, nil
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
