package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/client-go/kubernetes"

	"parkease-api-go/internal/api"
	"parkease-api-go/internal/api/middleware"
	"parkease-api-go/internal/auth"
	"parkease-api-go/internal/booking"
	"parkease-api-go/internal/clock"
	"parkease-api-go/internal/config"
	"parkease-api-go/internal/k8s"
	"parkease-api-go/internal/lock"
	"parkease-api-go/internal/redisclient"
	"parkease-api-go/internal/store"
	"parkease-api-go/internal/store/memory"
	"parkease-api-go/internal/store/postgres"
	"parkease-api-go/internal/sweeper"
	"parkease-api-go/internal/telemetry"
)

func main() {
	// Create root context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := setupLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Park-Ease",
		zap.String("version", "1.0.0"),
		zap.String("pod_name", cfg.PodName),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("vehicle_lock_backend", cfg.VehicleLockBackend),
	)

	shutdownTracing, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to setup tracing", zap.Error(err))
	}

	// Persistence
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Error closing store", zap.Error(err))
		}
	}()

	// Redis backs the shared vehicle lock and the readiness probe
	var redisClient *redisclient.Client
	if cfg.RedisURL != "" {
		redisClient, err = redisclient.NewClient(cfg)
		if err != nil {
			logger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Error closing Redis connection", zap.Error(err))
			}
		}()

		if err := redisClient.Ping(ctx); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		logger.Info("Connected to Redis", zap.String("addr", redisClient.Addr()))
	}

	var vehicles lock.Locker = lock.NewKeyedMutex()
	if cfg.VehicleLockBackend == config.LockBackendRedis {
		vehicles = lock.NewRedisLocker(
			redisClient.GetRedis(),
			redisclient.VehicleLockKey,
			cfg.VehicleLockTTL,
			cfg.VehicleLockWait,
			logger,
		)
	}

	engine := booking.NewEngine(st, vehicles, clock.Real{}, logger)

	// Create Kubernetes client (if leader election is on)
	var k8sClient kubernetes.Interface
	if cfg.LeaderElectionEnabled {
		k8sClient, err = k8s.NewClientset(cfg.KubeConfigPath)
		if err != nil {
			logger.Warn("Failed to create Kubernetes client, disabling leader election",
				zap.Error(err))
			cfg.LeaderElectionEnabled = false
		} else {
			logger.Info("Kubernetes client created successfully")
		}
	}

	sw := sweeper.New(engine, k8sClient, cfg, logger)

	limiter := middleware.NewLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartJanitor(ctx)

	deps := api.Deps{
		Service:  engine,
		Resolver: auth.HeaderResolver{},
		Limiter:  limiter,
		Leader:   sw,
		Logger:   logger,
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	router := api.NewRouter(deps)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start metrics server (if different port), separate minimal mux
	var metricsServer *http.Server
	if cfg.MetricsPort != cfg.HTTPPort {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
	}

	// Start health check goroutine
	go runHealthChecks(ctx, st, redisClient, logger)

	// Start the expiry sweeper (waits for leadership when election is on)
	sw.Start(ctx)

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start servers in goroutines
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info("Starting metrics server", zap.String("port", cfg.MetricsPort))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Park-Ease started successfully",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("metrics_port", cfg.MetricsPort),
		zap.Bool("leader_election", cfg.LeaderElectionEnabled),
		zap.Duration("sweep_interval", cfg.SweepInterval),
	)

	// Wait for shutdown signal
	<-quit
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting requests first so no new bookings race the final sweep
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		logger.Info("HTTP server shut down gracefully")
	}

	// Let an in-flight sweep tick finish
	if err := sw.Stop(shutdownCtx); err != nil {
		logger.Error("Sweeper shutdown error", zap.Error(err))
	}

	// Cancel root context to stop background processes
	cancel()

	// Shutdown metrics server if running
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracer provider shutdown error", zap.Error(err))
	}

	logger.Info("Park-Ease shutdown complete")
}

func setupLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)

	if cfg.LogFormat == "console" {
		config.Encoding = "console"
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return config.Build()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.StoreBackend != config.StoreBackendPostgres {
		logger.Warn("Using in-memory store, data is lost on restart")
		return memory.New(), nil
	}

	client, err := postgres.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	logger.Info("Connected to Postgres")
	return postgres.NewStore(client), nil
}

func runHealthChecks(ctx context.Context, st store.Store, redisClient *redisclient.Client, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := st.Ping(ctx); err != nil {
				logger.Warn("Store health check failed", zap.Error(err))
			}
			if redisClient == nil {
				continue
			}
			if err := redisClient.Ping(ctx); err != nil {
				logger.Warn("Redis health check failed", zap.Error(err))
			}
		}
	}
}
