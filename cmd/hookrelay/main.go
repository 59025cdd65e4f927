// HookRelay API
//
// Webhook event delivery service: producers publish events, subscribers
// register webhook endpoints, and the dispatch pool delivers with retries,
// signing, and rate caps.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.hookrelay.dev/internal/analytics"
	"go.hookrelay.dev/internal/api"
	"go.hookrelay.dev/internal/config"
	"go.hookrelay.dev/internal/dispatch"
	"go.hookrelay.dev/internal/publisher"
	"go.hookrelay.dev/internal/registry"
	"go.hookrelay.dev/internal/security"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("HOOKRELAY_CONFIG"), "path to a TOML config file")
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if os.Getenv("HOOKRELAY_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting HookRelay",
		"version", version,
		"build_time", buildTime)

	// Load configuration
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		if !cfg.DevMode {
			slog.Error("API_JWT_SECRET is required outside dev mode")
			os.Exit(1)
		}
		jwtSecret, err = security.GenerateSecret()
		if err != nil {
			slog.Error("Failed to generate dev JWT secret", "error", err)
			os.Exit(1)
		}
		slog.Warn("No API_JWT_SECRET set; using a generated secret, tokens will not survive restarts")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MongoDB connection
	slog.Info("Connecting to MongoDB", "uri", maskURI(cfg.MongoDB.URI))
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			slog.Error("Error disconnecting from MongoDB", "error", err)
		}
	}()

	// Ping MongoDB to verify connection
	if err := mongoClient.Ping(ctx, nil); err != nil {
		slog.Error("Failed to ping MongoDB", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	db := mongoClient.Database(cfg.MongoDB.Database)

	// Repositories
	subRepo := registry.NewRepository(db)
	eventRepo := publisher.NewRepository(db)
	deliveryRepo := dispatch.NewRepository(db)

	// Security primitives shared by the API and the executor
	validator := security.NewValidator(cfg.Security.MaxPayloadBytes)
	signer := security.NewSigner(cfg.Security.ReplayTolerance)

	// Dispatch pool
	executor := dispatch.NewExecutor(dispatch.DefaultExecutorConfig(), signer)
	pool := dispatch.NewPool(deliveryRepo, subRepo, eventRepo, executor, &dispatch.PoolConfig{
		Concurrency:           cfg.Dispatch.Concurrency,
		BatchSize:             cfg.Dispatch.BatchSize,
		PollInterval:          cfg.Dispatch.PollInterval,
		RetryInterval:         cfg.Dispatch.RetryInterval,
		CleanupInterval:       cfg.Dispatch.CleanupInterval,
		DeadLetterAge:         cfg.Dispatch.DeadLetterAge,
		Retention:             cfg.Dispatch.Retention,
		ShutdownTimeout:       cfg.Dispatch.ShutdownTimeout,
		EnableCleanup:         cfg.Dispatch.EnableCleanup,
		EnableHealthCheck:     cfg.Dispatch.EnableHealthCheck,
		RatePerMinute:         cfg.Dispatch.RatePerMinute,
		LeaderLockName:        cfg.Dispatch.LeaderElection.LockName,
		LeaderTTL:             cfg.Dispatch.LeaderElection.TTL,
		LeaderRefreshInterval: cfg.Dispatch.LeaderElection.RefreshInterval,
	})

	// Optional Redis leader election for multi-instance deployments
	var redisClient *redis.Client
	if cfg.Dispatch.LeaderElection.Enabled {
		if cfg.Redis.URL == "" {
			slog.Error("Leader election enabled but REDIS_URL is not set")
			os.Exit(1)
		}
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("Failed to parse Redis URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to ping Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		pool.WithLeaderElection(redisClient)
		slog.Info("Leader election enabled", "lock", cfg.Dispatch.LeaderElection.LockName)
	}

	// Publisher and async batcher; fan-out nudges the pool so fresh
	// deliveries go out without waiting for the next poll
	pub := publisher.NewPublisher(eventRepo, subRepo, deliveryRepo, validator)
	pub.SetWake(pool.Wake)

	batcher := publisher.NewBatcher(pub, publisher.BatcherConfig{
		BatchSize:         cfg.Publisher.BatchSize,
		FlushInterval:     cfg.Publisher.FlushInterval,
		MaxEnqueueRetries: cfg.Publisher.MaxEnqueueRetries,
	})

	// Analytics and manual retry, backed by the pool's claim path
	analyticsService := analytics.NewService(subRepo, deliveryRepo, pool)

	// HTTP layer
	auth := api.NewAuthMiddleware(jwtSecret, cfg.Auth.Issuer)
	webhookHandler := api.NewWebhookHandler(subRepo, validator, deliveryRepo, analyticsService, pub)
	eventHandler := api.NewEventHandler(pub, batcher)
	healthHandler := api.NewHealthHandler(pool, func(ctx context.Context) error {
		return mongoClient.Ping(ctx, nil)
	})

	router := api.NewRouter(api.RouterConfig{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		DevMode:     cfg.DevMode,
	}, auth, webhookHandler, eventHandler, healthHandler)

	// Start background components
	pool.Start()
	batcher.Start()

	// Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down gracefully...")

	// Stop intake first so the batcher can drain into the store, then let
	// the pool finish in-flight deliveries
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced to shutdown", "error", err)
	}

	batcher.Stop()
	pool.Stop()

	slog.Info("HookRelay stopped")
}

// maskURI masks sensitive parts of a MongoDB URI for logging
func maskURI(uri string) string {
	if len(uri) > 20 {
		return uri[:20] + "..."
	}
	return uri
}
