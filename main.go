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

	"event-ticketing/internal/analytics"
	analytics_api "event-ticketing/internal/analytics/api"
	"event-ticketing/internal/auth"
	"event-ticketing/internal/config"
	"event-ticketing/internal/database"
	"event-ticketing/internal/database/migrations"
	eventdb "event-ticketing/internal/events/db"
	"event-ticketing/internal/events/event_api"
	events "event-ticketing/internal/events/service"
	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
	ticket_db "event-ticketing/internal/tickets/db"
	ticketredis "event-ticketing/internal/tickets/redis"
	tickets "event-ticketing/internal/tickets/service"
	"event-ticketing/internal/tickets/ticket_api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *logger.Logger) *redis.Client {
	if !cfg.Enabled {
		logger.Warn("REDIS", "Redis disabled, Idempotency-Key headers will be ignored")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s, continuing without idempotency: %v", cfg.Addr, err))
		client.Close()
		return nil
	}
	logger.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Addr))
	return client
}

func prepareSchema(ctx context.Context, cfg *config.Config, bunDB *bun.DB, logger *logger.Logger) error {
	if !database.IsPostgres(bunDB) {
		logger.LogDatabase("CREATE_SCHEMA", "events,tickets", "building SQLite schema from models")
		return database.CreateSchema(ctx, bunDB)
	}
	if !cfg.Migrations.AutoMigrate {
		return nil
	}
	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: cfg.Migrations.Dir,
		AutoMigrate:   true,
	}, logger)
	// the runner shares bunDB's pool, so it is not closed here
	return runner.RunMigrations()
}

// requestLogger reports every request through the category logger
func requestLogger(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
		})
	}
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	logger := logger.NewLogger(cfg.Log.Dir, cfg.Log.Service)
	defer logger.Close()

	logger.Info("APP", "Starting ticket admission service initialization")
	if envErr != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx := context.Background()

	bunDB, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if err := prepareSchema(ctx, cfg, bunDB, logger); err != nil {
		logger.Fatal("MIGRATE", err.Error())
	}

	redisClient := connectRedis(ctx, cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ticketOpts := []tickets.Option{
		tickets.WithLogger(logger),
		tickets.WithLimits(tickets.Limits{
			MaxQuantity: cfg.Purchase.MaxQuantity,
			MaxPerBuyer: cfg.Purchase.MaxPerBuyer,
		}),
		tickets.WithRetryPolicy(tickets.RetryPolicy{
			Attempts:   cfg.Purchase.RetryAttempts,
			Initial:    cfg.Purchase.RetryInitial,
			MaxBackoff: cfg.Purchase.RetryMaxBackoff,
		}),
	}

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers,
			[]string{cfg.Kafka.Topics.TicketsPurchased, cfg.Kafka.Topics.TicketRedeemed}, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
		defer producer.Close()
		ticketOpts = append(ticketOpts, tickets.WithPublisher(producer))
		logger.Info("KAFKA", "Kafka producer initialized successfully")
	}

	eventStore := &eventdb.DB{Bun: bunDB}
	txRunner := database.NewTxRunner(bunDB, cfg.Purchase.LockTimeout, cfg.Purchase.TxTimeout)
	ticketService := tickets.NewTicketService(eventStore, &ticket_db.DB{Bun: bunDB}, txRunner, ticketOpts...)
	eventService := events.NewEventService(eventStore, logger)

	var idempotency ticket_api.IdempotencyStore
	if redisClient != nil {
		idempotency = ticketredis.NewIdempotencyStore(redisClient, cfg.Redis.IdempotencyTTL, cfg.Redis.InFlightTTL)
	}

	ticketHandler := ticket_api.NewHandler(ticketService, idempotency, logger)
	eventHandler := event_api.NewHandler(eventService, logger)
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(bunDB), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	eventHandler.MountPublic(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer, logger))
		ticketHandler.Mount(r)
		eventHandler.Mount(r)
		analyticsHandler.RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Ticket admission service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Ticket admission service shutdown complete")
	}
}
