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

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"

	"ms-reservation/internal/accounts"
	"ms-reservation/internal/api"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/database/migrations"
	"ms-reservation/internal/events"
	"ms-reservation/internal/inventory"
	"ms-reservation/internal/kafka"
	"ms-reservation/internal/ledger"
	"ms-reservation/internal/lock"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/metrics"
	"ms-reservation/internal/payments"
	"ms-reservation/internal/reservation"
	"ms-reservation/internal/tickets/qr"
)

func newLogger(cfg *config.Config) *logger.Logger {
	log, err := logger.New(logger.Options{
		Service: "reservation-service",
		Dir:     cfg.Log.Dir,
		Level:   logger.ParseLevel(cfg.Log.Level),
		Color:   cfg.Log.Color,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return logger.NewLogger()
	}
	return log
}

// prepareSchema applies migrations on postgres and creates tables directly
// on sqlite.
func prepareSchema(ctx context.Context, cfg *config.Config, db *bun.DB, log *logger.Logger) error {
	if cfg.Database.Driver == "sqlite" {
		return database.CreateSchema(ctx, db)
	}
	if !cfg.Database.RunMigrations {
		log.Info("MIGRATION", "Skipping migrations (DB_RUN_MIGRATIONS=false)")
		return nil
	}
	runner, err := migrations.NewRunner(cfg.Database.DSN(), log)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up()
}

func newLocker(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (lock.Locker, *redis.Client) {
	if !cfg.Enabled {
		log.Info("REDIS", "Redis disabled, using in-process event locks")
		return lock.NewKeyedMutex(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis at %s: %v", cfg.Addr, err))
	}
	log.Info("REDIS", fmt.Sprintf("Connected to Redis at %s, event locks are shared", cfg.Addr))
	return lock.NewRedis(client, log, cfg.LockTTL, cfg.LockWait), client
}

func newPublisher(cfg config.KafkaConfig, log *logger.Logger) kafka.Publisher {
	if !cfg.Enabled {
		log.Info("KAFKA", "Kafka disabled, domain events are only logged")
		return kafka.Nop{Logger: log}
	}
	topics := []string{cfg.Topics.BookingCreated, cfg.Topics.BookingConfirmed, cfg.Topics.BookingCancelled, cfg.Topics.PaymentRefunded}
	if err := kafka.EnsureTopicsExist(cfg.Brokers, topics, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Could not ensure topics exist: %v", err))
	}
	log.Info("KAFKA", fmt.Sprintf("Publishing domain events to %v", cfg.Brokers))
	return kafka.NewProducer(cfg.Brokers, log)
}

func main() {
	if err := config.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect: %v", err))
	}
	defer db.Close()

	if err := prepareSchema(ctx, cfg, db, log); err != nil {
		log.Fatal("MIGRATION", err.Error())
	}

	locker, redisClient := newLocker(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}
	publisher := newPublisher(cfg.Kafka, log)
	defer publisher.Close()

	m := metrics.New()
	pool := inventory.NewPool(log)
	codes := ledger.CodeGenerator{Prefix: cfg.Booking.CodePrefix, Length: cfg.Booking.CodeLength}
	l := ledger.New(pool, codes, log)

	engine := reservation.New(db, reservation.Options{
		Pool:        pool,
		Ledger:      l,
		Payments:    payments.NewRecorder(log),
		Locker:      locker,
		Publisher:   publisher,
		Topics:      cfg.Kafka.Topics,
		Metrics:     m,
		Logger:      log,
		CodeRetries: cfg.Booking.CodeRetries,
		MaxQuantity: cfg.Booking.MaxQuantity,
	})

	tickets, err := qr.NewGenerator(cfg.Booking.QRSecretKey)
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	srv := api.NewServer(api.Deps{
		Accounts: accounts.NewService(db, auth.NewHasher(cfg.Auth.BcryptCost), log),
		Events:   events.NewService(db, pool, l, locker, log),
		Engine:   engine,
		Tokens:   auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Tickets:  tickets,
		Metrics:  m,
		Logger:   log,
		Ping:     db.PingContext,
	})

	go engine.RunExpirySweeper(ctx, cfg.Booking.PendingTTL, cfg.Booking.SweepEvery)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Reservation service listening on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("SERVER", "Shutdown signal received, draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("SERVER", fmt.Sprintf("Forced shutdown: %v", err))
	}
	log.Info("SERVER", "Reservation service stopped")
}
