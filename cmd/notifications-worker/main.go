package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tasktide/tasktide-backend/internal/notifications"
	"github.com/tasktide/tasktide-backend/pkg/broker"
	"github.com/tasktide/tasktide-backend/pkg/config"
	"github.com/tasktide/tasktide-backend/pkg/db"
	"github.com/tasktide/tasktide-backend/pkg/events"
	"github.com/tasktide/tasktide-backend/pkg/idempotency"
	"github.com/tasktide/tasktide-backend/pkg/logger"
	"github.com/tasktide/tasktide-backend/pkg/metrics"
	"github.com/tasktide/tasktide-backend/pkg/migrate"
	"github.com/tasktide/tasktide-backend/pkg/redis"
)

const processedTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "notifications-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "notifications-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	guard, err := idempotency.NewManager(redisClient, processedTTL)
	if err != nil {
		logg.Error(ctx, "failed to build idempotency guard", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	mtr := metrics.NewEventingMetrics(registry)

	conn, err := broker.NewConnection(cfg.Broker, broker.DefaultTopology(cfg.Broker.Exchange), logg, mtr)
	if err != nil {
		logg.Error(ctx, "failed to build broker connection", err)
		os.Exit(1)
	}
	if err := conn.Connect(ctx); err != nil {
		logg.Error(ctx, "broker unreachable, giving up", err)
		os.Exit(1)
	}
	defer conn.Close(context.Background())

	worker, err := notifications.NewWorker(notifications.NewRepo(dbClient.DB()), guard, logg)
	if err != nil {
		logg.Error(ctx, "failed to build notifications worker", err)
		os.Exit(1)
	}

	consumer, err := events.NewConsumer(conn, logg, mtr)
	if err != nil {
		logg.Error(ctx, "failed to build consumer", err)
		os.Exit(1)
	}
	for _, queue := range []string{broker.QueueNotifications, broker.QueueAuthEvents} {
		if err := consumer.Consume(ctx, queue, worker.Handle); err != nil {
			logg.Error(logg.WithField(ctx, "queue", queue), "failed to arm consumer", err)
			os.Exit(1)
		}
	}

	logg.Info(logg.WithField(ctx, "queue", broker.QueueNotifications), "notifications worker running")
	<-ctx.Done()
	logg.Info(context.Background(), "notifications worker stopping")
}
