package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tasktide/tasktide-backend/api/routes"
	"github.com/tasktide/tasktide-backend/internal/audit"
	"github.com/tasktide/tasktide-backend/internal/notifications"
	"github.com/tasktide/tasktide-backend/internal/realtime"
	"github.com/tasktide/tasktide-backend/pkg/broker"
	"github.com/tasktide/tasktide-backend/pkg/config"
	"github.com/tasktide/tasktide-backend/pkg/db"
	"github.com/tasktide/tasktide-backend/pkg/events"
	"github.com/tasktide/tasktide-backend/pkg/logger"
	"github.com/tasktide/tasktide-backend/pkg/metrics"
	"github.com/tasktide/tasktide-backend/pkg/migrate"
	"github.com/tasktide/tasktide-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	mtr := metrics.NewEventingMetrics(registry)

	conn, err := broker.NewConnection(cfg.Broker, broker.DefaultTopology(cfg.Broker.Exchange), logg, mtr)
	if err != nil {
		logg.Error(ctx, "failed to build broker connection", err)
		os.Exit(1)
	}
	// Startup is fail-fast: if the broker never comes up within the retry
	// budget the process exits and the orchestrator restarts it.
	if err := conn.Connect(ctx); err != nil {
		logg.Error(ctx, "broker unreachable, giving up", err)
		os.Exit(1)
	}
	defer conn.Close(context.Background())

	publisher, err := events.NewPublisher(conn, logg, mtr, cfg.Broker.PublishTimeout)
	if err != nil {
		logg.Error(ctx, "failed to build publisher", err)
		os.Exit(1)
	}
	emitter, err := events.NewEmitter(publisher, logg)
	if err != nil {
		logg.Error(ctx, "failed to build event emitter", err)
		os.Exit(1)
	}

	auditService, err := audit.NewService(audit.NewRepo(dbClient.DB()), logg)
	if err != nil {
		logg.Error(ctx, "failed to build audit service", err)
		os.Exit(1)
	}
	notifRepo := notifications.NewRepo(dbClient.DB())

	verifier := realtime.NewTokenVerifier(cfg.JWT)
	hub := realtime.NewHub(logg, mtr)
	wsHandler := realtime.NewHandler(hub, verifier, cfg.WS, logg)

	bridge, err := realtime.NewBridge(hub, logg)
	if err != nil {
		logg.Error(ctx, "failed to build realtime bridge", err)
		os.Exit(1)
	}
	consumer, err := events.NewConsumer(conn, logg, mtr)
	if err != nil {
		logg.Error(ctx, "failed to build consumer", err)
		os.Exit(1)
	}
	if err := consumer.Consume(ctx, broker.QueueRealtime, bridge.Handle); err != nil {
		logg.Error(ctx, "failed to arm realtime consumer", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Cfg:           cfg,
			Logg:          logg,
			DBPinger:      dbClient,
			RedisPinger:   redisClient,
			Broker:        conn,
			AuditService:  auditService,
			Emitter:       emitter,
			Notifications: notifRepo,
			WSHandler:     wsHandler,
			Verifier:      verifier,
			Metrics:       registry,
		}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "server shutdown failed", err)
		}
	}()

	startCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startCtx, "starting api server")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(startCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "api server stopped")
}
