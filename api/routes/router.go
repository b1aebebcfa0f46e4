package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tasktide/tasktide-backend/api/controllers"
	"github.com/tasktide/tasktide-backend/api/middleware"
	"github.com/tasktide/tasktide-backend/internal/audit"
	"github.com/tasktide/tasktide-backend/internal/notifications"
	"github.com/tasktide/tasktide-backend/internal/realtime"
	"github.com/tasktide/tasktide-backend/pkg/broker"
	"github.com/tasktide/tasktide-backend/pkg/config"
	"github.com/tasktide/tasktide-backend/pkg/db"
	"github.com/tasktide/tasktide-backend/pkg/events"
	"github.com/tasktide/tasktide-backend/pkg/logger"
	"github.com/tasktide/tasktide-backend/pkg/redis"
)

type brokerStater interface {
	State() broker.State
}

// Deps carries everything the router mounts.
type Deps struct {
	Cfg           *config.Config
	Logg          *logger.Logger
	DBPinger      db.Pinger
	RedisPinger   redis.Pinger
	Broker        brokerStater
	AuditService  *audit.Service
	Emitter       *events.Emitter
	Notifications *notifications.Repo
	WSHandler     *realtime.Handler
	Verifier      middleware.TokenVerifier
	Metrics       prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logg),
		middleware.RequestID(deps.Logg),
		middleware.Logging(deps.Logg),
	)

	r.Get("/healthz", controllers.HealthLive(deps.Cfg))
	r.Get("/readyz", controllers.HealthReady(deps.Logg, deps.DBPinger, deps.RedisPinger, deps.Broker))

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	if deps.WSHandler != nil {
		r.Get("/ws", deps.WSHandler.ServeWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Verifier, deps.Logg))

		r.Get("/tasks/{taskID}/history", controllers.TaskHistory(deps.AuditService, deps.Logg))
		if deps.Emitter != nil {
			r.Post("/events", controllers.EmitEvent(deps.Emitter, deps.Logg))
		}
		r.Get("/notifications", controllers.ListNotifications(deps.Notifications, deps.Logg))
		r.Post("/notifications/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, deps.Logg))
	})

	return r
}
