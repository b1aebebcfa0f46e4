package controllers

import (
	"net/http"

	"github.com/tasktide/tasktide-backend/api/responses"
	"github.com/tasktide/tasktide-backend/pkg/broker"
	"github.com/tasktide/tasktide-backend/pkg/config"
	"github.com/tasktide/tasktide-backend/pkg/db"
	pkgerrors "github.com/tasktide/tasktide-backend/pkg/errors"
	"github.com/tasktide/tasktide-backend/pkg/logger"
	"github.com/tasktide/tasktide-backend/pkg/redis"
)

// brokerStater reports the live broker connection state.
type brokerStater interface {
	State() broker.State
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the datasources this instance depends on. The broker is
// reported but not gating: the API stays up through a broker outage.
func HealthReady(logg *logger.Logger, dbPinger db.Pinger, redisPinger redis.Pinger, brk brokerStater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if dbPinger != nil {
			if err := dbPinger.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
				return
			}
		}
		if redisPinger != nil {
			if err := redisPinger.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
		}

		status := map[string]string{"status": "ready"}
		if brk != nil {
			status["broker"] = string(brk.State())
		}
		responses.WriteSuccess(w, status)
	}
}
