package realtime

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tasktide/tasktide-backend/pkg/config"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades HTTP requests to WebSocket connections and spawns the per
// connection pumps.
type Handler struct {
	hub      *Hub
	verifier *TokenVerifier
	cfg      config.WSConfig
	logg     *logger.Logger
}

func NewHandler(hub *Hub, verifier *TokenVerifier, cfg config.WSConfig, logg *logger.Logger) *Handler {
	return &Handler{hub: hub, verifier: verifier, cfg: cfg, logg: logg}
}

// ServeWS handles GET /ws. The access token is read from the token query
// parameter or the Authorization header; anonymous connections are allowed
// only when auth is disabled.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote the error response.
		return
	}

	client := NewClient(h.hub, conn, userID, h.cfg, h.logg)
	h.hub.Register(client)

	h.logg.Info(h.logg.WithFields(r.Context(), map[string]any{
		"client_id": client.ID,
		"user_id":   userID,
	}), "websocket connection established")

	go client.writePump()
	go client.readPump()
}

func (h *Handler) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	}

	if token == "" {
		if h.cfg.RequireAuth {
			return "", errMissingToken
		}
		return "", nil
	}
	return h.verifier.Verify(token)
}

var errMissingToken = &authError{"missing access token"}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }
