package gateway

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/talent-forge/collab-server/internal/auth"
)

// Handler upgrades HTTP requests to gateway WebSocket sessions
type Handler struct {
	coordinator *Coordinator
	auth        *auth.JWTManager
	upgrader    websocket.Upgrader
}

// NewHandler creates the WebSocket upgrade handler
func NewHandler(coordinator *Coordinator, jwtManager *auth.JWTManager) *Handler {
	return &Handler{
		coordinator: coordinator,
		auth:        jwtManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin checks belong to the reverse proxy in this
			// deployment; the token is the trust anchor.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates the request and hands the socket to the
// coordinator. Browsers cannot set headers on WebSocket requests, so the
// token is accepted from the query string as well.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	conn := newConn(uuid.New().String(), claims, ws, h.coordinator)
	h.coordinator.register(conn)

	go conn.writePump()
	go conn.readPump()
}
