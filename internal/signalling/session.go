package signalling

import (
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/meshconf/meshconf/internal/api"
	"github.com/meshconf/meshconf/internal/metrics"
	"github.com/meshconf/meshconf/internal/sockets"
)

type Session struct {
	Socket  sockets.Socket
	ID      api.ConnectionID
	Cleanup func()
}

type SessionHandler struct {
	pool *sockets.SocketPool
}

func NewSessionHandler(pool *sockets.SocketPool) *SessionHandler {
	return &SessionHandler{pool: pool}
}

func (h *SessionHandler) Register(id api.ConnectionID, conn *websocket.Conn) *Session {
	socket := h.pool.AddSocket(id, conn)

	metrics.ActiveWebSocketConnections.Inc()
	metrics.WebSocketConnectionsTotal.Inc()

	cleanup := func() {
		metrics.ActiveWebSocketConnections.Dec()
		metrics.WebSocketDisconnectionsTotal.Inc()
		h.pool.CloseSocket(id)
	}

	slog.Info("session started", "connectionID", id, "remote", conn.NetConn().RemoteAddr())

	return &Session{
		Socket:  socket,
		ID:      id,
		Cleanup: cleanup,
	}
}
