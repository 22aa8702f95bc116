package signalling

import (
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshconf/meshconf/internal/api"
	"github.com/meshconf/meshconf/internal/config"
	"github.com/meshconf/meshconf/internal/repository/memory"
	"github.com/meshconf/meshconf/internal/service"
	"github.com/meshconf/meshconf/internal/sockets"
	"github.com/meshconf/meshconf/internal/utils"
)

// Server wires the signaling relay onto a Fiber app.
//
// Endpoints:
//   - GET /ws/rooms  - the signaling socket; every client speaks the
//     api.Message protocol over it
//   - GET /api/rooms - REST snapshot of active rooms
//   - GET /healthz   - liveness check
//   - GET /metrics   - Prometheus metrics
//
// The relay is content-blind: offers, answers and candidates pass through
// untouched, routed purely on the target connection ID. All room state lives
// in memory and dies with the process.
type Server struct {
	app      *fiber.App
	config   *config.Manager
	rooms    *service.RoomService
	router   *Router
	pool     *sockets.SocketPool
	sessions *SessionHandler
	loops    *utils.SyncMapWrapper[api.ConnectionID, *ConnectionLoop]
}

func NewServer(cfg *config.Manager, app *fiber.App) *Server {
	pool := sockets.NewSocketPool()
	server := &Server{
		app:      app,
		config:   cfg,
		rooms:    service.NewRoomService(memory.NewRoomRegistry()),
		pool:     pool,
		sessions: NewSessionHandler(pool),
		loops:    utils.NewSyncMapWrapper[api.ConnectionID, *ConnectionLoop](),
	}
	server.router = NewRouter(server.rooms, server)

	// Reloaded settings apply to connections made after the change; live
	// sockets keep the ping interval and pc config they were handed in init.
	cfg.SetUpdateCallback(func(c *config.AppConfig) {
		slog.Info("relay configuration updated",
			"pingInterval", c.Server.PingInterval,
			"iceServers", len(c.WebRTC.PeerConnectionConfig.IceServers))
	})
	return server
}

// Send implements Sender over the active connection loops.
func (s *Server) Send(id api.ConnectionID, msg api.Message) bool {
	loop, ok := s.loops.Load(id)
	if !ok {
		return false
	}
	return loop.Send(msg)
}

func (s *Server) SetupRoutes() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws/rooms", websocket.New(func(c *websocket.Conn) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic in /ws/rooms", "error", err)
			}
		}()
		s.handleSocket(c)
	}))

	s.app.Get("/api/rooms", func(c *fiber.Ctx) error {
		return c.JSON(api.ToApiRooms(s.rooms.Rooms()))
	})

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// handleSocket runs one client connection end to end: assign an ID, send
// init, pump inbound frames into the router, and on any read error treat the
// connection as disconnected.
func (s *Server) handleSocket(conn *websocket.Conn) {
	cfg := s.config.Get()
	id := api.ConnectionID(uuid.NewString())

	session := s.sessions.Register(id, conn)
	defer session.Cleanup()

	loop := NewConnectionLoop(id, session.Socket, time.Duration(cfg.Server.PingInterval)*time.Second)
	s.loops.Store(id, loop)
	loop.Start()
	defer func() {
		if l, ok := s.loops.LoadAndDelete(id); ok {
			l.Stop()
		}
	}()

	loop.Send(api.Message{
		Event: api.MessageEventInit,
		Init: &api.InitMessage{
			ConnectionID: id,
			PcConfig:     cfg.WebRTC.PeerConnectionConfig,
			PingInterval: cfg.Server.PingInterval,
		},
	})

	for {
		var msg api.Message
		if err := session.Socket.ReadJSON(&msg); err != nil {
			slog.Info("socket closed", "connectionID", id, "error", err)
			break
		}
		s.router.HandleMessage(id, msg)
	}

	s.router.HandleDisconnect(id)
}

// Close shuts down all client connections. Safe to call more than once.
func (s *Server) Close() {
	slog.Info("closing relay", "connections", s.loops.Len())
	s.loops.Range(func(_ api.ConnectionID, loop *ConnectionLoop) bool {
		loop.Stop()
		return true
	})
	s.loops.Clear()
	s.pool.Close()
}
