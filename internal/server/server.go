// Package server wires the transport to the core: WebSocket upgrades,
// per-connection read/write pumps, and the inbound frame pipeline.
//
// Connection Flow:
// 1. Client connects via WebSocket to /ws
// 2. Server registers a session and sends a welcome frame
// 3. Client sends hello with a display name
// 4. Server assigns a room (creates one if needed) and replies joined
// 5. Client streams input frames, server streams state frames
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/matchmaker"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/network"
	"github.com/wormy/server/internal/session"
)

// GameServer accepts player connections and routes their frames.
type GameServer struct {
	cfg      *config.ServerConfig
	logger   *zap.Logger
	registry *session.Registry
	manager  *matchmaker.Manager
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewGameServer creates the player-facing server.
func NewGameServer(cfg *config.ServerConfig, logger *zap.Logger, registry *session.Registry, manager *matchmaker.Manager) *GameServer {
	return &GameServer{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		manager:  manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// CheckOrigin controls CORS for WebSocket connections.
			// In production, consider a whitelist of allowed origins.
			CheckOrigin: func(r *http.Request) bool {
				return cfg.EnableCORS
			},
		},
		now: time.Now,
	}
}

// SetClock overrides the server clock. Test hook.
func (s *GameServer) SetClock(now func() time.Time) {
	s.now = now
}

// HandleWebSocket upgrades the HTTP connection and starts the pumps.
func (s *GameServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newClientConn(ws)
	sess := s.registry.Add(conn)

	s.logger.Info("client connected",
		zap.String("session", sess.ID),
		zap.String("remote", conn.RemoteAddr()))

	conn.Send(network.EncodeWelcome(sess.ID, s.now().UnixMilli()))

	go conn.writePump()
	go s.readPump(conn, sess)
}

// readPump consumes frames for one session until the connection dies,
// then runs the disconnect path.
func (s *GameServer) readPump(conn *clientConn, sess *session.Session) {
	defer s.cleanup(conn, sess)

	// Limit message size to prevent memory exhaustion
	conn.ws.SetReadLimit(4096)
	conn.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Debug("read error", zap.String("session", sess.ID), zap.Error(err))
			}
			return
		}
		s.HandleFrame(sess, data)
	}
}

// HandleFrame runs the inbound pipeline for one frame. Every frame,
// malformed or not, refreshes the idle clock. Unknown and malformed
// frames are dropped silently.
func (s *GameServer) HandleFrame(sess *session.Session, data []byte) {
	sess.Touch(s.now())

	frame, err := network.DecodeClientFrame(data)
	if err != nil {
		return
	}

	switch frame.Type {
	case network.TypeHello:
		s.handleHello(sess, frame.Hello)
	case network.TypeInput:
		s.handleInput(sess, frame.Input)
	case network.TypePing:
		s.handlePing(sess, frame.Ping)
	case network.TypePong:
		s.handlePong(sess, frame.Pong)
	}
}

// handleHello validates the display name and joins the session to a room.
// A session that already plays ignores further hellos.
func (s *GameServer) handleHello(sess *session.Session, frame *network.HelloFrame) {
	name := strings.TrimSpace(frame.Name)
	if runes := []rune(name); len(runes) > config.MaxNameLength {
		name = string(runes[:config.MaxNameLength])
	}

	if name == "" {
		sess.Conn.Send(network.EncodeError(network.ErrInvalidName))
		return
	}
	if s.manager.IsBanned(name) {
		sess.Conn.Send(network.EncodeError(network.ErrBanned))
		return
	}
	if _, _, bound := sess.Bound(); bound {
		return
	}

	room := s.manager.FindOrCreateWithSlot()
	player, err := room.AddPlayer(name, sess)
	if err != nil {
		// Lost a slot race; the next hello will land elsewhere.
		s.logger.Warn("join failed", zap.String("room", room.ID), zap.Error(err))
		return
	}

	sess.Bind(room.ID, player.ID)
	sess.Conn.Send(network.EncodeJoined(room.ID, player.ID))
}

// handleInput forwards steering intent to the bound room. An unbound
// session addressing any player is spoofing by definition.
func (s *GameServer) handleInput(sess *session.Session, frame *network.InputFrame) {
	roomID, _, bound := sess.Bound()
	if !bound {
		metrics.InputSpoofRejected.Add(1)
		return
	}
	room, ok := s.manager.Get(roomID)
	if !ok {
		return
	}
	room.ApplyInput(sess, frame)
}

// handlePing answers a client ping with the server clock.
func (s *GameServer) handlePing(sess *session.Session, frame *network.PingFrame) {
	sess.Conn.Send(network.EncodeServerPong(s.now().UnixMilli(), frame.PingID))
}

// handlePong completes an RTT measurement for the session's outstanding
// heartbeat ping.
func (s *GameServer) handlePong(sess *session.Session, frame *network.PongFrame) {
	if rtt, ok := sess.HandlePong(frame.PingID, s.now()); ok {
		sess.Conn.Send(network.EncodeLatency(rtt))
	}
}

// cleanup runs the disconnect path: the room frees the player (which
// unbinds the session), then the session leaves the registry.
func (s *GameServer) cleanup(conn *clientConn, sess *session.Session) {
	if roomID, playerID, bound := sess.Bound(); bound {
		if room, ok := s.manager.Get(roomID); ok {
			room.RemovePlayer(playerID)
		}
		sess.Unbind()
	}
	s.registry.Remove(sess.ID)
	conn.Close(config.CloseNormal, "")
	s.logger.Info("client disconnected", zap.String("session", sess.ID))
}

// Routes registers the player-facing HTTP endpoints.
func (s *GameServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
}

// handleHealth responds to health check requests.
// Used by load balancers and container orchestrators.
func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleStats returns aggregate server statistics as JSON.
func (s *GameServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.manager.GetStats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"rooms":%d,"players":%d,"sessions":%d}`,
		stats.TotalRooms, stats.TotalPlayers, s.registry.Count())
}
