package admin

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/matchmaker"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/network"
)

// Hub tracks admin spectators. Each spectator subscribes to one room and
// receives 1 Hz roster snapshots plus pushed log events.
type Hub struct {
	mu         sync.Mutex
	spectators map[*spectator]struct{}

	manager  *matchmaker.Manager
	events   *metrics.EventLog
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

type spectator struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	closing chan struct{}

	once        sync.Once
	closingOnce sync.Once

	mu     sync.Mutex
	roomID string
}

// NewHub creates the spectator hub.
func NewHub(manager *matchmaker.Manager, events *metrics.EventLog, logger *zap.Logger) *Hub {
	h := &Hub{
		spectators: make(map[*spectator]struct{}),
		manager:    manager,
		events:     events,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	manager.SetOnRoomClosed(h.onRoomClosed)
	return h
}

func (sp *spectator) room() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.roomID
}

func (sp *spectator) subscribe(roomID string) {
	sp.mu.Lock()
	sp.roomID = roomID
	sp.mu.Unlock()
}

func (sp *spectator) push(data []byte) {
	if data == nil {
		return
	}
	select {
	case sp.send <- data:
	case <-sp.done:
	default:
	}
}

func (sp *spectator) close() {
	sp.once.Do(func() {
		close(sp.done)
		sp.conn.Close()
	})
}

// beginClose asks the write loop to drain queued frames and shut down.
// All socket writes stay on the write loop goroutine.
func (sp *spectator) beginClose() {
	sp.closingOnce.Do(func() {
		close(sp.closing)
	})
}

// HandleWebSocket upgrades a spectator connection. Unauthorized clients
// are upgraded and immediately closed with the policy-violation code so
// they can tell a bad token from a broken server.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, authorized bool) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("spectator upgrade failed", zap.Error(err))
		return
	}

	if !authorized {
		msg := websocket.FormatCloseMessage(config.CloseUnauthorized, "unauthorized")
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.Close()
		return
	}

	sp := &spectator{
		conn:    ws,
		send:    make(chan []byte, 64),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}

	h.mu.Lock()
	h.spectators[sp] = struct{}{}
	h.mu.Unlock()

	eventCh, cancel := h.events.Subscribe()

	go h.writeLoop(sp, eventCh)
	go h.readLoop(sp, cancel)
}

// readLoop consumes subscribe frames until the spectator disconnects.
func (h *Hub) readLoop(sp *spectator, cancel func()) {
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.spectators, sp)
		h.mu.Unlock()
		sp.close()
	}()

	for {
		var msg struct {
			RoomID string `json:"roomId"`
		}
		if err := sp.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.RoomID != "" {
			sp.subscribe(msg.RoomID)
		}
	}
}

// writeLoop multiplexes snapshots, log events, and queued frames onto
// the spectator socket.
func (h *Hub) writeLoop(sp *spectator, eventCh <-chan metrics.Event) {
	snap := time.NewTicker(time.Second)
	defer snap.Stop()
	defer sp.close()

	for {
		select {
		case <-sp.done:
			return

		case <-sp.closing:
			// Flush anything already queued (the room_closed frame was
			// pushed before the signal), then shut down.
			for {
				select {
				case data := <-sp.send:
					sp.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
					if err := sp.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					return
				}
			}

		case data := <-sp.send:
			sp.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := sp.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			sp.push(network.Encode(network.LogFrame{
				T:      network.TypeLog,
				Ts:     ev.Ts.UnixMilli(),
				Kind:   ev.Kind,
				RoomID: ev.RoomID,
				Detail: ev.Detail,
			}))

		case <-snap.C:
			roomID := sp.room()
			if roomID == "" {
				continue
			}
			room, ok := h.manager.Get(roomID)
			if !ok {
				continue
			}
			sp.push(network.Encode(network.SnapshotFrame{
				T:         network.TypeSnapshot,
				RoomID:    roomID,
				ServerNow: time.Now().UnixMilli(),
				Players:   room.PlayerViews(),
				FoodCount: room.FoodCount(),
			}))
		}
	}
}

// onRoomClosed notifies spectators of the dead room and closes them.
func (h *Hub) onRoomClosed(roomID, reason string) {
	h.mu.Lock()
	subs := make([]*spectator, 0)
	for sp := range h.spectators {
		if sp.room() == roomID {
			subs = append(subs, sp)
		}
	}
	h.mu.Unlock()

	frame := network.EncodeRoomClosed(roomID, reason)
	for _, sp := range subs {
		sp.push(frame)
		sp.beginClose()
	}
}
