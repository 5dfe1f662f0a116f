// Package matchmaker owns the room registry: slot finding, creation from
// the default template, close/kick/ban flows, and the empty-room TTL.
package matchmaker

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/game"
	"github.com/wormy/server/internal/metrics"
)

// Close reasons
const (
	ReasonManual       = "manual"
	ReasonTimeoutEmpty = "timeout_empty"
)

// Manager handles room assignment and lifecycle. Rooms are tracked in
// creation order so slot finding is deterministic within a tick.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*game.Room
	order []string

	defaultCfg config.RoomConfig
	banned     map[string]struct{}

	logger *zap.Logger
	events *metrics.EventLog
	seed   func() int64

	// onRoomClosed lets the admin layer detach and notify spectators.
	onRoomClosed func(roomID, reason string)
}

// NewManager creates a manager seeded with the baseline room config.
func NewManager(logger *zap.Logger, events *metrics.EventLog) *Manager {
	return &Manager{
		rooms:      make(map[string]*game.Room),
		defaultCfg: config.DefaultRoomConfig(),
		banned:     make(map[string]struct{}),
		logger:     logger,
		events:     events,
		seed:       func() int64 { return time.Now().UnixNano() },
	}
}

// SetSeedFunc overrides per-room PRNG seeding. Test hook.
func (m *Manager) SetSeedFunc(seed func() int64) {
	m.seed = seed
}

// SetOnRoomClosed installs the spectator notification callback.
func (m *Manager) SetOnRoomClosed(fn func(roomID, reason string)) {
	m.onRoomClosed = fn
}

// DefaultConfig returns the current template for new rooms.
func (m *Manager) DefaultConfig() config.RoomConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultCfg
}

// SetDefault replaces the template used for subsequent creates. Existing
// rooms keep their configuration.
func (m *Manager) SetDefault(cfg config.RoomConfig) []config.FieldError {
	if errs := cfg.Validate(); len(errs) > 0 {
		return errs
	}
	m.mu.Lock()
	m.defaultCfg = cfg
	m.mu.Unlock()
	return nil
}

// FindOrCreateWithSlot returns the first open room with a free slot, in
// creation order, or creates a fresh one from the default template.
func (m *Manager) FindOrCreateWithSlot() *game.Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		room := m.rooms[id]
		if room.Closed() {
			continue
		}
		if room.PlayerCount() < room.Config().MaxPlayers {
			return room
		}
	}
	return m.createLocked(m.defaultCfg)
}

// Create validates the patch, merges it over the default template, and
// opens a new room.
func (m *Manager) Create(patch config.RoomConfigPatch) (*game.Room, []config.FieldError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := patch.Apply(m.defaultCfg)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return m.createLocked(cfg), nil
}

// createLocked builds, registers, and starts a room. Caller holds the lock.
func (m *Manager) createLocked(cfg config.RoomConfig) *game.Room {
	id := uuid.NewString()
	room := game.NewRoom(id, cfg, m.seed(), m.logger, m.events)
	room.SetOnExpired(m.expireRoom)

	m.rooms[id] = room
	m.order = append(m.order, id)
	room.Start()

	metrics.RoomsOpened.Add(1)
	m.events.Append(metrics.Event{Ts: time.Now(), Kind: "room_opened", RoomID: id})
	return room
}

// Get returns the room with the given id.
func (m *Manager) Get(id string) (*game.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// expireRoom is the rooms' empty-TTL callback.
func (m *Manager) expireRoom(roomID string) {
	m.Close(roomID, ReasonTimeoutEmpty)
}

// Close shuts a room down: players are disconnected with a normal close,
// spectators notified, and the room removed. The second call for an id
// reports not found.
func (m *Manager) Close(id, reason string) bool {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
		for i, rid := range m.order {
			if rid == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	room.Close(reason)
	if m.onRoomClosed != nil {
		m.onRoomClosed(id, reason)
	}

	switch reason {
	case ReasonTimeoutEmpty:
		metrics.RoomsClosedTimeout.Add(1)
	default:
		metrics.RoomsClosedManual.Add(1)
	}
	m.events.Append(metrics.Event{Ts: time.Now(), Kind: "room_closed", RoomID: id, Detail: reason})
	return true
}

// Kick removes one player: session closed with the kicked code, both
// binding directions cleared, player freed by the room.
func (m *Manager) Kick(roomID, playerID string) bool {
	room, ok := m.Get(roomID)
	if !ok {
		return false
	}
	p, ok := room.GetPlayer(playerID)
	if !ok {
		return false
	}

	sess := p.Session
	room.RemovePlayer(playerID)
	if sess != nil {
		sess.Conn.Close(config.CloseKicked, "kicked")
	}

	metrics.Kicks.Add(1)
	m.events.Append(metrics.Event{Ts: time.Now(), Kind: "kick", RoomID: roomID, Detail: p.Name})
	m.logger.Info("player kicked", zap.String("room", roomID), zap.String("player", playerID))
	return true
}

// Ban adds the lowercased name to the process-wide ban set and kicks all
// currently matching players. Idempotent; matching players disconnect
// either way.
func (m *Manager) Ban(name string) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return
	}

	m.mu.Lock()
	_, existed := m.banned[needle]
	m.banned[needle] = struct{}{}
	rooms := make([]*game.Room, 0, len(m.order))
	for _, id := range m.order {
		rooms = append(rooms, m.rooms[id])
	}
	m.mu.Unlock()

	for _, room := range rooms {
		for _, view := range room.PlayerViews() {
			if strings.ToLower(view.Name) != needle {
				continue
			}
			p, ok := room.GetPlayer(view.ID)
			if !ok {
				continue
			}
			sess := p.Session
			room.RemovePlayer(view.ID)
			if sess != nil {
				sess.Conn.Close(config.CloseBanned, "banned")
			}
		}
	}

	if !existed {
		metrics.BansIssued.Add(1)
	}
	m.events.Append(metrics.Event{Ts: time.Now(), Kind: "ban", Detail: needle})
	m.logger.Info("name banned", zap.String("name", needle))
}

// IsBanned reports whether a display name is banned (case-insensitive).
func (m *Manager) IsBanned(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.banned[strings.ToLower(name)]
	return ok
}

// RoomInfo is the admin-facing room summary.
type RoomInfo struct {
	ID          string            `json:"id"`
	PlayerCount int               `json:"playerCount"`
	FoodCount   int               `json:"foodCount"`
	Config      config.RoomConfig `json:"config"`
}

// List returns all rooms in creation order.
func (m *Manager) List() []RoomInfo {
	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	rooms := make(map[string]*game.Room, len(m.rooms))
	for id, room := range m.rooms {
		rooms[id] = room
	}
	m.mu.RUnlock()

	out := make([]RoomInfo, 0, len(ids))
	for _, id := range ids {
		room := rooms[id]
		out = append(out, RoomInfo{
			ID:          id,
			PlayerCount: room.PlayerCount(),
			FoodCount:   room.FoodCount(),
			Config:      room.Config(),
		})
	}
	return out
}

// Stats holds aggregate counts for the stats endpoint.
type Stats struct {
	TotalRooms   int `json:"rooms"`
	TotalPlayers int `json:"players"`
}

// GetStats returns manager-level aggregates.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalRooms: len(m.rooms)}
	for _, room := range m.rooms {
		stats.TotalPlayers += room.PlayerCount()
	}
	return stats
}
