package network

import "github.com/wormy/server/internal/geom"

// Frame type tags
const (
	// Client -> Server
	TypeHello = "hello"
	TypeInput = "input"
	TypePing  = "ping"
	TypePong  = "pong"

	// Server -> Client
	TypeWelcome    = "welcome"
	TypeJoined     = "joined"
	TypeError      = "error"
	TypeState      = "state"
	TypeLatency    = "latency"
	TypeDead       = "dead"
	TypeRoomClosed = "room_closed"

	// Server -> admin spectator
	TypeSnapshot = "snapshot"
	TypeLog      = "log"
)

// Error strings sent in error frames
const (
	ErrInvalidName = "INVALID_NAME"
	ErrBanned      = "BANNED"
)

// HelloFrame is the client's join request.
type HelloFrame struct {
	Name string `json:"name"`
}

// InputFrame carries steering intent. DirectionRad and Boosting are
// optional: absent fields leave the corresponding player state untouched.
type InputFrame struct {
	PlayerID     string   `json:"playerId"`
	DirectionRad *float64 `json:"directionRad,omitempty"`
	Boosting     *bool    `json:"boosting,omitempty"`
}

// PingFrame is a client-initiated ping; PingID is echoed back.
type PingFrame struct {
	PingID int64 `json:"pingId,omitempty"`
}

// PongFrame answers a server-initiated ping.
type PongFrame struct {
	PingID int64 `json:"pingId"`
}

// WelcomeFrame greets a freshly connected session.
type WelcomeFrame struct {
	T         string `json:"t"`
	SessionID string `json:"sessionId"`
	ServerNow int64  `json:"serverNow"`
}

// JoinedFrame confirms a hello and tells the client its identity.
type JoinedFrame struct {
	T        string `json:"t"`
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

// ErrorFrame reports a user-visible rejection (invalid name, ban).
type ErrorFrame struct {
	T     string `json:"t"`
	Error string `json:"error"`
}

// LatencyFrame reports the measured round-trip time after a pong.
type LatencyFrame struct {
	T     string `json:"t"`
	RttMs int64  `json:"rttMs"`
}

// ServerPingFrame is the server-initiated heartbeat ping.
type ServerPingFrame struct {
	T      string `json:"t"`
	PingID int64  `json:"pingId"`
}

// ServerPongFrame answers a client ping.
type ServerPongFrame struct {
	T      string `json:"t"`
	Now    int64  `json:"now"`
	PingID int64  `json:"pingId,omitempty"`
}

// DeadFrame tells a player they died. The frame is delivered before the
// player is removed from the room.
type DeadFrame struct {
	T string `json:"t"`
}

// RoomClosedFrame notifies spectators that a room went away.
type RoomClosedFrame struct {
	T      string `json:"t"`
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// FoodView is a food item as seen by a recipient.
type FoodView struct {
	ID    uint64  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value float64 `json:"value"`
}

// PlayerView is a player as seen by a recipient. Body points are only
// present for the recipient itself.
type PlayerView struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	X        float64      `json:"x"`
	Y        float64      `json:"y"`
	Dir      float64      `json:"dir"`
	Score    int64        `json:"score"`
	Boosting bool         `json:"boosting"`
	Body     []geom.Point `json:"body,omitempty"`
}

// LeaderboardEntry is one row of the per-room top list.
type LeaderboardEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// MinimapCell aggregates the food of one grid cell.
type MinimapCell struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value float64 `json:"v"`
	Count int     `json:"n"`
}

// MinimapPlayer is the compact roster entry inside the minimap.
type MinimapPlayer struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score int64   `json:"score"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Minimap is the cached coarse world overview shared by all recipients.
type Minimap struct {
	Cells   []MinimapCell   `json:"cells"`
	Players []MinimapPlayer `json:"players"`
}

// StateFrame is the per-recipient world snapshot.
type StateFrame struct {
	T                    string             `json:"t"`
	ServerNow            int64              `json:"serverNow"`
	You                  string             `json:"you"`
	Foods                []FoodView         `json:"foods"`
	Players              []PlayerView       `json:"players"`
	Leaderboard          []LeaderboardEntry `json:"leaderboard"`
	Minimap              *Minimap           `json:"minimap"`
	BodyRadiusMultiplier float64            `json:"bodyRadiusMultiplier"`
	BodyLengthMultiplier float64            `json:"bodyLengthMultiplier"`
}

// SnapshotFrame is the 1 Hz full-roster view pushed to admin spectators.
type SnapshotFrame struct {
	T         string       `json:"t"`
	RoomID    string       `json:"roomId"`
	ServerNow int64        `json:"serverNow"`
	Players   []PlayerView `json:"players"`
	FoodCount int          `json:"foodCount"`
}

// LogFrame pushes one event-log entry to admin spectators.
type LogFrame struct {
	T      string `json:"t"`
	Ts     int64  `json:"ts"`
	Kind   string `json:"kind"`
	RoomID string `json:"roomId,omitempty"`
	Detail string `json:"detail,omitempty"`
}
