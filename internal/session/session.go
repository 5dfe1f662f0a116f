// Package session tracks connected clients: identity, room/player binding,
// heartbeat bookkeeping, and the per-session input token bucket.
package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wormy/server/config"
)

// Conn abstracts the transport so the core never touches the WebSocket
// directly. Send is best-effort: a full buffer drops the frame.
type Conn interface {
	Send(data []byte) error
	Close(code int, reason string) error
	RemoteAddr() string
}

// Session is the server-side record of one connected client.
//
// A session may be bound to at most one player, and a player is bound to
// at most one session. Binding is cleared from both directions on
// disconnect; the player itself is freed by the room's disconnect path.
type Session struct {
	mu sync.Mutex

	ID   string
	Conn Conn

	roomID   string
	playerID string

	lastPingID     int64
	lastPingSentAt time.Time
	lastPongAt     time.Time
	lastMessageAt  time.Time
	rttMs          int64

	limiter *rate.Limiter
}

func newSession(id string, conn Conn, now time.Time) *Session {
	return &Session{
		ID:            id,
		Conn:          conn,
		lastMessageAt: now,
		limiter:       rate.NewLimiter(rate.Limit(config.InputRefillPerSecond), config.InputBucketCapacity),
	}
}

// Touch records inbound traffic. Every frame, including malformed and
// unknown ones, counts against idle eviction.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastMessageAt = now
	s.mu.Unlock()
}

// AllowInput consumes one token from the input bucket.
func (s *Session) AllowInput(now time.Time) bool {
	return s.limiter.AllowN(now, 1)
}

// Bind attaches the session to a room and player.
func (s *Session) Bind(roomID, playerID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.playerID = playerID
	s.mu.Unlock()
}

// Unbind detaches the session from its room and player.
func (s *Session) Unbind() {
	s.mu.Lock()
	s.roomID = ""
	s.playerID = ""
	s.mu.Unlock()
}

// Bound returns the current binding, if any.
func (s *Session) Bound() (roomID, playerID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.playerID, s.roomID != ""
}

// MarkPing records an outgoing heartbeat ping.
func (s *Session) MarkPing(pingID int64, now time.Time) {
	s.mu.Lock()
	s.lastPingID = pingID
	s.lastPingSentAt = now
	s.mu.Unlock()
}

// HandlePong matches a pong against the outstanding ping. On a match it
// updates the RTT measurement and returns it.
func (s *Session) HandlePong(pingID int64, now time.Time) (rttMs int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pingID != s.lastPingID || s.lastPingSentAt.IsZero() {
		return 0, false
	}
	s.rttMs = now.Sub(s.lastPingSentAt).Milliseconds()
	s.lastPongAt = now
	return s.rttMs, true
}

// RTT returns the last measured round-trip time in milliseconds.
func (s *Session) RTT() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rttMs
}

// idle reports whether the session should be evicted at time now: either
// the last ping has gone unanswered for PongTimeout, or nothing at all has
// arrived for IdleTimeout.
func (s *Session) idle(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastPingSentAt.IsZero() && s.lastPongAt.Before(s.lastPingSentAt) &&
		now.Sub(s.lastPingSentAt) > config.PongTimeout {
		return true
	}
	return now.Sub(s.lastMessageAt) > config.IdleTimeout
}
