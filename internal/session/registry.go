package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/network"
)

// Registry owns every live session and runs the heartbeat and idle-sweep
// tasks. Eviction closes the transport and drops the session from the
// registry; the connection's own cleanup path handles room removal.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	logger *zap.Logger
	now    func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the registry clock. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Add registers a new session for the given transport.
func (r *Registry) Add(conn Conn) *Session {
	s := newSession(uuid.NewString(), conn, r.now())

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	metrics.SessionsOpened.Add(1)
	return s
}

// Remove drops a session from the registry. Safe on unknown ids.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		metrics.SessionsClosed.Add(1)
	}
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Heartbeat sends a server ping to every open session and stamps the send
// time. Ping ids are the current Unix time in milliseconds.
func (r *Registry) Heartbeat() {
	now := r.now()
	pingID := now.UnixMilli()
	frame := network.EncodeServerPing(pingID)

	for _, s := range r.snapshot() {
		s.MarkPing(pingID, now)
		if err := s.Conn.Send(frame); err != nil {
			metrics.FramesDropped.Add(1)
		}
	}
}

// SweepIdle closes sessions that stopped answering pings or went silent.
func (r *Registry) SweepIdle() {
	now := r.now()
	for _, s := range r.snapshot() {
		if !s.idle(now) {
			continue
		}
		r.logger.Info("evicting idle session",
			zap.String("session", s.ID),
			zap.String("remote", s.Conn.RemoteAddr()))
		s.Conn.Close(config.CloseInactive, "inactive")
		r.Remove(s.ID)
	}
}

// Run drives the heartbeat and idle-sweep tickers until stop is closed.
// The two tasks are independent so a slow sweep never delays pings.
func (r *Registry) Run(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.Heartbeat()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(config.IdleSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.SweepIdle()
			}
		}
	}()
}
