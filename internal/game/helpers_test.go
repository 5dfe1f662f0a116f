package game

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/geom"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/session"
)

// fakeClock is a hand-advanced clock shared by a test's room and registry.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// mockConn records everything sent or closed on a session transport.
type mockConn struct {
	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	code     int
	reason   string
	sendFail bool
}

func (c *mockConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendFail {
		return errSendFull
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *mockConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.code = code
	c.reason = reason
	return nil
}

func (c *mockConn) RemoteAddr() string { return "test" }

func (c *mockConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

var errSendFull = &RoomError{message: "send buffer full"}

// newTestRoom builds an unstarted room on a fake clock with a fixed seed.
func newTestRoom(cfg config.RoomConfig, clock *fakeClock) *Room {
	r := NewRoom("room-under-test", cfg, 42, zap.NewNop(), metrics.NewEventLog())
	r.SetClock(clock.Now)
	return r
}

// newTestSession builds a registry-backed session over a mock transport.
func newTestSession(clock *fakeClock) (*session.Session, *mockConn) {
	reg := session.NewRegistry(zap.NewNop())
	reg.SetClock(clock.Now)
	conn := &mockConn{}
	return reg.Add(conn), conn
}

// addTestPlayer joins a player and pins it to a known position and score.
func addTestPlayer(r *Room, clock *fakeClock, name string, pos geom.Point, score float64) (*Player, *session.Session, *mockConn) {
	sess, conn := newTestSession(clock)
	p, err := r.AddPlayer(name, sess)
	if err != nil {
		panic(err)
	}
	sess.Bind(r.ID, p.ID)
	p.Pos = pos
	p.Score = score
	p.Body = []geom.Point{pos}
	return p, sess, conn
}
