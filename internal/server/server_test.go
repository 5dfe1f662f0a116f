package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/matchmaker"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/session"
)

type mockConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	code   int
}

func (c *mockConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *mockConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.code = code
	return nil
}

func (c *mockConn) RemoteAddr() string { return "test" }

func (c *mockConn) typed(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.sent))
	for _, raw := range c.sent {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func (c *mockConn) lastOfType(t *testing.T, kind string) map[string]any {
	t.Helper()
	frames := c.typed(t)
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i]["t"] == kind {
			return frames[i]
		}
	}
	return nil
}

type fixture struct {
	srv     *GameServer
	manager *matchmaker.Manager
	reg     *session.Registry
	now     time.Time
}

func newFixture() *fixture {
	logger := zap.NewNop()
	manager := matchmaker.NewManager(logger, metrics.NewEventLog())
	reg := session.NewRegistry(logger)
	srv := NewGameServer(config.DefaultServerConfig(), logger, reg, manager)

	f := &fixture{srv: srv, manager: manager, reg: reg, now: time.Unix(1_700_000_000, 0)}
	srv.SetClock(func() time.Time { return f.now })
	reg.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) connect() (*session.Session, *mockConn) {
	conn := &mockConn{}
	return f.reg.Add(conn), conn
}

func (f *fixture) frame(sess *session.Session, format string, args ...any) {
	f.srv.HandleFrame(sess, []byte(fmt.Sprintf(format, args...)))
}

func TestHelloJoinsARoom(t *testing.T) {
	f := newFixture()
	sess, conn := f.connect()

	f.frame(sess, `{"t":"hello","name":"  Slinky  "}`)

	joined := conn.lastOfType(t, "joined")
	require.NotNil(t, joined)
	roomID := joined["roomId"].(string)
	playerID := joined["playerId"].(string)

	boundRoom, boundPlayer, bound := sess.Bound()
	assert.True(t, bound)
	assert.Equal(t, roomID, boundRoom)
	assert.Equal(t, playerID, boundPlayer)

	room, ok := f.manager.Get(roomID)
	require.True(t, ok)
	p, ok := room.GetPlayer(playerID)
	require.True(t, ok)
	assert.Equal(t, "Slinky", p.Name, "name arrives trimmed")
}

func TestHelloRejectsEmptyName(t *testing.T) {
	f := newFixture()
	sess, conn := f.connect()

	f.frame(sess, `{"t":"hello","name":"   "}`)

	errFrame := conn.lastOfType(t, "error")
	require.NotNil(t, errFrame)
	assert.Equal(t, "INVALID_NAME", errFrame["error"])
	_, _, bound := sess.Bound()
	assert.False(t, bound)
}

func TestHelloTruncatesLongNames(t *testing.T) {
	f := newFixture()
	sess, conn := f.connect()

	f.frame(sess, `{"t":"hello","name":"abcdefghijklmnopqrstuvwxyz"}`)

	joined := conn.lastOfType(t, "joined")
	require.NotNil(t, joined)
	room, _ := f.manager.Get(joined["roomId"].(string))
	p, _ := room.GetPlayer(joined["playerId"].(string))
	assert.Equal(t, "abcdefghijklmnopqrst", p.Name)
	assert.Len(t, []rune(p.Name), config.MaxNameLength)
}

func TestHelloRejectsBannedName(t *testing.T) {
	f := newFixture()
	f.manager.Ban("Grief")

	sess, conn := f.connect()
	f.frame(sess, `{"t":"hello","name":"grief"}`)

	errFrame := conn.lastOfType(t, "error")
	require.NotNil(t, errFrame)
	assert.Equal(t, "BANNED", errFrame["error"])
	_, _, bound := sess.Bound()
	assert.False(t, bound)
}

func TestSecondHelloIgnored(t *testing.T) {
	f := newFixture()
	sess, conn := f.connect()

	f.frame(sess, `{"t":"hello","name":"once"}`)
	first := conn.lastOfType(t, "joined")

	f.frame(sess, `{"t":"hello","name":"twice"}`)
	second := conn.lastOfType(t, "joined")

	assert.Equal(t, first["playerId"], second["playerId"], "rejoin is silently ignored")
	assert.Equal(t, 1, f.manager.GetStats().TotalPlayers)
}

func TestInputBeforeHelloIsSpoof(t *testing.T) {
	f := newFixture()
	sess, _ := f.connect()

	before := metrics.InputSpoofRejected.Value()
	f.frame(sess, `{"t":"input","playerId":"whoever","directionRad":1}`)
	assert.Equal(t, before+1, metrics.InputSpoofRejected.Value())
}

func TestCrossSessionInputIsSpoof(t *testing.T) {
	f := newFixture()

	sessA, _ := f.connect()
	sessB, connB := f.connect()
	f.frame(sessA, `{"t":"hello","name":"alice"}`)
	f.frame(sessB, `{"t":"hello","name":"bob"}`)

	joinedB := connB.lastOfType(t, "joined")
	playerB := joinedB["playerId"].(string)
	roomID := joinedB["roomId"].(string)

	room, _ := f.manager.Get(roomID)
	pb, _ := room.GetPlayer(playerB)
	savedDir := pb.TargetDir

	before := metrics.InputSpoofRejected.Value()
	f.frame(sessA, `{"t":"input","playerId":%q,"directionRad":2.5,"boosting":true}`, playerB)

	assert.Equal(t, before+1, metrics.InputSpoofRejected.Value())
	assert.Equal(t, savedDir, pb.TargetDir, "player B state unchanged")
	assert.False(t, pb.Boosting)
}

func TestAcceptedInputSteersPlayer(t *testing.T) {
	f := newFixture()
	sess, conn := f.connect()
	f.frame(sess, `{"t":"hello","name":"pilot"}`)

	joined := conn.lastOfType(t, "joined")
	room, _ := f.manager.Get(joined["roomId"].(string))
	p, _ := room.GetPlayer(joined["playerId"].(string))

	f.frame(sess, `{"t":"input","playerId":%q,"directionRad":-1.25,"boosting":true}`, p.ID)

	assert.InDelta(t, -1.25, p.TargetDir, 1e-9)
	assert.True(t, p.Boosting)
}

func TestClientPingGetsPong(t *testing.T) {
	f := newFixture()
	sess, conn := f.connect()

	f.frame(sess, `{"t":"ping","pingId":123}`)

	pong := conn.lastOfType(t, "pong")
	require.NotNil(t, pong)
	assert.EqualValues(t, 123, pong["pingId"])
	assert.EqualValues(t, f.now.UnixMilli(), pong["now"])
}

func TestPongProducesLatencyFrame(t *testing.T) {
	f := newFixture()
	sess, conn := f.connect()

	f.reg.Heartbeat()
	pingID := f.now.UnixMilli()

	f.now = f.now.Add(42 * time.Millisecond)
	f.frame(sess, `{"t":"pong","pingId":%d}`, pingID)

	latency := conn.lastOfType(t, "latency")
	require.NotNil(t, latency)
	assert.EqualValues(t, 42, latency["rttMs"])
}

func TestUnknownAndMalformedFramesSilentlyDropped(t *testing.T) {
	f := newFixture()
	sess, conn := f.connect()

	f.frame(sess, `{"t":"teleport","x":9}`)
	f.frame(sess, `this is not json`)

	assert.Empty(t, conn.typed(t), "no reply to junk")
}

func TestWelcomeOnlyAfterUpgradePath(t *testing.T) {
	// HandleFrame never emits welcome on its own; the upgrade path does.
	f := newFixture()
	sess, conn := f.connect()
	f.frame(sess, `{"t":"ping"}`)
	assert.Nil(t, conn.lastOfType(t, "welcome"))
}
