package matchmaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/session"
)

type mockConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	code   int
	reason string
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
	c.reason = reason
	return nil
}

func (c *mockConn) RemoteAddr() string { return "test" }

func (c *mockConn) closeInfo() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.reason
}

func newTestManager() *Manager {
	m := NewManager(zap.NewNop(), metrics.NewEventLog())
	m.SetSeedFunc(func() int64 { return 7 })
	return m
}

func join(t *testing.T, m *Manager, name string) (string, string, *mockConn) {
	t.Helper()
	conn := &mockConn{}
	reg := session.NewRegistry(zap.NewNop())
	sess := reg.Add(conn)

	room := m.FindOrCreateWithSlot()
	p, err := room.AddPlayer(name, sess)
	require.NoError(t, err)
	sess.Bind(room.ID, p.ID)
	return room.ID, p.ID, conn
}

func TestFindOrCreateFillsExistingRoomFirst(t *testing.T) {
	m := newTestManager()

	roomA, _, _ := join(t, m, "one")
	roomB, _, _ := join(t, m, "two")
	assert.Equal(t, roomA, roomB, "second player lands in the same room")
	assert.Equal(t, 1, m.GetStats().TotalRooms)
}

func TestFindOrCreateOpensNewRoomWhenFull(t *testing.T) {
	m := newTestManager()
	cfg := config.DefaultRoomConfig()
	cfg.MaxPlayers = 2
	require.Empty(t, m.SetDefault(cfg))

	roomA, _, _ := join(t, m, "one")
	_, _, _ = join(t, m, "two")
	roomB, _, _ := join(t, m, "three")

	assert.NotEqual(t, roomA, roomB)
	assert.Equal(t, 2, m.GetStats().TotalRooms)
}

func TestCreateValidatesPatch(t *testing.T) {
	m := newTestManager()

	bad := -5.0
	_, errs := m.Create(config.RoomConfigPatch{FoodCoveragePercent: &bad})
	require.NotEmpty(t, errs)
	assert.Equal(t, "foodCoveragePercent", errs[0].Field)

	size := 2000.0
	room, errs := m.Create(config.RoomConfigPatch{MapSize: &size})
	require.Empty(t, errs)
	assert.Equal(t, 2000.0, room.Config().MapSize)
	defer m.Close(room.ID, ReasonManual)
}

func TestSetDefaultAffectsOnlyNewRooms(t *testing.T) {
	m := newTestManager()

	before, errs := m.Create(config.RoomConfigPatch{})
	require.Empty(t, errs)

	cfg := m.DefaultConfig()
	cfg.MaxPlayers = 7
	require.Empty(t, m.SetDefault(cfg))

	after, errs := m.Create(config.RoomConfigPatch{})
	require.Empty(t, errs)

	assert.NotEqual(t, 7, before.Config().MaxPlayers)
	assert.Equal(t, 7, after.Config().MaxPlayers)
}

func TestSetDefaultRejectsInvalid(t *testing.T) {
	m := newTestManager()
	cfg := m.DefaultConfig()
	cfg.MaxPlayers = 100000
	assert.NotEmpty(t, m.SetDefault(cfg))
}

func TestCloseIsIdempotent(t *testing.T) {
	m := newTestManager()
	roomID, _, conn := join(t, m, "resident")

	manualBefore := metrics.RoomsClosedManual.Value()
	assert.True(t, m.Close(roomID, ReasonManual))
	assert.False(t, m.Close(roomID, ReasonManual), "second close reports not found")
	assert.Equal(t, manualBefore+1, metrics.RoomsClosedManual.Value())

	closed, code, reason := conn.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, config.CloseNormal, code)
	assert.Equal(t, "room closed", reason)

	_, found := m.Get(roomID)
	assert.False(t, found)
}

func TestEmptyRoomTimesOut(t *testing.T) {
	m := newTestManager()

	ttl := 1.0
	room, errs := m.Create(config.RoomConfigPatch{EmptyRoomTtlSeconds: &ttl})
	require.Empty(t, errs)

	timeoutBefore := metrics.RoomsClosedTimeout.Value()

	assert.Eventually(t, func() bool {
		_, found := m.Get(room.ID)
		return !found
	}, 5*time.Second, 20*time.Millisecond, "room should auto-close after its TTL")

	assert.Equal(t, timeoutBefore+1, metrics.RoomsClosedTimeout.Value())
}

func TestKickClosesSessionWithCode(t *testing.T) {
	m := newTestManager()
	roomID, playerID, conn := join(t, m, "troublemaker")

	require.True(t, m.Kick(roomID, playerID))

	closed, code, reason := conn.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, config.CloseKicked, code)
	assert.Equal(t, "kicked", reason)

	room, _ := m.Get(roomID)
	assert.Zero(t, room.PlayerCount())

	assert.False(t, m.Kick(roomID, playerID), "kicked player is gone")
	assert.False(t, m.Kick("no-room", playerID))
}

func TestBanKicksMatchingPlayersEverywhere(t *testing.T) {
	m := newTestManager()
	cfg := config.DefaultRoomConfig()
	cfg.MaxPlayers = 2
	require.Empty(t, m.SetDefault(cfg))

	_, _, conn1 := join(t, m, "Cheater")
	_, _, _ = join(t, m, "honest")
	_, _, conn2 := join(t, m, "cheater") // second room, case differs

	bansBefore := metrics.BansIssued.Value()
	m.Ban("CHEATER")

	for _, conn := range []*mockConn{conn1, conn2} {
		closed, code, reason := conn.closeInfo()
		assert.True(t, closed)
		assert.Equal(t, config.CloseBanned, code)
		assert.Equal(t, "banned", reason)
	}
	assert.True(t, m.IsBanned("cheater"))
	assert.True(t, m.IsBanned("ChEaTeR"))
	assert.Equal(t, bansBefore+1, metrics.BansIssued.Value())

	// Idempotent: the counter does not advance again.
	m.Ban("cheater")
	assert.Equal(t, bansBefore+1, metrics.BansIssued.Value())
}
