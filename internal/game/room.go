package game

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/geom"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/network"
	"github.com/wormy/server/internal/session"
)

// Room is an isolated game world.
//
// Thread Safety:
// All room state is guarded by a single mutex. The tick and broadcast
// phases run on the room's own goroutine; input application and admin
// reads take the same lock, so the player map, food list, and body
// polylines never see two concurrent writers.
//
// The simulation never suspends while holding the lock: sends go through
// the sessions' buffered, drop-on-full transport.
type Room struct {
	mu sync.Mutex

	ID  string
	cfg config.RoomConfig

	players map[string]*Player
	order   []string // player ids in insertion order

	foods      []*Food
	nextFoodID uint64

	// Tick duration ring, observability only.
	tickDur  [config.TickDurationRingSize]time.Duration
	tickIdx  int
	tickSeen int

	emptySince      time.Time
	lastBroadcastAt time.Time

	minimap   *network.Minimap
	minimapAt time.Time

	rng    *rand.Rand
	now    func() time.Time
	logger *zap.Logger
	events *metrics.EventLog

	running atomic.Bool
	closed  atomic.Bool
	stop    chan struct{}

	// onExpired is invoked (off the room lock) when the empty-room TTL
	// elapses; the manager closes and removes the room.
	onExpired func(roomID string)
}

// NewRoom creates a room with its own PRNG. The room is not started;
// call Start to begin the tick loop.
func NewRoom(id string, cfg config.RoomConfig, seed int64, logger *zap.Logger, events *metrics.EventLog) *Room {
	r := &Room{
		ID:      id,
		cfg:     cfg,
		players: make(map[string]*Player),
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
		logger:  logger.With(zap.String("room", id)),
		events:  events,
		stop:    make(chan struct{}),
	}
	r.emptySince = r.now()
	return r
}

// SetClock overrides the room clock. Test hook.
func (r *Room) SetClock(now func() time.Time) {
	r.now = now
	r.mu.Lock()
	r.emptySince = now()
	r.mu.Unlock()
}

// SetOnExpired installs the manager's empty-TTL callback.
func (r *Room) SetOnExpired(fn func(roomID string)) {
	r.onExpired = fn
}

// Config returns a copy of the current configuration.
func (r *Room) Config() config.RoomConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// UpdateConfig replaces the room configuration. The caller validates.
func (r *Room) UpdateConfig(cfg config.RoomConfig) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// PlayerCount returns the current number of players.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Closed reports whether Close has run.
func (r *Room) Closed() bool {
	return r.closed.Load()
}

// Start begins the room's tick and broadcast loop.
// Safe to call multiple times - subsequent calls are no-ops.
func (r *Room) Start() {
	if r.running.Swap(true) {
		return
	}
	go r.loop()
	r.logger.Info("room started")
}

// Close stops the loop and disconnects every player session with a
// normal close. Safe to call multiple times.
func (r *Room) Close(reason string) {
	if r.closed.Swap(true) {
		return
	}
	if r.running.Swap(false) {
		close(r.stop)
	}

	r.mu.Lock()
	players := r.orderedPlayers()
	r.players = make(map[string]*Player)
	r.order = nil
	r.mu.Unlock()

	for _, p := range players {
		if p.Session != nil {
			p.Session.Unbind()
			p.Session.Conn.Close(config.CloseNormal, "room closed")
		}
	}
	r.logger.Info("room closed", zap.String("reason", reason))
}

// loop drives the fixed-timestep tick and the broadcast ticker. Each
// ticker keeps its own period, but both are served by this goroutine, so
// a slow broadcast delays the next tick until it returns.
func (r *Room) loop() {
	tick := time.NewTicker(time.Second / config.TickRate)
	defer tick.Stop()

	rate := r.broadcastRate()
	bcast := time.NewTicker(time.Second / time.Duration(rate))
	defer bcast.Stop()

	for {
		select {
		case <-r.stop:
			return

		case <-tick.C:
			if expired := r.Tick(config.TickInterval); expired && r.onExpired != nil {
				r.onExpired(r.ID)
				return
			}

		case <-bcast.C:
			// The broadcast rate is configurable at runtime; pick up
			// changes between frames.
			if next := r.broadcastRate(); next != rate {
				rate = next
				bcast.Reset(time.Second / time.Duration(rate))
			}
			r.Broadcast()
		}
	}
}

func (r *Room) broadcastRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rate := r.cfg.BroadcastRatePerSecond
	if rate < config.MinBroadcastRate || rate > config.MaxBroadcastRate {
		rate = config.DefaultBroadcastRate
	}
	return rate
}

// Tick advances the simulation by dt seconds. Returns true when the
// empty-room TTL has elapsed and the room should be closed.
//
// Phases run in a fixed order: motion, food interaction, collisions,
// replenishment. Empty rooms only run the TTL step.
func (r *Room) Tick(dt float64) (expired bool) {
	start := r.now()

	r.mu.Lock()
	if len(r.players) == 0 {
		if r.emptySince.IsZero() {
			r.emptySince = start
		}
		ttl := r.cfg.EmptyRoomTtlSeconds
		expired = ttl > 0 && start.Sub(r.emptySince).Seconds() >= ttl
		r.mu.Unlock()
		return expired
	}

	r.stepMotion(dt)
	r.stepFood(dt)
	r.stepCollisions()
	r.stepReplenish()
	r.mu.Unlock()

	r.recordTickDuration(r.now().Sub(start))
	return false
}

// recordTickDuration appends to the fixed-size ring.
func (r *Room) recordTickDuration(d time.Duration) {
	r.mu.Lock()
	r.tickDur[r.tickIdx] = d
	r.tickIdx = (r.tickIdx + 1) % config.TickDurationRingSize
	if r.tickSeen < config.TickDurationRingSize {
		r.tickSeen++
	}
	r.mu.Unlock()
}

// TickDurations returns the recorded tick durations, oldest first.
func (r *Room) TickDurations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]time.Duration, 0, r.tickSeen)
	if r.tickSeen < config.TickDurationRingSize {
		out = append(out, r.tickDur[:r.tickSeen]...)
		return out
	}
	out = append(out, r.tickDur[r.tickIdx:]...)
	out = append(out, r.tickDur[:r.tickIdx]...)
	return out
}

// orderedPlayers returns players in insertion order. Caller holds the
// lock. Iteration order is deterministic so ties and scans reproduce
// under a fixed clock and PRNG.
func (r *Room) orderedPlayers() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.players[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) clampToMap(pos geom.Point) geom.Point {
	half := r.cfg.MapSize
	return geom.Point{
		X: geom.Clamp(pos.X, -half, half),
		Y: geom.Clamp(pos.Y, -half, half),
	}
}

// AddPlayer admits a player, picks a spawn position away from everyone
// else, and gives it a random initial heading.
func (r *Room) AddPlayer(name string, sess *session.Session) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) >= r.cfg.MaxPlayers {
		return nil, ErrRoomFull
	}

	pos := r.spawnPosition()
	dir := geom.NormalizeAngle(r.rng.Float64() * 2 * math.Pi)

	p := &Player{
		ID:        uuid.NewString(),
		Name:      name,
		Pos:       pos,
		Dir:       dir,
		TargetDir: dir,
		Body:      []geom.Point{pos},
		Session:   sess,
		JoinedAt:  r.now(),
	}

	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	r.emptySince = time.Time{}

	metrics.PlayersJoined.Add(1)
	r.events.Append(metrics.Event{Ts: r.now(), Kind: "player_joined", RoomID: r.ID, Detail: name})
	r.logger.Info("player joined", zap.String("player", p.ID), zap.String("name", name))
	return p, nil
}

// RemovePlayer drops a player and unbinds its session. Safe on unknown
// ids. Used by the disconnect path; deaths go through stepCollisions.
func (r *Room) RemovePlayer(playerID string) {
	r.mu.Lock()
	p, ok := r.players[playerID]
	if ok {
		r.removePlayerLocked(playerID)
	}
	r.mu.Unlock()

	if ok && p.Session != nil {
		p.Session.Unbind()
	}
}

// removePlayerLocked removes the player from the map and order slice and
// stamps emptySince when the room drains. Caller holds the lock.
func (r *Room) removePlayerLocked(playerID string) {
	delete(r.players, playerID)
	for i, id := range r.order {
		if id == playerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if len(r.players) == 0 {
		r.emptySince = r.now()
	}
}

// GetPlayer returns the player with the given id.
func (r *Room) GetPlayer(playerID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	return p, ok
}

// ApplyInput runs the in-room half of the input pipeline: anti-spoof
// (the addressed player's bound session must be the sender), the token
// bucket, and field validation. Accepted inputs take effect on the next
// tick; arrival order is preserved because the caller is the session's
// single reader goroutine.
func (r *Room) ApplyInput(sender *session.Session, frame *network.InputFrame) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[frame.PlayerID]
	if !ok || p.Session != sender {
		metrics.InputSpoofRejected.Add(1)
		r.logger.Warn("input spoof rejected",
			zap.String("session", sender.ID),
			zap.String("claimed", frame.PlayerID))
		return
	}

	if !sender.AllowInput(now) {
		metrics.InputThrottled.Add(1)
		return
	}

	if frame.DirectionRad != nil {
		d := *frame.DirectionRad
		if math.IsNaN(d) || math.IsInf(d, 0) {
			metrics.InputInvalid.Add(1)
			r.logger.Warn("non-finite direction", zap.String("player", p.ID))
			return
		}
		p.TargetDir = geom.NormalizeAngle(d)
	}
	if frame.Boosting != nil {
		p.Boosting = *frame.Boosting
	}
}

// PlayerViews returns the full roster in insertion order, for the admin
// surface and the spectator snapshot.
func (r *Room) PlayerViews() []network.PlayerView {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]network.PlayerView, 0, len(r.order))
	for _, p := range r.orderedPlayers() {
		out = append(out, network.PlayerView{
			ID:       p.ID,
			Name:     p.Name,
			X:        p.Pos.X,
			Y:        p.Pos.Y,
			Dir:      p.Dir,
			Score:    int64(math.Round(p.Score)),
			Boosting: p.Boosting,
		})
	}
	return out
}

// FoodCount returns the current number of food items.
func (r *Room) FoodCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.foods)
}

// Error definitions
var ErrRoomFull = &RoomError{message: "room is full"}

// RoomError represents an error related to room operations.
type RoomError struct {
	message string
}

func (e *RoomError) Error() string {
	return e.message
}
