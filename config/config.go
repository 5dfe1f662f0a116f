// Package config holds the simulation constants and the per-room
// configuration schema with its validation ranges.
package config

import (
	"fmt"
	"time"
)

// Simulation constants - tuned together with the client, change with care
const (
	// Timing
	TickRate     = 20 // Hz
	TickInterval = 1.0 / float64(TickRate)

	// Broadcast rate bounds (the effective rate is per-room config)
	MinBroadcastRate     = 5
	MaxBroadcastRate     = 20
	DefaultBroadcastRate = 20

	// Heartbeat / eviction
	HeartbeatInterval = 2 * time.Second
	IdleSweepInterval = 5 * time.Second
	PongTimeout       = 30 * time.Second
	IdleTimeout       = 10 * time.Minute

	// Input pipeline
	InputBucketCapacity  = 45
	InputRefillPerSecond = 30
	MaxNameLength        = 20

	// Movement
	BaseSpeed       = 220.0 // world units per second at score 0
	SpeedScoreDrag  = 0.004 // speed = BaseSpeed / (1 + drag*score)
	BoostMultiplier = 1.55
	TurnRateMax     = 7.0  // rad/s for small worms
	TurnRateMin     = 2.2  // rad/s for giants
	TurnRateScale   = 80.0 // sqrt(score)/scale maps onto [0,1]

	// Body
	BaseLength     = 120.0
	LengthPerScore = 2.5
	BaseRadius     = 6.0
	RadiusPerSqrt  = 0.6

	// Boost cost
	BoostDrainFactor = 0.002
	BoostDrainMin    = 0.1
	BoostDrainMax    = 1.5
	BoostDropChance  = 0.3
	BoostDropValue   = 0.5
	BoostDropJitter  = 4.0

	// Suction
	SuctionRadiusBase = 120.0
	SuctionRadiusSqrt = 14.0
	SuctionRadiusSoft = 600.0  // pre-multiplier cap
	SuctionRadiusHard = 2000.0 // post-multiplier cap
	SuctionPullBase   = 140.0
	SuctionPullSqrt   = 6.0
	SuctionPullMax    = 220.0

	// Collision
	CollisionBroadPad  = 200.0 // head distance quick-reject padding
	CollisionNeckSkip  = 12    // head-adjacent points excluded from body tests
	CollisionStride    = 3
	BodyThicknessMin   = 3.0
	BodyThicknessScale = 0.6
	HeadToHeadFactor   = 0.5

	// Spawning
	SpawnCandidates = 20
	SpawnMargin     = 200.0
	SpawnClearance  = 900.0

	// Food ecosystem
	FoodDensityBase  = 2000.0 // desired = pct/100 * base
	FoodClusterMin   = 15
	FoodClusterMax   = 55
	FoodNearRadius   = 1500.0
	FoodTopUpRingMin = 900.0
	FoodTopUpRingMax = 1500.0
	DeathDropStride  = 4
	DeathDropJitter  = 6.0

	// Broadcast interest management
	FoodVisibilityRadius   = 1800.0
	FoodVisibilityCap      = 250
	PlayerVisibilityRadius = 2600.0
	PlayerVisibilityCap    = 40
	BodyPointCap           = 60
	BodyTailWindow         = 180
	LeaderboardSize        = 10
	MinimapCellSize        = 600.0
	MinimapCellCap         = 200
	MinimapRefresh         = 500 * time.Millisecond

	// Observability
	TickDurationRingSize = 200
	EventLogSize         = 500
)

// WebSocket close codes
const (
	CloseNormal       = 1000
	CloseUnauthorized = 1008
	CloseKicked       = 4000
	CloseBanned       = 4001
	CloseInactive     = 4002
)

// RoomConfig is the per-room tunable configuration. All fields are
// validated against the ranges in Validate before a room is created or
// patched.
type RoomConfig struct {
	MapSize                   float64 `json:"mapSize"`
	MaxPlayers                int     `json:"maxPlayers"`
	FoodCoveragePercent       float64 `json:"foodCoveragePercent"`
	FoodSpawnRatePerSecond    float64 `json:"foodSpawnRatePerSecond"`
	EmptyRoomTtlSeconds       float64 `json:"emptyRoomTtlSeconds"`
	SuctionRadiusMultiplier   float64 `json:"suctionRadiusMultiplier"`
	SuctionStrengthMultiplier float64 `json:"suctionStrengthMultiplier"`
	FoodValueMultiplier       float64 `json:"foodValueMultiplier"`
	FoodNearPlayerTarget      int     `json:"foodNearPlayerTarget"`
	BodyRadiusMultiplier      float64 `json:"bodyRadiusMultiplier"`
	BodyLengthMultiplier      float64 `json:"bodyLengthMultiplier"`
	BroadcastRatePerSecond    int     `json:"broadcastRatePerSecond"`
}

// DefaultRoomConfig returns the baseline room configuration.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		MapSize:                   5000,
		MaxPlayers:                60,
		FoodCoveragePercent:       25,
		FoodSpawnRatePerSecond:    200,
		EmptyRoomTtlSeconds:       300,
		SuctionRadiusMultiplier:   1,
		SuctionStrengthMultiplier: 1,
		FoodValueMultiplier:       1,
		FoodNearPlayerTarget:      80,
		BodyRadiusMultiplier:      1,
		BodyLengthMultiplier:      1,
		BroadcastRatePerSecond:    DefaultBroadcastRate,
	}
}

// FieldError names a single invalid configuration field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks every field against its allowed range and returns the
// full list of violations (empty means valid).
func (c RoomConfig) Validate() []FieldError {
	var errs []FieldError
	check := func(field string, v, lo, hi float64) {
		if v < lo || v > hi {
			errs = append(errs, FieldError{
				Field:  field,
				Reason: fmt.Sprintf("must be in [%g, %g]", lo, hi),
			})
		}
	}
	check("mapSize", c.MapSize, 1000, 20000)
	check("maxPlayers", float64(c.MaxPlayers), 2, 500)
	check("foodCoveragePercent", c.FoodCoveragePercent, 0, 50)
	check("foodSpawnRatePerSecond", c.FoodSpawnRatePerSecond, 0, 10000)
	check("emptyRoomTtlSeconds", c.EmptyRoomTtlSeconds, 0, 3600)
	check("suctionRadiusMultiplier", c.SuctionRadiusMultiplier, 0, 5)
	check("suctionStrengthMultiplier", c.SuctionStrengthMultiplier, 0, 5)
	check("foodValueMultiplier", c.FoodValueMultiplier, 0, 10)
	check("foodNearPlayerTarget", float64(c.FoodNearPlayerTarget), 0, 400)
	check("bodyRadiusMultiplier", c.BodyRadiusMultiplier, 0, 10)
	check("bodyLengthMultiplier", c.BodyLengthMultiplier, 0, 10)
	check("broadcastRatePerSecond", float64(c.BroadcastRatePerSecond), MinBroadcastRate, MaxBroadcastRate)
	return errs
}

// RoomConfigPatch is a partial RoomConfig as received from the admin API.
// Nil fields are left untouched by Apply.
type RoomConfigPatch struct {
	MapSize                   *float64 `json:"mapSize,omitempty"`
	MaxPlayers                *int     `json:"maxPlayers,omitempty"`
	FoodCoveragePercent       *float64 `json:"foodCoveragePercent,omitempty"`
	FoodSpawnRatePerSecond    *float64 `json:"foodSpawnRatePerSecond,omitempty"`
	EmptyRoomTtlSeconds       *float64 `json:"emptyRoomTtlSeconds,omitempty"`
	SuctionRadiusMultiplier   *float64 `json:"suctionRadiusMultiplier,omitempty"`
	SuctionStrengthMultiplier *float64 `json:"suctionStrengthMultiplier,omitempty"`
	FoodValueMultiplier       *float64 `json:"foodValueMultiplier,omitempty"`
	FoodNearPlayerTarget      *int     `json:"foodNearPlayerTarget,omitempty"`
	BodyRadiusMultiplier      *float64 `json:"bodyRadiusMultiplier,omitempty"`
	BodyLengthMultiplier      *float64 `json:"bodyLengthMultiplier,omitempty"`
	BroadcastRatePerSecond    *int     `json:"broadcastRatePerSecond,omitempty"`
}

// Apply merges the patch over base and returns the result.
func (p RoomConfigPatch) Apply(base RoomConfig) RoomConfig {
	out := base
	if p.MapSize != nil {
		out.MapSize = *p.MapSize
	}
	if p.MaxPlayers != nil {
		out.MaxPlayers = *p.MaxPlayers
	}
	if p.FoodCoveragePercent != nil {
		out.FoodCoveragePercent = *p.FoodCoveragePercent
	}
	if p.FoodSpawnRatePerSecond != nil {
		out.FoodSpawnRatePerSecond = *p.FoodSpawnRatePerSecond
	}
	if p.EmptyRoomTtlSeconds != nil {
		out.EmptyRoomTtlSeconds = *p.EmptyRoomTtlSeconds
	}
	if p.SuctionRadiusMultiplier != nil {
		out.SuctionRadiusMultiplier = *p.SuctionRadiusMultiplier
	}
	if p.SuctionStrengthMultiplier != nil {
		out.SuctionStrengthMultiplier = *p.SuctionStrengthMultiplier
	}
	if p.FoodValueMultiplier != nil {
		out.FoodValueMultiplier = *p.FoodValueMultiplier
	}
	if p.FoodNearPlayerTarget != nil {
		out.FoodNearPlayerTarget = *p.FoodNearPlayerTarget
	}
	if p.BodyRadiusMultiplier != nil {
		out.BodyRadiusMultiplier = *p.BodyRadiusMultiplier
	}
	if p.BodyLengthMultiplier != nil {
		out.BodyLengthMultiplier = *p.BodyLengthMultiplier
	}
	if p.BroadcastRatePerSecond != nil {
		out.BroadcastRatePerSecond = *p.BroadcastRatePerSecond
	}
	return out
}

// ServerConfig is the process-level configuration loaded from environment.
type ServerConfig struct {
	Host       string
	Port       int
	AdminToken string
	EnableCORS bool
}

// DefaultServerConfig returns default server configuration.
// AdminToken has no default: startup fails without one.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:       "0.0.0.0",
		Port:       8080,
		EnableCORS: true,
	}
}
