// Package game implements the core simulation: rooms, players, food,
// the fixed-timestep tick, and the snapshot publisher.
package game

import (
	"math"
	"time"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/geom"
	"github.com/wormy/server/internal/session"
)

// Player is one worm in a room.
//
// The body polyline runs tail (index 0) to head (last index); its arc
// length is the worm's visible length. Session is a delivery handle, not
// an owned resource: the room's disconnect path frees the player, closing
// the session only unbinds.
type Player struct {
	ID   string
	Name string

	Score     float64
	Pos       geom.Point
	Dir       float64 // radians in (-π, π]
	TargetDir float64
	Boosting  bool
	Body      []geom.Point

	Session *session.Session

	JoinedAt time.Time
}

// TargetLength returns the arc length the body is trimmed to.
func (p *Player) TargetLength(lengthMult float64) float64 {
	return (config.BaseLength + config.LengthPerScore*p.Score) * lengthMult
}

// Radius returns the eating/collision radius.
func (p *Player) Radius(radiusMult float64) float64 {
	return (config.BaseRadius + config.RadiusPerSqrt*math.Sqrt(p.Score)) * radiusMult
}

// Speed returns the current movement speed in world units per second.
// Big worms are slower; boosting multiplies.
func (p *Player) Speed() float64 {
	speed := config.BaseSpeed / (1 + config.SpeedScoreDrag*p.Score)
	if p.Boosting {
		speed *= config.BoostMultiplier
	}
	return speed
}

// TurnRate returns the max turning speed in rad/s. Small worms are
// nimble, giants sweep.
func (p *Player) TurnRate() float64 {
	t := geom.Clamp(math.Sqrt(p.Score)/config.TurnRateScale, 0, 1)
	return geom.Clamp(geom.Lerp(config.TurnRateMax, config.TurnRateMin, t),
		config.TurnRateMin, config.TurnRateMax)
}

// SuctionRadius returns the food attraction radius, or 0 when suction is
// disabled by configuration.
func (p *Player) SuctionRadius(radiusMult float64) float64 {
	if radiusMult <= 0 {
		return 0
	}
	r := math.Min(config.SuctionRadiusSoft,
		config.SuctionRadiusBase+config.SuctionRadiusSqrt*math.Sqrt(p.Score))
	return math.Min(config.SuctionRadiusHard, r*radiusMult)
}

// SuctionPull returns the food pull speed in world units per second.
func (p *Player) SuctionPull(strengthMult float64) float64 {
	pull := math.Min(config.SuctionPullMax,
		config.SuctionPullBase+config.SuctionPullSqrt*math.Sqrt(p.Score))
	return pull * strengthMult
}
