package game

import (
	"math"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/geom"
)

// stepMotion advances every player by dt seconds: turn toward the target
// heading, move the head, grow/trim the body, and pay for boost.
// Caller holds the room lock.
func (r *Room) stepMotion(dt float64) {
	for _, p := range r.orderedPlayers() {
		maxTurn := p.TurnRate() * dt
		p.Dir = geom.RotateTowards(p.Dir, p.TargetDir, maxTurn)

		speed := p.Speed()
		p.Pos = r.clampToMap(geom.Point{
			X: p.Pos.X + math.Cos(p.Dir)*speed*dt,
			Y: p.Pos.Y + math.Sin(p.Dir)*speed*dt,
		})

		p.Body = append(p.Body, p.Pos)
		p.Body = geom.TrimToLength(p.Body, p.TargetLength(r.cfg.BodyLengthMultiplier))

		if p.Boosting && p.Score > 1 {
			drain := geom.Clamp(config.BoostDrainFactor*p.Score,
				config.BoostDrainMin, config.BoostDrainMax)
			p.Score -= drain
			if p.Score < 0 {
				p.Score = 0
			}
			if r.rng.Float64() < config.BoostDropChance {
				pos := geom.Point{
					X: p.Pos.X + (r.rng.Float64()*2-1)*config.BoostDropJitter,
					Y: p.Pos.Y + (r.rng.Float64()*2-1)*config.BoostDropJitter,
				}
				r.foods = append(r.foods, r.newFood(r.clampToMap(pos), config.BoostDropValue))
			}
		}
	}
}

// spawnPosition picks a join point away from existing players: 20 random
// candidates inside the map margin, first one clear of everyone by 900
// units wins; otherwise the candidate with the most clearance.
// Caller holds the room lock.
func (r *Room) spawnPosition() geom.Point {
	half := r.cfg.MapSize - config.SpawnMargin
	clearance2 := config.SpawnClearance * config.SpawnClearance

	best := geom.Point{}
	bestMin := -1.0

	for i := 0; i < config.SpawnCandidates; i++ {
		candidate := geom.Point{
			X: r.rng.Float64()*2*half - half,
			Y: r.rng.Float64()*2*half - half,
		}

		minDist2 := math.Inf(1)
		for _, p := range r.orderedPlayers() {
			if d2 := geom.Dist2(candidate, p.Pos); d2 < minDist2 {
				minDist2 = d2
			}
		}

		if minDist2 > clearance2 {
			return candidate
		}
		if minDist2 > bestMin {
			bestMin = minDist2
			best = candidate
		}
	}
	return best
}
