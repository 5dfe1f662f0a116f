package game

import (
	"math"
	"math/rand"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/geom"
)

// Food is one edible item in a room. IDs are room-scoped and never reused.
type Food struct {
	ID    uint64
	Pos   geom.Point
	Value float64
}

// newFood allocates the next food id. Caller holds the room lock.
func (r *Room) newFood(pos geom.Point, value float64) *Food {
	r.nextFoodID++
	return &Food{ID: r.nextFoodID, Pos: pos, Value: value}
}

// spawnCluster drops a cluster of 15-55 food items around a random map
// point: polar offsets of radius U(20, 100) plus per-point jitter.
func (r *Room) spawnCluster(rng *rand.Rand) {
	half := r.cfg.MapSize
	center := geom.Point{
		X: rng.Float64()*2*half - half,
		Y: rng.Float64()*2*half - half,
	}
	count := config.FoodClusterMin + rng.Intn(config.FoodClusterMax-config.FoodClusterMin+1)

	for i := 0; i < count; i++ {
		angle := rng.Float64() * 2 * math.Pi
		radius := 20 + rng.Float64()*80
		pos := geom.Point{
			X: center.X + math.Cos(angle)*radius + (rng.Float64()*8 - 4),
			Y: center.Y + math.Sin(angle)*radius + (rng.Float64()*8 - 4),
		}
		pos = r.clampToMap(pos)
		r.foods = append(r.foods, r.newFood(pos, 1+rng.Float64()*3))
	}
}

// topUpAroundPlayer spawns the deficit between the nearby-food target and
// the current count on a ring around the player, so nobody ever stares at
// an empty screen.
func (r *Room) topUpAroundPlayer(p *Player, rng *rand.Rand) {
	target := r.cfg.FoodNearPlayerTarget
	if target <= 0 {
		return
	}

	nearby := 0
	near2 := config.FoodNearRadius * config.FoodNearRadius
	for _, f := range r.foods {
		if geom.Dist2(f.Pos, p.Pos) <= near2 {
			nearby++
		}
	}

	for i := nearby; i < target; i++ {
		angle := rng.Float64() * 2 * math.Pi
		dist := config.FoodTopUpRingMin +
			rng.Float64()*(config.FoodTopUpRingMax-config.FoodTopUpRingMin)
		pos := r.clampToMap(geom.Point{
			X: p.Pos.X + math.Cos(angle)*dist,
			Y: p.Pos.Y + math.Sin(angle)*dist,
		})
		r.foods = append(r.foods, r.newFood(pos, 1))
	}
}

// dropRemains converts a dead player's body into food: every 4th body
// point, value scaled down by body length, jittered so the pile spreads.
func (r *Room) dropRemains(p *Player, rng *rand.Rand) {
	bodyLen := len(p.Body)
	value := math.Max(0.5, p.Score/math.Max(10, float64(bodyLen)))

	for i := 0; i < bodyLen; i += config.DeathDropStride {
		pos := geom.Point{
			X: p.Body[i].X + (rng.Float64()*2-1)*config.DeathDropJitter,
			Y: p.Body[i].Y + (rng.Float64()*2-1)*config.DeathDropJitter,
		}
		r.foods = append(r.foods, r.newFood(r.clampToMap(pos), value))
	}
}

// stepFood runs consumption and suction for one tick. For each food,
// players are scanned in insertion order: the first player whose eating
// radius covers the food consumes it and nobody else gets a look this
// tick. Players in suction range pull the food toward their head without
// consuming it. Caller holds the room lock.
func (r *Room) stepFood(dt float64) {
	players := r.orderedPlayers()
	if len(players) == 0 {
		return
	}

	kept := r.foods[:0]
	for _, f := range r.foods {
		eaten := false
		for _, p := range players {
			eat := p.Radius(r.cfg.BodyRadiusMultiplier)
			d2 := geom.Dist2(f.Pos, p.Pos)

			if d2 <= eat*eat {
				p.Score += f.Value * r.cfg.FoodValueMultiplier
				eaten = true
				break
			}

			suction := p.SuctionRadius(r.cfg.SuctionRadiusMultiplier)
			if suction > 0 && d2 <= suction*suction && d2 > 0 {
				d := math.Sqrt(d2)
				step := p.SuctionPull(r.cfg.SuctionStrengthMultiplier) * dt
				if step > d {
					step = d
				}
				f.Pos.X += (p.Pos.X - f.Pos.X) / d * step
				f.Pos.Y += (p.Pos.Y - f.Pos.Y) / d * step
			}
		}
		if !eaten {
			kept = append(kept, f)
		}
	}
	// Zero the tail so consumed foods do not linger in the backing array.
	for i := len(kept); i < len(r.foods); i++ {
		r.foods[i] = nil
	}
	r.foods = kept
}

// stepReplenish keeps global density at the configured coverage and tops
// up each player's surroundings. Caller holds the room lock.
func (r *Room) stepReplenish() {
	desired := int(math.Floor(r.cfg.FoodCoveragePercent / 100 * config.FoodDensityBase))
	if len(r.foods) < desired {
		r.spawnCluster(r.rng)
	}

	for _, p := range r.orderedPlayers() {
		r.topUpAroundPlayer(p, r.rng)
	}
}
