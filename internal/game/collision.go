package game

import (
	"math"

	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/geom"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/network"
)

// stepCollisions runs the death scan for one tick and processes the
// casualties. Caller holds the room lock.
//
// For every ordered pair (a, b) in insertion order, a's head is tested
// against b's body polyline (tail walk, stride 3, excluding the 12
// head-adjacent points) and then head-to-head. Self-collision never
// kills. Deaths are collected during the scan and processed afterwards:
// body remains drop as food, the victim gets a dead frame before its
// session is unbound, and the player is removed.
func (r *Room) stepCollisions() {
	players := r.orderedPlayers()
	if len(players) < 2 {
		return
	}

	radiusMult := r.cfg.BodyRadiusMultiplier
	dead := make(map[string]bool)

	for _, a := range players {
		if dead[a.ID] {
			continue
		}
		ra := a.Radius(radiusMult)

		for _, b := range players {
			if a == b {
				continue
			}
			rb := b.Radius(radiusMult)

			// Broad phase: heads further apart than any body could
			// reach cannot interact.
			broad := ra + rb + config.CollisionBroadPad
			headD2 := geom.Dist2(a.Pos, b.Pos)
			if headD2 > broad*broad {
				continue
			}

			if r.hitsBody(a, b, ra, rb) {
				dead[a.ID] = true
				break
			}

			// Head-to-head: the lighter worm dies; on equal scores the
			// ordered pair decides, so the earlier-inserted player of
			// the two goes down.
			if headD2 < config.HeadToHeadFactor*(ra+rb)*(ra+rb) {
				switch {
				case a.Score < b.Score:
					dead[a.ID] = true
				case b.Score < a.Score:
					if !dead[b.ID] {
						dead[b.ID] = true
					}
				default:
					// Exactly one dies on a tie: the first resolution of
					// this pair stands, the mirrored ordering is a no-op.
					if !dead[b.ID] {
						dead[a.ID] = true
					}
				}
				if dead[a.ID] {
					break
				}
			}
		}
	}

	if len(dead) == 0 {
		return
	}

	for _, p := range players {
		if !dead[p.ID] {
			continue
		}
		r.killPlayer(p)
	}
}

// hitsBody reports whether a's head touches b's body. The last 12 points
// next to b's head are skipped so worms can cross right behind a head
// without instantly dying.
func (r *Room) hitsBody(a, b *Player, ra, rb float64) bool {
	n := len(b.Body)
	limit := n - config.CollisionNeckSkip
	if limit <= 0 {
		return false
	}

	thickness := math.Max(config.BodyThicknessMin, rb*config.BodyThicknessScale)
	kill := ra + thickness
	kill2 := kill * kill

	for k := 0; k < limit; k += config.CollisionStride {
		end := k + 1
		if end > n-config.CollisionNeckSkip-1 {
			end = n - config.CollisionNeckSkip - 1
		}
		if geom.PointSegmentDist2(a.Pos, b.Body[k], b.Body[end]) < kill2 {
			return true
		}
	}
	return false
}

// killPlayer processes one death: remains become food, the dead frame is
// delivered before the session close ordering, and the player is removed
// with its session unbound. Caller holds the room lock.
func (r *Room) killPlayer(p *Player) {
	r.dropRemains(p, r.rng)

	if p.Session != nil {
		if err := p.Session.Conn.Send(network.EncodeDead()); err != nil {
			metrics.FramesDropped.Add(1)
		}
		p.Session.Unbind()
	}

	r.removePlayerLocked(p.ID)
	metrics.PlayersDied.Add(1)
	r.events.Append(metrics.Event{Ts: r.now(), Kind: "player_died", RoomID: r.ID, Detail: p.Name})
	r.logger.Info("player died",
		zap.String("player", p.ID),
		zap.Float64("score", p.Score))
}
