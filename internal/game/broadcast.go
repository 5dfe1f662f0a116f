package game

import (
	"math"
	"sort"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/geom"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/network"
)

// Broadcast assembles and delivers one interest-managed state frame per
// recipient. Delivery is best-effort: a full transport buffer drops the
// frame and the recipient catches up on the next one.
func (r *Room) Broadcast() {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := r.orderedPlayers()
	if len(players) == 0 {
		return
	}

	now := r.now()
	serverNow := now.UnixMilli()
	leaderboard := r.leaderboardLocked(players)
	minimap := r.minimapLocked(players)

	for _, recipient := range players {
		if recipient.Session == nil {
			continue
		}
		frame := network.StateFrame{
			T:                    network.TypeState,
			ServerNow:            serverNow,
			You:                  recipient.ID,
			Foods:                r.visibleFoodsLocked(recipient),
			Players:              r.visiblePlayersLocked(recipient, players),
			Leaderboard:          leaderboard,
			Minimap:              minimap,
			BodyRadiusMultiplier: r.cfg.BodyRadiusMultiplier,
			BodyLengthMultiplier: r.cfg.BodyLengthMultiplier,
		}

		data := network.Encode(frame)
		if data == nil {
			continue
		}
		if err := recipient.Session.Conn.Send(data); err != nil {
			metrics.FramesDropped.Add(1)
			continue
		}
		metrics.FramesSent.Add(1)
	}

	r.lastBroadcastAt = now
}

// leaderboardLocked returns the top players by score, rounded, with ties
// kept in insertion order.
func (r *Room) leaderboardLocked(players []*Player) []network.LeaderboardEntry {
	ranked := make([]*Player, len(players))
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	n := len(ranked)
	if n > config.LeaderboardSize {
		n = config.LeaderboardSize
	}
	out := make([]network.LeaderboardEntry, 0, n)
	for _, p := range ranked[:n] {
		out = append(out, network.LeaderboardEntry{
			ID:    p.ID,
			Name:  p.Name,
			Score: int64(math.Round(p.Score)),
		})
	}
	return out
}

type minimapKey struct {
	cx, cy int
}

// minimapLocked returns the cached minimap, recomputing it when the
// cache has aged past the refresh interval. All recipients share one
// minimap per generation.
func (r *Room) minimapLocked(players []*Player) *network.Minimap {
	now := r.now()
	if r.minimap != nil && now.Sub(r.minimapAt) < config.MinimapRefresh {
		return r.minimap
	}

	cells := make(map[minimapKey]*network.MinimapCell)
	for _, f := range r.foods {
		key := minimapKey{
			cx: int(math.Floor(f.Pos.X / config.MinimapCellSize)),
			cy: int(math.Floor(f.Pos.Y / config.MinimapCellSize)),
		}
		cell, ok := cells[key]
		if !ok {
			cell = &network.MinimapCell{
				X: (float64(key.cx) + 0.5) * config.MinimapCellSize,
				Y: (float64(key.cy) + 0.5) * config.MinimapCellSize,
			}
			cells[key] = cell
		}
		cell.Value += f.Value
		cell.Count++
	}

	flat := make([]network.MinimapCell, 0, len(cells))
	for _, c := range cells {
		flat = append(flat, *c)
	}
	sort.Slice(flat, func(i, j int) bool {
		if flat[i].Value != flat[j].Value {
			return flat[i].Value > flat[j].Value
		}
		if flat[i].X != flat[j].X {
			return flat[i].X < flat[j].X
		}
		return flat[i].Y < flat[j].Y
	})
	if len(flat) > config.MinimapCellCap {
		flat = flat[:config.MinimapCellCap]
	}

	roster := make([]network.MinimapPlayer, 0, len(players))
	for _, p := range players {
		roster = append(roster, network.MinimapPlayer{
			ID:    p.ID,
			Name:  p.Name,
			Score: int64(math.Round(p.Score)),
			X:     math.Round(p.Pos.X),
			Y:     math.Round(p.Pos.Y),
		})
	}

	r.minimap = &network.Minimap{Cells: flat, Players: roster}
	r.minimapAt = now
	return r.minimap
}

// visibleFoodsLocked returns the recipient's food interest set:
// insertion-order first-fit within the visibility radius, capped.
func (r *Room) visibleFoodsLocked(recipient *Player) []network.FoodView {
	vis2 := config.FoodVisibilityRadius * config.FoodVisibilityRadius

	out := make([]network.FoodView, 0, 64)
	for _, f := range r.foods {
		if geom.Dist2(f.Pos, recipient.Pos) > vis2 {
			continue
		}
		out = append(out, network.FoodView{
			ID:    f.ID,
			X:     f.Pos.X,
			Y:     f.Pos.Y,
			Value: f.Value,
		})
		if len(out) >= config.FoodVisibilityCap {
			break
		}
	}
	return out
}

// visiblePlayersLocked returns the recipient's player interest set. The
// recipient is always present and always first; its own body rides along
// decimated to at most 60 of the trailing 180 points, head included.
func (r *Room) visiblePlayersLocked(recipient *Player, players []*Player) []network.PlayerView {
	out := make([]network.PlayerView, 0, 16)
	out = append(out, network.PlayerView{
		ID:       recipient.ID,
		Name:     recipient.Name,
		X:        recipient.Pos.X,
		Y:        recipient.Pos.Y,
		Dir:      recipient.Dir,
		Score:    int64(math.Round(recipient.Score)),
		Boosting: recipient.Boosting,
		Body:     decimateBody(recipient.Body),
	})

	vis2 := config.PlayerVisibilityRadius * config.PlayerVisibilityRadius
	for _, p := range players {
		if p == recipient {
			continue
		}
		if len(out) >= config.PlayerVisibilityCap {
			break
		}
		if geom.Dist2(p.Pos, recipient.Pos) > vis2 {
			continue
		}
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

// decimateBody keeps every third of the trailing window, walking back
// from the head so the head point always survives.
func decimateBody(body []geom.Point) []geom.Point {
	start := len(body) - config.BodyTailWindow
	if start < 0 {
		start = 0
	}

	picked := make([]geom.Point, 0, config.BodyPointCap)
	for i := len(body) - 1; i >= start && len(picked) < config.BodyPointCap; i -= 3 {
		picked = append(picked, body[i])
	}

	// Reverse back into tail-to-head order.
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}
