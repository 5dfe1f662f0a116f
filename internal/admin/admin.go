// Package admin exposes the operator surface: a bearer-token REST API
// over the room manager and a WebSocket feed of per-room snapshots and
// server events.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/matchmaker"
	"github.com/wormy/server/internal/metrics"
)

// API serves the admin REST endpoints.
type API struct {
	token   string
	manager *matchmaker.Manager
	events  *metrics.EventLog
	hub     *Hub
	logger  *zap.Logger
}

// NewAPI creates the admin API. The token must be nonempty; startup
// enforces that before we get here.
func NewAPI(token string, manager *matchmaker.Manager, events *metrics.EventLog, hub *Hub, logger *zap.Logger) *API {
	return &API{
		token:   token,
		manager: manager,
		events:  events,
		hub:     hub,
		logger:  logger,
	}
}

// Router builds the authenticated admin router. The spectator WebSocket
// does its own auth so a bad token gets a proper 1008 close instead of a
// failed handshake.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		a.hub.HandleWebSocket(w, req, bearerToken(req) == a.token)
	})

	r.Group(func(g chi.Router) {
		g.Use(a.auth)

		g.Get("/rooms", a.listRooms)
		g.Post("/rooms", a.openRoom)
		g.Get("/rooms/{id}/config", a.getRoomConfig)
		g.Patch("/rooms/{id}/config", a.patchRoomConfig)
		g.Delete("/rooms/{id}", a.closeRoom)
		g.Get("/rooms/{id}/players", a.listPlayers)
		g.Post("/rooms/{id}/players/{pid}/kick", a.kickPlayer)
		g.Get("/config/default", a.getDefaultConfig)
		g.Patch("/config/default", a.patchDefaultConfig)
		g.Post("/bans", a.banName)
		g.Get("/logs", a.getLogs)
		g.Get("/stats", a.getStats)
	})

	return r
}

// auth rejects requests whose bearer token does not match.
func (a *API) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) != a.token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	// WebSocket clients cannot set headers from a browser; accept the
	// token as a query parameter there.
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeFieldErrors(w http.ResponseWriter, errs []config.FieldError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "invalid config",
		"fields": errs,
	})
}

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.List())
}

func (a *API) openRoom(w http.ResponseWriter, r *http.Request) {
	var patch config.RoomConfigPatch
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}

	room, errs := a.manager.Create(patch)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     room.ID,
		"config": room.Config(),
	})
}

func (a *API) getRoomConfig(w http.ResponseWriter, r *http.Request) {
	room, ok := a.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, room.Config())
}

func (a *API) patchRoomConfig(w http.ResponseWriter, r *http.Request) {
	room, ok := a.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	var patch config.RoomConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	cfg := patch.Apply(room.Config())
	if errs := cfg.Validate(); len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	room.UpdateConfig(cfg)
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) closeRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.manager.Close(id, matchmaker.ReasonManual) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"closed": id})
}

func (a *API) listPlayers(w http.ResponseWriter, r *http.Request) {
	room, ok := a.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, room.PlayerViews())
}

func (a *API) kickPlayer(w http.ResponseWriter, r *http.Request) {
	if !a.manager.Kick(chi.URLParam(r, "id"), chi.URLParam(r, "pid")) {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kicked": chi.URLParam(r, "pid")})
}

func (a *API) getDefaultConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.DefaultConfig())
}

func (a *API) patchDefaultConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.RoomConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	cfg := patch.Apply(a.manager.DefaultConfig())
	if errs := a.manager.SetDefault(cfg); len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) banName(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	a.manager.Ban(body.Name)
	writeJSON(w, http.StatusOK, map[string]string{"banned": body.Name})
}

func (a *API) getLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.events.Recent())
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms":    a.manager.GetStats(),
		"counters": metrics.Snapshot(),
	})
}
