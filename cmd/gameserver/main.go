// Package main runs the wormy game server.
//
// Architecture Overview:
// - Clients connect over WebSocket and exchange JSON text frames
// - Each room runs its own simulation loop at 20Hz
// - Snapshots are interest-managed per recipient and broadcast at a
//   configurable rate (5-20Hz)
// - Heartbeat and idle eviction run as independent periodic tasks
// - The admin surface (REST + WS) is bearer-token protected
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/wormy/server/config"
	"github.com/wormy/server/internal/admin"
	"github.com/wormy/server/internal/matchmaker"
	"github.com/wormy/server/internal/metrics"
	"github.com/wormy/server/internal/server"
	"github.com/wormy/server/internal/session"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := loadConfig()
	if cfg.AdminToken == "" {
		logger.Fatal("ADMIN_TOKEN is required and must be nonempty")
	}

	events := metrics.NewEventLog()
	manager := matchmaker.NewManager(logger, events)
	registry := session.NewRegistry(logger)

	gameServer := server.NewGameServer(cfg, logger, registry, manager)
	hub := admin.NewHub(manager, events, logger)
	api := admin.NewAPI(cfg.AdminToken, manager, events, hub, logger)

	stop := make(chan struct{})
	defer close(stop)
	registry.Run(stop)

	mux := http.NewServeMux()
	gameServer.Routes(mux)
	mux.Handle("/admin/", http.StripPrefix("/admin", api.Router()))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.Info("wormy server listening",
		zap.String("addr", addr),
		zap.Int("tickRate", config.TickRate),
		zap.Int("defaultBroadcastRate", config.DefaultBroadcastRate))

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// loadConfig reads configuration from environment variables.
// Falls back to defaults where an override is not set.
func loadConfig() *config.ServerConfig {
	cfg := config.DefaultServerConfig()

	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	// CORS can be disabled for production behind a reverse proxy
	if cors := os.Getenv("ENABLE_CORS"); cors == "false" {
		cfg.EnableCORS = false
	}

	return cfg
}
