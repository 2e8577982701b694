// Command server runs the BattleBoxes game hub: it loads the tile and map
// data, starts the HTTP API, and hosts every game room.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/spsquared/battleboxes-server/internal/accounts"
	"github.com/spsquared/battleboxes-server/internal/api"
	"github.com/spsquared/battleboxes-server/internal/config"
	"github.com/spsquared/battleboxes-server/internal/room"
	"github.com/spsquared/battleboxes-server/internal/tilemap"
)

func main() {
	// Missing .env is fine; env vars may come from the environment proper.
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration from .env")
	}
	cfg := config.Load()

	library, err := tilemap.LoadDir(cfg.Server.MapsDir, cfg.Game.MaxPlayers)
	if err != nil {
		log.Fatalf("load maps from %s: %v", cfg.Server.MapsDir, err)
	}
	if library.Len() == 0 {
		log.Fatalf("no maps loaded from %s", cfg.Server.MapsDir)
	}
	log.Printf("loaded %d maps from %s", library.Len(), cfg.Server.MapsDir)

	// TODO: swap for a persistent store once the account service lands.
	store := accounts.NewMemoryStore(true)

	manager := room.NewManager(cfg, store, library, api.PromMetrics{})
	server := api.NewServer(cfg.Server, manager)

	if cfg.Server.DebugMode {
		api.StartDebugServer(api.DefaultObservabilityConfig())
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
