package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/susu3304/warikan/internal/api"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/logger"
	"github.com/susu3304/warikan/internal/room"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Connect to database, or run memory-only when none is configured
	var store room.Store
	if cfg.DatabaseURL != "" {
		database, err := db.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			zlog.Fatal("failed to connect to database", zap.Error(err))
		}
		defer database.Close()

		if err := database.RunMigrations(context.Background()); err != nil {
			zlog.Fatal("failed to run migrations", zap.Error(err))
		}
		store = db.NewStore(database)
	} else {
		zlog.Warn("DATABASE_URL not set, room history will not survive restarts")
		store = room.NewMemoryStore()
	}

	bcast := room.NewBroadcaster(room.DefaultQueueSize, zlog)
	rooms := room.NewManager(store, bcast, zlog)

	// Start API server
	apiServer := api.New(cfg, rooms, zlog)
	go func() {
		if err := apiServer.Start(); err != nil {
			zlog.Error("API server error", zap.Error(err))
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zlog.Info("shutting down")
}
