// Package main provides the coordination server binary for the cooperative
// grid game. Clients connect over line-delimited JSON on TCP, or optionally
// over WebSocket.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/config"
	"github.com/cory-johannsen/harmony/internal/observability"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty = built-in defaults")
	flag.Parse()

	ctx := context.Background()

	var (
		cfg config.Config
		err error
	)
	if *configPath == "" {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting coordination server",
		zap.String("tcp_addr", cfg.TCP.Addr()),
		zap.Int("grid_size", cfg.Game.GridSize),
		zap.Int("room_capacity", cfg.Game.RoomCapacity),
	)

	app, cleanup, err := initializeApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("assembling server", zap.Error(err))
	}
	defer cleanup()

	logger.Info("coordination server assembled", zap.Duration("startup", time.Since(start)))

	if err := app.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		cleanup()
		_ = logger.Sync()
		log.Fatalf("server error: %v", err)
	}
}
