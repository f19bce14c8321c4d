package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"chatterly/internal/app"
	"chatterly/pkg/config"
	"chatterly/pkg/logger"
	"chatterly/pkg/shutdown"
)

// build metadata - set via ldflags during release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	fl := config.ParseCommandFlags()
	cfgPath := config.ResolveConfigPath(fl)
	cfg, err := config.LoadEffective(cfgPath)
	if err != nil {
		logger.InitWithLevel("")
		shutdown.Abort("failed to load config", err, "")
	}
	config.ApplyFlags(cfg, fl)
	logger.InitWithLevel(cfg.Logging.Level)

	a, err := app.New(cfg, version)
	if err != nil {
		shutdown.Abort("failed to initialize", err, cfg.Storage.DBPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server exited", err, cfg.Storage.DBPath)
	}
}
