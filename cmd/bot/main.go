package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"order-probe-bot/internal/algo"
	"order-probe-bot/internal/app"
	"order-probe-bot/internal/config"
	"order-probe-bot/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.String("path", *configPath))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized", zap.String("exchange", cfg.Algo.Exchange), zap.String("pair", cfg.Algo.Pair))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = application.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, algo.ErrInterrupted):
		log.Info("algorithm finished", zap.Error(err))
	default:
		log.Error("app terminated", zap.Error(err))
		os.Exit(1)
	}
}
