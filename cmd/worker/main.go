package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatpay/chatpay/internal/bootstrap"
	"github.com/chatpay/chatpay/internal/config"
	"github.com/chatpay/chatpay/internal/infra"
	"github.com/chatpay/chatpay/internal/logging"
)

// The worker runs due scheduled intents through the same executor the chat flow uses.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conns, err := infra.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect backends", "error", err)
		os.Exit(1)
	}
	defer conns.Close()

	if conns.DB == nil {
		logger.Warn("DATABASE_URL not set, scheduled intents live only in this process")
	}

	stack, err := bootstrap.Build(cfg, conns.DB, conns.Cache, logger)
	if err != nil {
		logger.Error("build stack", "error", err)
		os.Exit(1)
	}

	logger.Info("worker started", "interval", cfg.SweepInterval.String())
	stack.Sweeper.Run(ctx, cfg.SweepInterval)
	logger.Info("worker stopped")
}
