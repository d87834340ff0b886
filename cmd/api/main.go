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
	"github.com/chatpay/chatpay/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conns, err := infra.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect backends", "error", err)
		os.Exit(1)
	}
	defer conns.Close()

	stack, err := bootstrap.Build(cfg, conns.DB, conns.Cache, logger)
	if err != nil {
		logger.Error("build stack", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(stack)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	if stack.MemoryPending != nil {
		go stack.MemoryPending.Run(ctx, cfg.SweepInterval)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
