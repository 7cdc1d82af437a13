package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"distritree/pkg/api"
	"distritree/pkg/config"
	"distritree/pkg/core"
	"distritree/pkg/logging"
	"distritree/pkg/network"
	"distritree/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default: configs/distritree.yaml or distritree.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	archive, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}

	index, err := core.NewTreeIndex(cfg, archive, logger)
	if err != nil {
		archive.Close()
		return err
	}
	defer index.Close()

	logger.Info("distritree starting",
		zap.Int("order", cfg.Tree.Order),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("storage_path", cfg.Storage.Path),
		zap.Int("shards", cfg.Storage.Shards))

	httpSrv := api.NewServer(index, logger)
	tcpSrv := network.NewTCPServer(index, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Start(cfg.Server.Addr) }()
	go func() { errCh <- tcpSrv.Start(cfg.Server.TCPAddr) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
	case runErr = <-errCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := tcpSrv.Close(); err != nil {
		logger.Warn("tcp shutdown", zap.Error(err))
	}
	return runErr
}
