package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"x402resolve/config"
	"x402resolve/core"
	"x402resolve/observability"
	"x402resolve/observability/logging"
	"x402resolve/rpc"
	"x402resolve/state"
	"x402resolve/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	listenFlag := flag.String("listen", "", "Override the configured RPC listen address")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.Setup("x402d", cfg.NetworkName)

	treasury, err := cfg.Treasury()
	if err != nil {
		logger.Error("dispute fee treasury not configured", slog.Any("error", err))
		os.Exit(1)
	}
	baseDisputeCost, err := cfg.DisputeCost()
	if err != nil {
		logger.Error("invalid base dispute cost", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	node := core.NewNode(manager, baseDisputeCost, treasury, observability.NewLogEmitter(logger))

	server := rpc.NewServer(node, logger)
	server.SetRateLimit(cfg.RPCRequestsPerMinute, cfg.RPCBurst)
	server.SetRegistryDefaults(cfg.MinConsensus, cfg.MaxScoreDeviation)

	addr := cfg.ListenAddress
	if *listenFlag != "" {
		addr = *listenFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx, addr); err != nil {
		logger.Error("rpc server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
