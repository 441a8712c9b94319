package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/falconmind/clustercenter/internal/nodeagent"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting node agent")

	interval := 2 * time.Second
	if v := os.Getenv("HEARTBEAT_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			interval = time.Duration(secs) * time.Second
		}
	}

	config := &agent.Config{
		ControlPlaneURL:   getEnv("CONTROL_PLANE_URL", "http://localhost:8080"),
		UAVID:             getEnv("UAV_ID", ""),
		HeartbeatInterval: interval,
	}

	nodeAgent, err := agent.NewAgent(config, logger)
	if err != nil {
		logger.Fatal("failed to create agent", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := nodeAgent.Start(ctx); err != nil {
		logger.Fatal("failed to start agent", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := nodeAgent.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop agent gracefully", zap.Error(err))
	}

	logger.Info("agent stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
