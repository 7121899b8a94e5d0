package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wydcore/wyd-server/internal/config"
	"github.com/wydcore/wyd-server/internal/core"
)

const configPathEnv = "WYDCORE_CONFIG"

const defaultConfigPath = "config/core.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	path := defaultConfigPath
	if p := os.Getenv(configPathEnv); p != "" {
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("wyd-server core starting", "log_level", cfg.LogLevel, "config", path)

	c, err := core.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("constructing core: %w", err)
	}

	slog.Info("core constructed",
		"items", len(c.Registry.Current().Items),
		"skills", len(c.Registry.Current().Skills),
		"reconnection_enabled", cfg.Reconnection.Enabled)

	if err := c.Run(ctx); err != nil {
		return fmt.Errorf("core run: %w", err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
