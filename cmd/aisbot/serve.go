package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aisbot/aisbot/internal/config"
)

// buildServeCmd creates the "serve" command that starts the agent daemon.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent daemon",
		Long: `Start the agent with all configured channels.

The daemon will:
1. Load configuration (flag, AISBOT_CONFIG, ./config.yaml, ~/.aisbot/config.yaml)
2. Initialize the message bus, session store, and workspace
3. Start enabled channel adapters (CLI, Telegram)
4. Discover MCP servers and register their tools
5. Start the cron scheduler and the agent loop

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with the default config search path
  aisbot serve

  # Start with a custom config
  aisbot serve --config /etc/aisbot/production.yaml

  # Start with debug logging
  aisbot serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Resolve(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// runServe wires the runtime, runs until a shutdown signal or loop failure,
// then stops everything under a timeout.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}

	rt.logger.Info(ctx, "aisbot starting",
		"version", version,
		"config", configPath,
		"bus", cfg.Bus.Provider,
		"model", cfg.Agents.Defaults.Model,
		"channels", rt.channels.Types(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	rt.logger.Info(ctx, "shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := rt.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	rt.logger.Info(ctx, "aisbot stopped")
	return nil
}
