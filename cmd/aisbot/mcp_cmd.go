package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/mcp"
	"github.com/aisbot/aisbot/internal/observability"
)

// buildMCPCmd creates the "mcp" command group.
func buildMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect configured MCP servers",
	}
	cmd.AddCommand(buildMCPListCmd())
	return cmd
}

// buildMCPListCmd creates "mcp list", which connects to each configured
// server and prints its discovered tools.
func buildMCPListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List MCP servers and their tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPList(cmd, config.Resolve(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runMCPList(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx := cmd.Context()
	servers := cfg.MCPServers
	if len(servers) == 0 {
		servers = discoverMCPServers(ctx, cfg.WorkspacePath(), logger)
	}

	out := cmd.OutOrStdout()
	if len(servers) == 0 {
		fmt.Fprintln(out, "No MCP servers configured.")
		return nil
	}

	proxy := mcp.NewProxy(servers, logger, nil)
	proxy.Preload(ctx)
	fmt.Fprintln(out, proxy.Summary(ctx))
	return nil
}
