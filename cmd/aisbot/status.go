package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aisbot/aisbot/internal/config"
)

// buildStatusCmd creates the "status" command.
func buildStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, config.Resolve(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// runStatus prints a summary of the resolved configuration.
func runStatus(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "aisbot %s\n\n", version)
	fmt.Fprintf(out, "Config:    %s%s\n", configPath, missingNote(configPath, " (not found, defaults in effect)"))
	fmt.Fprintf(out, "Workspace: %s%s\n", cfg.WorkspacePath(), missingNote(cfg.WorkspacePath(), " (will be created)"))
	fmt.Fprintf(out, "Bus:       %s (domain %d)\n", cfg.Bus.Provider, cfg.Bus.DomainID)
	fmt.Fprintf(out, "Model:     %s\n", cfg.Agents.Defaults.Model)
	fmt.Fprintf(out, "Sessions:  %s\n", cfg.Sessions.Backend)
	fmt.Fprintf(out, "Channels:  %s\n", enabledChannels(cfg))
	fmt.Fprintf(out, "MCP:       %s\n", mcpStatusLine(cfg))
	fmt.Fprintf(out, "Cron:      %s\n", enabledWord(cfg.Cron.Enabled))
	return nil
}

func missingNote(path, note string) string {
	if _, err := os.Stat(path); err != nil {
		return note
	}
	return ""
}

func enabledChannels(cfg *config.Config) string {
	var names []string
	if cfg.Channels.CLI.Enabled {
		names = append(names, "cli")
	}
	if cfg.Channels.Telegram.Enabled {
		names = append(names, "telegram")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func mcpStatusLine(cfg *config.Config) string {
	if len(cfg.MCPServers) == 0 {
		return "no servers configured"
	}
	names := make([]string, 0, len(cfg.MCPServers))
	for name := range cfg.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%d server(s): %s", len(names), strings.Join(names, ", "))
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
