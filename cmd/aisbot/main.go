// Package main provides the aisbot command line interface.
//
// aisbot is a single-agent runtime that connects chat channels (CLI,
// Telegram) to LLM providers through a provider-pluggable message bus,
// with schema-validated tools, MCP server proxying, skills, scheduled
// jobs, and persistent sessions.
//
// # Basic Usage
//
// Start the daemon:
//
//	aisbot serve --config config.yaml
//
// Send a one-shot message without starting channels:
//
//	aisbot message "what's in my workspace?"
//
// Inspect the configuration:
//
//	aisbot status
//	aisbot config schema
//
// # Environment Variables
//
//   - AISBOT_CONFIG: path to the configuration file
//   - AISBOT_LOG: log level override (debug, info, warn, error)
//   - AISBOT_MCP_CONFIG: path to an MCP server definition file
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY / GEMINI_API_KEY: provider credentials
//   - TELEGRAM_BOT_TOKEN: telegram bot token (config file wins when both set)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aisbot",
		Short: "aisbot - personal AI agent runtime",
		Long: `aisbot connects chat channels to LLM providers over a message bus.

Channels: CLI, Telegram
Providers: Anthropic, OpenAI-compatible, Gemini, Bedrock
Tools: files, shell, web search/fetch, message, spawn, cron, MCP servers`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMessageCmd(),
		buildStatusCmd(),
		buildConfigCmd(),
		buildMCPCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

// buildVersionCmd creates the "version" command.
func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aisbot %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
