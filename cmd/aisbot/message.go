package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aisbot/aisbot/internal/config"
)

// buildMessageCmd creates the "message" command for one-shot turns.
func buildMessageCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "message <text>",
		Short: "Send one message through the agent and print the reply",
		Long: `Process a single message without starting any channels.

The message runs through the full agent machinery (sessions, tools, MCP)
under the cli:direct session, so consecutive invocations share history.`,
		Example: `  aisbot message "what's in my workspace?"
  aisbot message --config work.yaml "summarize TOOLS.md"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("message text is required")
			}
			return runMessage(cmd.Context(), cmd.OutOrStdout(), config.Resolve(configPath), text)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// runMessage wires the runtime without starting the daemon surfaces and
// processes one direct turn.
func runMessage(ctx context.Context, out io.Writer, configPath, text string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = rt.Stop(stopCtx)
	}()

	reply, err := rt.loop.RunDirect(ctx, text)
	if err != nil {
		return err
	}
	if strings.TrimSpace(reply) == "" {
		reply = "(no reply)"
	}
	fmt.Fprintln(out, reply)
	return nil
}
