package main

import (
	"testing"

	"github.com/aisbot/aisbot/internal/config"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "message", "status", "config", "mcp", "version"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestEnabledChannels(t *testing.T) {
	cfg := config.Default()
	if got := enabledChannels(cfg); got != "cli" {
		t.Errorf("default channels = %q, want %q", got, "cli")
	}

	cfg.Channels.Telegram.Enabled = true
	if got := enabledChannels(cfg); got != "cli, telegram" {
		t.Errorf("channels = %q, want %q", got, "cli, telegram")
	}

	cfg.Channels.CLI.Enabled = false
	cfg.Channels.Telegram.Enabled = false
	if got := enabledChannels(cfg); got != "none" {
		t.Errorf("channels = %q, want %q", got, "none")
	}
}

func TestMCPStatusLine(t *testing.T) {
	cfg := config.Default()
	if got := mcpStatusLine(cfg); got != "no servers configured" {
		t.Errorf("empty status = %q, want %q", got, "no servers configured")
	}

	cfg.MCPServers = map[string]config.MCPServerConfig{
		"search": {Transport: "stdio", Command: "search-mcp"},
		"docs":   {Transport: "http", URL: "http://localhost:9000/mcp"},
	}
	want := "2 server(s): docs, search"
	if got := mcpStatusLine(cfg); got != want {
		t.Errorf("status = %q, want %q", got, want)
	}
}

func TestEnabledWord(t *testing.T) {
	if got := enabledWord(true); got != "enabled" {
		t.Errorf("enabledWord(true) = %q", got)
	}
	if got := enabledWord(false); got != "disabled" {
		t.Errorf("enabledWord(false) = %q", got)
	}
}
