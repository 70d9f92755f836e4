// Package config loads and validates the aisbot configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the main configuration structure for aisbot.
type Config struct {
	Bus           BusConfig                  `yaml:"bus"`
	Agents        AgentsConfig               `yaml:"agents"`
	Channels      ChannelsConfig             `yaml:"channels"`
	Providers     map[string]ProviderConfig  `yaml:"providers"`
	Tools         ToolsConfig                `yaml:"tools"`
	MCPServers    map[string]MCPServerConfig `yaml:"mcp_servers"`
	Sessions      SessionsConfig             `yaml:"sessions"`
	Skills        SkillsConfig               `yaml:"skills"`
	Cron          CronConfig                 `yaml:"cron"`
	Logging       LoggingConfig              `yaml:"logging"`
	Observability ObservabilityConfig        `yaml:"observability"`
}

// BusConfig selects the message bus provider.
type BusConfig struct {
	Provider    string         `yaml:"provider"`
	DomainID    int            `yaml:"domain_id"`
	ZenohConfig map[string]any `yaml:"zenoh_config"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `yaml:"defaults"`
}

// AgentDefaults are the per-agent settings applied to every loop instance.
type AgentDefaults struct {
	Workspace         string  `yaml:"workspace"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	MaxToolIterations int     `yaml:"max_tool_iterations"`
}

type ChannelsConfig struct {
	CLI      CLIChannelConfig `yaml:"cli"`
	Telegram TelegramConfig   `yaml:"telegram"`
}

type CLIChannelConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TelegramConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Token     string   `yaml:"token"`
	AllowFrom []string `yaml:"allow_from"`
	Proxy     string   `yaml:"proxy"`
}

// ProviderConfig holds credentials for one LLM provider. Region is only
// meaningful for bedrock; the other providers ignore it.
type ProviderConfig struct {
	APIKey       string            `yaml:"api_key"`
	APIBase      string            `yaml:"api_base"`
	ExtraHeaders map[string]string `yaml:"extra_headers"`
	Region       string            `yaml:"region,omitempty"`
}

type ToolsConfig struct {
	RestrictToWorkspace bool              `yaml:"restrict_to_workspace"`
	Exec                ExecConfig        `yaml:"exec"`
	Web                 WebConfig         `yaml:"web"`
	Compression         CompressionConfig `yaml:"compression"`
}

type ExecConfig struct {
	// Timeout is the shell command timeout in seconds.
	Timeout int `yaml:"timeout"`
}

type WebConfig struct {
	Search SearchConfig `yaml:"search"`
}

type SearchConfig struct {
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`
}

// CompressionConfig controls context compression for long conversations.
type CompressionConfig struct {
	Enabled                     bool   `yaml:"enabled"`
	MaxContextTokens            int    `yaml:"max_context_tokens"`
	TargetContextTokens         int    `yaml:"target_context_tokens"`
	RecentMessagesKeep          int    `yaml:"recent_messages_keep"`
	HistoryCompressionThreshold int    `yaml:"history_compression_threshold"`
	Strategy                    string `yaml:"strategy"`
	MinContentLength            int    `yaml:"min_content_length"`
	PreserveSystemPromptCache   bool   `yaml:"preserve_system_prompt_cache"`
}

// MCPServerConfig describes one MCP server the proxy can reach.
type MCPServerConfig struct {
	Transport   string            `yaml:"transport"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	URL         string            `yaml:"url"`
	Description string            `yaml:"description"`
}

type SessionsConfig struct {
	// Backend selects session persistence: "file", "sqlite", or "memory".
	Backend string `yaml:"backend"`
	// ArchivePath overrides the sqlite database location.
	ArchivePath string `yaml:"archive_path"`
}

type SkillsConfig struct {
	// Dir overrides the skills directory, default <workspace>/skills.
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type CronConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StorePath string `yaml:"store_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	MetricsAddr string        `yaml:"metrics_addr"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns a Config populated with every default value. Load decodes
// the user's file over this, so absent keys keep their defaults and explicit
// false values survive.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Provider: "dds",
		},
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:         "~/.aisbot/workspace",
				Model:             "anthropic/claude-opus-4-5",
				MaxTokens:         8192,
				Temperature:       0.7,
				MaxToolIterations: 20,
			},
		},
		Channels: ChannelsConfig{
			CLI: CLIChannelConfig{Enabled: true},
		},
		Providers: map[string]ProviderConfig{},
		Tools: ToolsConfig{
			RestrictToWorkspace: false,
			Exec:                ExecConfig{Timeout: 60},
			Web: WebConfig{
				Search: SearchConfig{MaxResults: 5},
			},
			Compression: CompressionConfig{
				Enabled:                     true,
				MaxContextTokens:            16000,
				TargetContextTokens:         12000,
				RecentMessagesKeep:          10,
				HistoryCompressionThreshold: 20,
				Strategy:                    "semantic",
				MinContentLength:            200,
				PreserveSystemPromptCache:   true,
			},
		},
		MCPServers: map[string]MCPServerConfig{},
		Sessions:   SessionsConfig{Backend: "file"},
		Skills:     SkillsConfig{Watch: true},
		Cron:       CronConfig{Enabled: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				ServiceName:  "aisbot",
				SamplingRate: 1.0,
			},
		},
	}
}

// Validate checks cross-field constraints that the YAML decoder cannot.
func (c *Config) Validate() error {
	switch c.Bus.Provider {
	case "dds", "zenoh":
	default:
		return fmt.Errorf("bus.provider must be \"dds\" or \"zenoh\", got %q", c.Bus.Provider)
	}

	switch c.Tools.Compression.Strategy {
	case "summary", "truncation", "semantic":
	default:
		return fmt.Errorf("tools.compression.strategy must be one of summary, truncation, semantic; got %q", c.Tools.Compression.Strategy)
	}

	switch c.Sessions.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("sessions.backend must be one of file, sqlite, memory; got %q", c.Sessions.Backend)
	}

	for name, server := range c.MCPServers {
		switch server.Transport {
		case "stdio":
			if strings.TrimSpace(server.Command) == "" {
				return fmt.Errorf("mcp_servers.%s: stdio transport requires command", name)
			}
		case "http":
			if strings.TrimSpace(server.URL) == "" {
				return fmt.Errorf("mcp_servers.%s: http transport requires url", name)
			}
		default:
			return fmt.Errorf("mcp_servers.%s: transport must be \"stdio\" or \"http\", got %q", name, server.Transport)
		}
	}

	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return fmt.Errorf("channels.telegram.token is required when telegram is enabled")
	}

	return nil
}

// WorkspacePath returns the agent workspace with ~ expanded to the home
// directory and the result made absolute.
func (c *Config) WorkspacePath() string {
	return ExpandHome(c.Agents.Defaults.Workspace)
}

// Provider returns the credentials for the named provider, if configured.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// SessionsDir returns the directory holding file-backed session
// transcripts.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.WorkspacePath(), "sessions")
}

// SessionArchivePath returns the sqlite archive location, defaulting to
// sessions.db under the workspace.
func (c *Config) SessionArchivePath() string {
	if c.Sessions.ArchivePath != "" {
		return ExpandHome(c.Sessions.ArchivePath)
	}
	return filepath.Join(c.WorkspacePath(), "sessions.db")
}

// SkillsDir returns the skills directory, defaulting to skills/ under the
// workspace.
func (c *Config) SkillsDir() string {
	if c.Skills.Dir != "" {
		return ExpandHome(c.Skills.Dir)
	}
	return filepath.Join(c.WorkspacePath(), "skills")
}

// CronStorePath returns the cron job store, defaulting to cron/jobs.json
// under the workspace.
func (c *Config) CronStorePath() string {
	if c.Cron.StorePath != "" {
		return ExpandHome(c.Cron.StorePath)
	}
	return filepath.Join(c.WorkspacePath(), "cron", "jobs.json")
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
