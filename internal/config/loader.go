package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// Load reads the configuration file at path, resolves $include directives,
// expands environment variables, applies defaults, and validates the result.
// A missing file yields the default configuration.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	raw = migrateRaw(raw)

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".aisbot", "config.yaml")
}

// Resolve picks the configuration path: an explicit flag wins, then the
// AISBOT_CONFIG environment variable, then ./config.yaml if present, then
// the default location.
func Resolve(flagPath string) string {
	if strings.TrimSpace(flagPath) != "" {
		return ExpandHome(flagPath)
	}
	if env := os.Getenv("AISBOT_CONFIG"); strings.TrimSpace(env) != "" {
		return ExpandHome(env)
	}
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, "config.yaml")
		if _, err := os.Stat(local); err == nil {
			return local
		}
	}
	return DefaultPath()
}

// MCPConfigCandidates returns the ordered list of paths searched for MCP
// server definitions: the AISBOT_MCP_CONFIG override first, then the
// workspace, the working directory, and the user config. Callers try each
// existing candidate in order and move on when one fails to load.
func MCPConfigCandidates(workspace string) []string {
	var candidates []string
	if env := os.Getenv("AISBOT_MCP_CONFIG"); strings.TrimSpace(env) != "" {
		candidates = append(candidates, ExpandHome(env))
	}
	if strings.TrimSpace(workspace) != "" {
		candidates = append(candidates, filepath.Join(workspace, "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "config.yaml"))
	}
	candidates = append(candidates, DefaultPath())
	return candidates
}

// LoadMCPServers reads just the mcp_servers section from a config file.
// The file may be YAML, JSON, or JSON5.
func LoadMCPServers(path string) (map[string]MCPServerConfig, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	section, ok := raw["mcp_servers"]
	if !ok {
		return nil, fmt.Errorf("no mcp_servers configured in %s", path)
	}
	payload, err := yaml.Marshal(section)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize mcp_servers: %w", err)
	}
	var servers map[string]MCPServerConfig
	if err := yaml.Unmarshal(payload, &servers); err != nil {
		return nil, fmt.Errorf("failed to parse mcp_servers: %w", err)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no mcp_servers configured in %s", path)
	}
	for name, server := range servers {
		if server.Transport == "" {
			server.Transport = "stdio"
			servers[name] = server
		}
	}
	return servers, nil
}

// Save writes the configuration back to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadRaw reads a configuration file into a merged raw map, resolving
// $include directives and expanding environment variables.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	seen := map[string]bool{}
	return loadRawRecursive(path, seen)
}

func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))
	raw, err := parseRawBytes([]byte(expanded), absPath)
	if err != nil {
		return nil, err
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	if len(includes) > 0 {
		baseDir := filepath.Dir(absPath)
		for _, inc := range includes {
			if strings.TrimSpace(inc) == "" {
				continue
			}
			incPath := inc
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(baseDir, incPath)
			}
			incRaw, err := loadRawRecursive(incPath, seen)
			if err != nil {
				return nil, err
			}
			merged = mergeMaps(merged, incRaw)
		}
	}

	merged = mergeMaps(merged, raw)
	return merged, nil
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		if err == io.EOF {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var includeVal any
	if val, ok := raw[includeKey]; ok {
		includeVal = val
		delete(raw, includeKey)
	} else if val, ok := raw["include"]; ok {
		includeVal = val
		delete(raw, "include")
	}
	if includeVal == nil {
		return nil, nil
	}

	switch typed := includeVal.(type) {
	case string:
		return []string{typed}, nil
	case []string:
		return typed, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			value, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			paths = append(paths, value)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("include must be a string or list of strings")
	}
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// migrateRaw rewrites legacy keys to their current locations. The old
// tools.exec.restrictToWorkspace flag moves to tools.restrict_to_workspace
// unless the new key is already set.
func migrateRaw(raw map[string]any) map[string]any {
	tools, ok := raw["tools"].(map[string]any)
	if !ok {
		return raw
	}
	execCfg, ok := tools["exec"].(map[string]any)
	if !ok {
		return raw
	}
	if legacy, ok := execCfg["restrictToWorkspace"]; ok {
		if _, exists := tools["restrict_to_workspace"]; !exists {
			tools["restrict_to_workspace"] = legacy
		}
		delete(execCfg, "restrictToWorkspace")
	}
	return raw
}

// decodeRawConfig decodes a raw map over the default configuration so
// absent keys keep their defaults. Unknown fields are rejected.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if err == io.EOF {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	return cfg, nil
}
