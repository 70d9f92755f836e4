package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/aisbot/aisbot/internal/compression"
	"github.com/aisbot/aisbot/internal/mcp"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/internal/skills"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/internal/workspace"
	"github.com/aisbot/aisbot/pkg/models"
)

// ToolDiscovery is the MCP surface the context builder and loop consume:
// catalog preload at startup plus cached listings for the prompt's tool
// summary. *mcp.Proxy satisfies it.
type ToolDiscovery interface {
	Preload(ctx context.Context)
	ServerNames() []string
	CachedTools() map[string][]*mcp.RemoteTool
}

// ContextBuilder assembles the prompt window for one agent turn: the
// system prompt from workspace bootstrap files, memory, and skills, then
// the conversation history and the current user message.
type ContextBuilder struct {
	workspace  string
	skills     *skills.Loader
	compressor *compression.Compressor
	logger     *observability.Logger
}

// NewContextBuilder creates a builder rooted at the given workspace.
// skillsLoader, compressor, and logger may be nil.
func NewContextBuilder(workspacePath string, skillsLoader *skills.Loader, compressor *compression.Compressor, logger *observability.Logger) *ContextBuilder {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &ContextBuilder{
		workspace:  workspacePath,
		skills:     skillsLoader,
		compressor: compressor,
		logger:     logger,
	}
}

// BuildInput carries everything one turn contributes to the prompt.
type BuildInput struct {
	History      []models.SessionMessage
	Current      string
	Media        []string
	Channel      string
	ChatID       string
	ToolsSummary string
}

// BuildMessages assembles the full message array for an LLM call: system
// prompt, persisted history, and the current user message (with image
// attachments when present). History compression applies when a compressor
// is configured.
func (b *ContextBuilder) BuildMessages(ctx context.Context, in BuildInput) ([]models.ChatMessage, compression.Stats) {
	systemPrompt := b.BuildSystemPrompt(ctx, in.ToolsSummary)
	if in.Channel != "" && in.ChatID != "" {
		systemPrompt += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", in.Channel, in.ChatID)
	}

	messages := make([]models.ChatMessage, 0, len(in.History)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})
	for _, entry := range in.History {
		messages = append(messages, models.ChatMessage{Role: entry.Role, Content: entry.Content})
	}
	messages = append(messages, b.buildUserMessage(ctx, in.Current, in.Media))

	if b.compressor == nil {
		return messages, compression.Stats{}
	}
	return b.compressor.CompressMessages(ctx, messages)
}

// BuildSystemPrompt assembles the system prompt sections in canonical
// order, separated by "---" dividers: identity, bootstrap files, tools
// summary, memory, always-on skills, and the skills index.
func (b *ContextBuilder) BuildSystemPrompt(ctx context.Context, toolsSummary string) string {
	parts := make([]string, 0, 6)
	sources := make(map[string]string, 6)

	identity := b.identitySection()
	parts = append(parts, identity)
	sources["identity"] = identity

	if bootstrap := b.loadBootstrapFiles(ctx); bootstrap != "" {
		parts = append(parts, bootstrap)
		sources["bootstrap"] = bootstrap
	}

	if toolsSummary != "" {
		parts = append(parts, toolsSummary)
		sources["tools"] = toolsSummary
	}

	if memory := b.loadMemory(ctx); memory != "" {
		parts = append(parts, "# Memory\n\n"+memory)
		sources["memory"] = memory
	}

	if always := b.alwaysSkillsSection(ctx); always != "" {
		parts = append(parts, "# Active Skills\n\n"+always)
		sources["always_skills"] = always
	}

	if index := b.skillsIndex(ctx); index != "" {
		section := "# Skills\n\n" +
			"The following skills extend your capabilities. To use a skill, read its SKILL.md file using the read_file tool.\n\n" +
			index
		parts = append(parts, section)
		sources["skills_summary"] = index
	}

	prompt := strings.Join(parts, "\n\n---\n\n")
	if b.compressor != nil {
		prompt = b.compressor.CompressSystemPrompt(ctx, prompt, sources)
	}
	return prompt
}

const identityTemplate = `# aisbot 🐈

You are aisbot, a helpful AI assistant. You have access to tools that allow you to:
- Read, write, and edit files
- Execute shell commands
- Search the web and fetch web pages
- Send messages to users on chat channels
- Spawn subagents for complex background tasks

## Current Time
%s

## Runtime
%s

## Workspace
Your workspace is at: %s
- Memory files: %s/memory/MEMORY.md
- Daily notes: %s/memory/YYYY-MM-DD.md
- Custom skills: %s/skills/{skill-name}/SKILL.md

IMPORTANT: When responding to direct questions or conversations, reply directly with your text response.
Only use the 'message' tool when you need to send a message to a specific chat channel (like WhatsApp).
For normal conversation, just respond with text - do not call the message tool.

Always be helpful, accurate, and concise. When using tools, explain what you're doing.
When remembering something, write to %s/memory/MEMORY.md`

func (b *ContextBuilder) identitySection() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	ws := b.workspace
	if abs, err := filepath.Abs(ws); err == nil {
		ws = abs
	}
	return fmt.Sprintf(identityTemplate, now, runtimeInfo(), ws, ws, ws, ws, ws)
}

func runtimeInfo() string {
	osName := runtime.GOOS
	switch osName {
	case "darwin":
		osName = "macOS"
	case "linux":
		osName = "Linux"
	case "windows":
		osName = "Windows"
	}
	return fmt.Sprintf("%s %s, Go %s", osName, runtime.GOARCH, strings.TrimPrefix(runtime.Version(), "go"))
}

// loadBootstrapFiles folds the workspace bootstrap files into one section,
// each under a "## <filename>" heading, in canonical order.
func (b *ContextBuilder) loadBootstrapFiles(ctx context.Context) string {
	files, err := workspace.LoadBootstrapFiles(b.workspace)
	if err != nil {
		b.logger.Warn(ctx, "bootstrap files unreadable", "workspace", b.workspace, "error", err)
		return ""
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", f.Name, f.Content))
	}
	return strings.Join(parts, "\n\n")
}

func (b *ContextBuilder) loadMemory(ctx context.Context) string {
	memory, err := workspace.LoadMemory(b.workspace)
	if err != nil {
		b.logger.Warn(ctx, "memory file unreadable", "error", err)
		return ""
	}
	return memory
}

// alwaysSkillsSection embeds the full content of every always-on skill.
func (b *ContextBuilder) alwaysSkillsSection(ctx context.Context) string {
	if b.skills == nil {
		return ""
	}
	always := b.skills.Always(ctx)
	parts := make([]string, 0, len(always))
	for _, s := range always {
		parts = append(parts, fmt.Sprintf("## Skill: %s\n\n%s", s.Name, s.Content))
	}
	return strings.Join(parts, "\n\n")
}

// skillsIndex lists on-demand skills with the SKILL.md paths the agent can
// read to load them. Always-on skills are already embedded in full and are
// not repeated here.
func (b *ContextBuilder) skillsIndex(ctx context.Context) string {
	if b.skills == nil {
		return ""
	}
	var lines []string
	for _, s := range b.skills.Skills(ctx) {
		if s.Always {
			continue
		}
		lines = append(lines, fmt.Sprintf("- **%s**: %s\n  File: %s", s.Name, s.Description, s.FilePath()))
	}
	return strings.Join(lines, "\n")
}

// BuildToolsSummary renders the registered tools grouped by source, plus
// the MCP catalog known to the proxy. The system prompt carries it so the
// model knows which capabilities exist before it picks one.
func (b *ContextBuilder) BuildToolsSummary(reg *tools.Registry, discovery ToolDiscovery) string {
	bySource := make(map[tools.Source][]tools.Tool)
	for _, tool := range reg.All() {
		if tool.Name() == "mcp_proxy" {
			continue
		}
		bySource[tool.Source()] = append(bySource[tool.Source()], tool)
	}

	parts := []string{"# Available Tools\n"}

	if local := bySource[tools.SourceLocal]; len(local) > 0 {
		parts = append(parts, "## Local Tools\n")
		for _, tool := range local {
			parts = append(parts, fmt.Sprintf("- **%s**: %s", tool.Name(), tool.Description()))
		}
		parts = append(parts, "")
	}

	if discovery != nil && reg.Has("mcp_proxy") {
		parts = append(parts, mcpSummarySection(discovery)...)
	}

	if remote := bySource[tools.SourceMCP]; len(remote) > 0 {
		parts = append(parts, "## MCP Tools (Registered)\n")
		for _, tool := range remote {
			parts = append(parts, fmt.Sprintf("- **%s**: %s", tool.Name(), tool.Description()))
		}
		parts = append(parts, "")
	}

	if skill := bySource[tools.SourceSkill]; len(skill) > 0 {
		parts = append(parts, "## Skill Tools\n", "Tools from skills directory:\n")
		for _, tool := range skill {
			parts = append(parts, fmt.Sprintf("- **%s**: %s", tool.Name(), tool.Description()))
		}
		parts = append(parts, "")
	}

	for _, source := range otherSources(bySource) {
		parts = append(parts, fmt.Sprintf("## %s Tools\n", titleCase(string(source))))
		for _, tool := range bySource[source] {
			parts = append(parts, fmt.Sprintf("- **%s**: %s", tool.Name(), tool.Description()))
		}
		parts = append(parts, "")
	}

	return strings.Join(parts, "\n")
}

// mcpSummarySection lists the cached MCP catalogs per server, or the
// configured server names with a usage hint when nothing is cached yet.
func mcpSummarySection(discovery ToolDiscovery) []string {
	parts := []string{"## MCP Tools\n"}

	cached := discovery.CachedTools()
	if len(cached) > 0 {
		servers := make([]string, 0, len(cached))
		for server := range cached {
			servers = append(servers, server)
		}
		sort.Strings(servers)
		for _, server := range servers {
			catalog := cached[server]
			if len(catalog) == 0 {
				continue
			}
			parts = append(parts, fmt.Sprintf("### %s\n", server))
			for _, remote := range catalog {
				parts = append(parts, fmt.Sprintf("- **%s**: %s", remote.Name, truncateRunes(remote.Description, 80)))
			}
			parts = append(parts, "")
		}
		return parts
	}

	servers := discovery.ServerNames()
	if len(servers) > 0 {
		parts = append(parts, "MCP servers configured (tools not yet loaded):\n")
		for _, server := range servers {
			parts = append(parts, "- "+server)
		}
		parts = append(parts, "\nUse `mcp_proxy` with action='summary' to list available MCP tools.\n")
	}
	return parts
}

func otherSources(bySource map[tools.Source][]tools.Tool) []tools.Source {
	var out []tools.Source
	for source := range bySource {
		switch source {
		case tools.SourceLocal, tools.SourceMCP, tools.SourceSkill:
			continue
		}
		out = append(out, source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// buildUserMessage attaches media files that read as images to the current
// user turn as data-URL parts, with the text part last. Unreadable or
// non-image files are skipped.
func (b *ContextBuilder) buildUserMessage(ctx context.Context, text string, media []string) models.ChatMessage {
	msg := models.ChatMessage{Role: models.RoleUser, Content: text}
	if len(media) == 0 {
		return msg
	}

	var parts []models.ContentPart
	for _, path := range media {
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Debug(ctx, "media file unreadable", "path", path, "error", err)
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		parts = append(parts, models.ImagePart(fmt.Sprintf("data:%s;base64,%s", mimeType, encoded)))
	}
	if len(parts) == 0 {
		return msg
	}

	msg.Content = ""
	msg.Parts = append(parts, models.TextPart(text))
	return msg
}

// appendAssistantTurn records the model's reply, including its tool-call
// records, in OpenAI function-calling shape.
func appendAssistantTurn(messages []models.ChatMessage, content string, calls []models.ToolCallRecord) []models.ChatMessage {
	return append(messages, models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	})
}

// appendToolResult records one executed tool's output against its call id.
func appendToolResult(messages []models.ChatMessage, callID, name, result string) []models.ChatMessage {
	return append(messages, models.ChatMessage{
		Role:       models.RoleTool,
		Content:    result,
		Name:       name,
		ToolCallID: callID,
	})
}

// toolCallRecords converts provider tool-call requests into assistant-side
// records with JSON-string arguments.
func toolCallRecords(calls []models.ToolCallRequest) []models.ToolCallRecord {
	records := make([]models.ToolCallRecord, 0, len(calls))
	for _, tc := range calls {
		records = append(records, models.ToolCallRecord{
			ID:   tc.ID,
			Type: "function",
			Function: models.FunctionCall{
				Name:      tc.Name,
				Arguments: encodeArguments(tc.Arguments),
			},
		})
	}
	return records
}

// encodeArguments serializes tool arguments with non-ASCII text preserved.
func encodeArguments(args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(args); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
