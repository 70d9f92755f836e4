// Package shell provides the exec tool: synchronous shell command execution
// with a timeout and bounded output capture.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/internal/tools/files"
)

const maxOutputBytes = 64000

// Config controls exec tool behavior.
type Config struct {
	// Workspace is the default working directory.
	Workspace string

	// Restrict confines the working directory to the workspace.
	Restrict bool

	// Timeout bounds each command. Zero means 60 seconds.
	Timeout time.Duration
}

// ExecTool runs shell commands through /bin/sh.
type ExecTool struct {
	resolver files.Resolver
	timeout  time.Duration
}

// NewExecTool creates an exec tool scoped to the workspace.
func NewExecTool(cfg Config) *ExecTool {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ExecTool{
		resolver: files.Resolver{Root: cfg.Workspace, Restrict: cfg.Restrict},
		timeout:  timeout,
	}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Execute a shell command and return its output. Commands run in the workspace with a timeout."
}

func (t *ExecTool) Source() tools.Source { return tools.SourceLocal }

func (t *ExecTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Working directory (default: workspace root)",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command := strings.TrimSpace(tools.StringArg(args, "command", ""))
	if command == "" {
		return "", fmt.Errorf("command is required")
	}

	dir, err := t.resolver.Resolve(tools.StringArg(args, "working_dir", "."))
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	stdout := newLimitedBuffer(maxOutputBytes)
	stderr := newLimitedBuffer(maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s", t.timeout)
	}

	out := stdout.String()
	if s := stderr.String(); s != "" {
		if out != "" {
			out += "\n"
		}
		out += s
	}
	if runErr != nil {
		code := exitCode(runErr)
		if out == "" {
			out = runErr.Error()
		}
		return fmt.Sprintf("%s\n(exit code %d)", strings.TrimRight(out, "\n"), code), nil
	}
	if out == "" {
		return "(no output)", nil
	}
	return strings.TrimRight(out, "\n"), nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer caps captured output so a chatty command cannot blow up the
// prompt. Writes past the cap are silently dropped.
type limitedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && len(b.buf) >= b.max {
		return len(p), nil
	}
	if remaining := b.max - len(b.buf); b.max > 0 && len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
