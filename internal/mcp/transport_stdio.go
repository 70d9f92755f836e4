package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
)

// stdio messages are newline-delimited JSON; responses can carry whole tool
// outputs, so the scanner gets a 1 MB line budget.
const stdioLineLimit = 1024 * 1024

const defaultCallTimeout = 30 * time.Second

// stdioTransport runs an MCP server as a subprocess and speaks
// newline-delimited JSON-RPC over its pipes.
type stdioTransport struct {
	serverID string
	cfg      config.MCPServerConfig
	logger   *observability.Logger

	process *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	stderr  io.ReadCloser

	writeMu   sync.Mutex
	pending   map[int64]chan *JSONRPCResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64

	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

func newStdioTransport(serverID string, cfg config.MCPServerConfig, logger *observability.Logger) *stdioTransport {
	return &stdioTransport{
		serverID: serverID,
		cfg:      cfg,
		logger:   logger,
		pending:  make(map[int64]chan *JSONRPCResponse),
		stopChan: make(chan struct{}),
	}
}

// Connect spawns the server process and starts the read loop.
func (t *stdioTransport) Connect(ctx context.Context) error {
	if t.cfg.Command == "" {
		return fmt.Errorf("command is required for stdio transport")
	}

	t.process = exec.CommandContext(ctx, t.cfg.Command, t.cfg.Args...)
	t.process.Env = os.Environ()
	for k, v := range t.cfg.Env {
		t.process.Env = append(t.process.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var err error
	t.stdin, err = t.process.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := t.process.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	t.stdout = bufio.NewScanner(stdout)
	t.stdout.Buffer(make([]byte, stdioLineLimit), stdioLineLimit)

	t.stderr, _ = t.process.StderrPipe()

	if err := t.process.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	t.connected.Store(true)
	if t.logger != nil {
		t.logger.Debug(ctx, "mcp server process started",
			"server", t.serverID,
			"command", t.cfg.Command,
			"pid", t.process.Process.Pid)
	}

	t.wg.Add(1)
	go t.readLoop()

	if t.stderr != nil {
		t.wg.Add(1)
		go t.drainStderr()
	}

	return nil
}

// Close kills the subprocess and waits for the reader goroutines.
func (t *stdioTransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopChan)

	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.process != nil && t.process.Process != nil {
		t.process.Process.Kill()
		t.process.Wait()
	}

	t.wg.Wait()
	return nil
}

func (t *stdioTransport) Connected() bool {
	return t.connected.Load()
}

// Call writes a request line and waits for the response with the same ID.
func (t *stdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = payload
	}

	respChan := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respChan
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.writeLine(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(defaultCallTimeout):
		return nil, fmt.Errorf("request timeout after %v", defaultCallTimeout)
	case <-t.stopChan:
		return nil, fmt.Errorf("transport closed")
	}
}

// Notify writes a notification line; the server never replies to these.
func (t *stdioTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = payload
	}
	if err := t.writeLine(notif); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

func (t *stdioTransport) writeLine(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.stdin.Write(append(data, '\n'))
	return err
}

// readLoop routes response lines to their pending callers. Lines that do not
// parse as responses (server notifications, stray output) are dropped.
func (t *stdioTransport) readLoop() {
	defer t.wg.Done()
	defer t.connected.Store(false)

	for t.stdout.Scan() {
		select {
		case <-t.stopChan:
			return
		default:
		}

		line := t.stdout.Bytes()
		if len(line) == 0 {
			continue
		}
		t.routeResponse(line)
	}

	if err := t.stdout.Err(); err != nil && t.logger != nil {
		t.logger.Debug(context.Background(), "mcp stdout scanner error",
			"server", t.serverID, "error", err)
	}
}

func (t *stdioTransport) routeResponse(line []byte) {
	var resp JSONRPCResponse
	if err := json.Unmarshal(line, &resp); err != nil || resp.ID == nil {
		return
	}

	var id int64
	switch v := resp.ID.(type) {
	case float64:
		id = int64(v)
	case int64:
		id = v
	case int:
		id = int64(v)
	default:
		return
	}

	t.pendingMu.Lock()
	if ch, ok := t.pending[id]; ok {
		select {
		case ch <- &resp:
		default:
		}
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
}

func (t *stdioTransport) drainStderr() {
	defer t.wg.Done()

	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		select {
		case <-t.stopChan:
			return
		default:
		}
		if line := scanner.Text(); line != "" && t.logger != nil {
			t.logger.Debug(context.Background(), "mcp server stderr",
				"server", t.serverID, "message", line)
		}
	}
}
