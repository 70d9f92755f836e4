package mcp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
)

const sessionIDHeader = "Mcp-Session-Id"

// httpTransport speaks JSON-RPC over streamable HTTP: each message is a POST,
// responses arrive either as a JSON body or as SSE frames on the same
// response. HTTP/1.1 is forced and environment proxies are disabled; both
// work around middleboxes that break streaming responses.
type httpTransport struct {
	serverID string
	cfg      config.MCPServerConfig
	logger   *observability.Logger
	client   *http.Client

	sessionMu sync.Mutex
	sessionID string

	nextID    atomic.Int64
	connected atomic.Bool
}

func newHTTPTransport(serverID string, cfg config.MCPServerConfig, logger *observability.Logger) *httpTransport {
	return &httpTransport{
		serverID: serverID,
		cfg:      cfg,
		logger:   logger,
		client: &http.Client{
			Timeout: defaultCallTimeout,
			Transport: &http.Transport{
				Proxy:             nil,
				ForceAttemptHTTP2: false,
				TLSNextProto:      map[string]func(string, *tls.Conn) http.RoundTripper{},
			},
		},
	}
}

// Connect validates the configuration; the actual connection is per-request.
func (t *httpTransport) Connect(ctx context.Context) error {
	if t.cfg.URL == "" {
		return fmt.Errorf("url is required for http transport")
	}
	t.connected.Store(true)
	return nil
}

func (t *httpTransport) Close() error {
	t.connected.Store(false)
	t.client.CloseIdleConnections()
	return nil
}

func (t *httpTransport) Connected() bool {
	return t.connected.Load()
}

// Call POSTs a request and decodes the matching response, unwrapping SSE
// frames when the server streams.
func (t *httpTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
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

	resp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	t.captureSessionID(resp)

	var rpcResp *JSONRPCResponse
	if isEventStream(resp) {
		rpcResp, err = readEventStreamResponse(resp.Body, id)
	} else {
		rpcResp = &JSONRPCResponse{}
		err = json.NewDecoder(resp.Body).Decode(rpcResp)
	}
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("mcp error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// Notify POSTs a notification; any 2xx acknowledges it.
func (t *httpTransport) Notify(ctx context.Context, method string, params any) error {
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

	resp, err := t.post(ctx, notif)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	t.captureSessionID(resp)
	return nil
}

func (t *httpTransport) post(ctx context.Context, msg any) (*http.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if sid := t.currentSessionID(); sid != "" {
		httpReq.Header.Set(sessionIDHeader, sid)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	return resp, nil
}

func (t *httpTransport) captureSessionID(resp *http.Response) {
	sid := resp.Header.Get(sessionIDHeader)
	if sid == "" {
		return
	}
	t.sessionMu.Lock()
	t.sessionID = sid
	t.sessionMu.Unlock()
}

func (t *httpTransport) currentSessionID() string {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()
	return t.sessionID
}

func isEventStream(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}

// readEventStreamResponse scans SSE data frames until it finds the response
// matching the request ID.
func readEventStreamResponse(body io.Reader, wantID int64) (*JSONRPCResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, stdioLineLimit), stdioLineLimit)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var resp JSONRPCResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			continue
		}
		if resp.ID == nil {
			continue
		}
		if idMatches(resp.ID, wantID) {
			return &resp, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no response for request %d in event stream", wantID)
}

func idMatches(got any, want int64) bool {
	switch v := got.(type) {
	case float64:
		return int64(v) == want
	case int64:
		return v == want
	case int:
		return int64(v) == want
	case string:
		return v == fmt.Sprint(want)
	default:
		return false
	}
}
