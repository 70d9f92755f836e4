package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// wsFrame is one bridged sample: the zenoh key expression and the raw JSON
// envelope published on it.
type wsFrame struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// wsBridge mirrors local puts to a remote zenoh-style router over WebSocket
// and feeds remote frames back into the local router. Connection failures
// are logged and retried on the next send.
type wsBridge struct {
	endpoint string
	opts     Options
	onFrame  func(key string, payload []byte)

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func newWSBridge(endpoint string, opts Options, onFrame func(key string, payload []byte)) *wsBridge {
	return &wsBridge{
		endpoint: endpoint,
		opts:     opts,
		onFrame:  onFrame,
	}
}

func (b *wsBridge) connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(ctx)
}

func (b *wsBridge) connectLocked(ctx context.Context) error {
	if b.closed || b.conn != nil {
		return nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.endpoint, nil)
	if err != nil {
		return err
	}
	b.conn = conn
	go b.readLoop(conn)
	b.opts.logInfo(ctx, "zenoh bridge connected", "endpoint", b.endpoint)
	return nil
}

func (b *wsBridge) readLoop(conn *websocket.Conn) {
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			b.mu.Lock()
			if b.conn == conn {
				b.conn = nil
			}
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				b.opts.logWarn(context.Background(), "zenoh bridge read failed, reconnecting on next publish", "error", err)
			}
			conn.Close()
			return
		}
		if frame.Key == "" {
			b.opts.recordDrop("zenoh", "bridge", "malformed")
			continue
		}
		b.onFrame(frame.Key, []byte(frame.Payload))
	}
}

// send writes one frame, reconnecting first if the link dropped.
func (b *wsBridge) send(ctx context.Context, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	if b.conn == nil {
		if err := b.connectLocked(ctx); err != nil {
			return err
		}
	}
	if err := b.conn.WriteJSON(wsFrame{Key: key, Payload: json.RawMessage(payload)}); err != nil {
		b.conn.Close()
		b.conn = nil
		return err
	}
	return nil
}

func (b *wsBridge) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}
