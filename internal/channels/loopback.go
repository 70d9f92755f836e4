package channels

import (
	"context"
	"sync"

	"github.com/aisbot/aisbot/internal/bus"
	"github.com/aisbot/aisbot/pkg/models"
)

// Loopback is an in-memory adapter for tests and local wiring checks. It
// records everything the dispatcher sends it and lets callers inject
// inbound messages as if a user had typed them.
type Loopback struct {
	tag string
	bus *bus.MessageBus

	mu   sync.Mutex
	sent []*models.OutboundMessage
}

// NewLoopback creates a loopback adapter publishing under the given channel
// tag. An empty tag defaults to "loopback".
func NewLoopback(tag string, b *bus.MessageBus) *Loopback {
	if tag == "" {
		tag = "loopback"
	}
	return &Loopback{tag: tag, bus: b}
}

func (l *Loopback) Type() string { return l.tag }

func (l *Loopback) Start(ctx context.Context) error { return nil }

func (l *Loopback) Stop(ctx context.Context) error { return nil }

// Send records the message.
func (l *Loopback) Send(ctx context.Context, msg *models.OutboundMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, msg)
	return nil
}

// Inject publishes an inbound message under this adapter's channel tag.
func (l *Loopback) Inject(ctx context.Context, senderID, chatID, content string) error {
	return l.bus.PublishInbound(ctx, models.NewInboundMessage(l.tag, senderID, chatID, content))
}

// Sent returns a snapshot of the messages delivered so far.
func (l *Loopback) Sent() []*models.OutboundMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*models.OutboundMessage, len(l.sent))
	copy(out, l.sent)
	return out
}
