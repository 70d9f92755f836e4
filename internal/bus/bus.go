package bus

import (
	"context"

	"github.com/aisbot/aisbot/pkg/models"
)

// MessageBus is the provider-agnostic facade the rest of the process talks
// to. Channels push inbound messages, the agent consumes them and publishes
// outbound replies.
type MessageBus struct {
	provider Provider
	kind     string
}

// New creates a message bus backed by the named provider ("dds" or "zenoh").
func New(kind string, opts Options) (*MessageBus, error) {
	provider, err := NewProvider(kind, opts)
	if err != nil {
		return nil, err
	}
	return &MessageBus{provider: provider, kind: kind}, nil
}

// Init initializes the underlying provider and its transport endpoints.
func (b *MessageBus) Init(ctx context.Context) error {
	return b.provider.Initialize(ctx)
}

// ProviderName returns the provider tag this bus was built with.
func (b *MessageBus) ProviderName() string {
	return b.kind
}

// PublishInbound publishes a message from a channel to the agent.
func (b *MessageBus) PublishInbound(ctx context.Context, msg *models.InboundMessage) error {
	return b.provider.PublishInbound(ctx, msg)
}

// ConsumeInbound returns the next inbound message, or (nil, nil) when the
// bounded receive times out.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*models.InboundMessage, error) {
	return b.provider.ConsumeInbound(ctx)
}

// PublishOutbound publishes a response from the agent to channels.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg *models.OutboundMessage) error {
	return b.provider.PublishOutbound(ctx, msg)
}

// ConsumeOutbound returns the next outbound message, or (nil, nil) on
// timeout. ConsumeOutbound and DispatchOutbound read the same subscription;
// run one or the other.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (*models.OutboundMessage, error) {
	return b.provider.ConsumeOutbound(ctx)
}

// SubscribeOutbound registers a callback for outbound messages on a channel.
func (b *MessageBus) SubscribeOutbound(channel string, cb Callback) {
	b.provider.SubscribeOutbound(channel, cb)
}

// DispatchOutbound fans outbound messages out to subscribed channels. Run it
// as a background goroutine; it returns after Stop or context cancellation.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	return b.provider.DispatchOutbound(ctx)
}

// Stop ends the dispatcher loop and releases transport resources.
func (b *MessageBus) Stop() {
	b.provider.Stop()
}

// InboundSize reports pending inbound messages on this bus's subscription.
func (b *MessageBus) InboundSize() int {
	return b.provider.InboundSize()
}

// OutboundSize reports pending outbound messages on this bus's subscription.
func (b *MessageBus) OutboundSize() int {
	return b.provider.OutboundSize()
}
