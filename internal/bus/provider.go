// Package bus decouples chat channels from the agent core. Channels publish
// inbound messages, the agent consumes them and publishes outbound replies,
// and a dispatcher fans outbound messages back to per-channel callbacks.
//
// Two providers implement the contract: a pull-based DDS-style provider with
// domain-scoped topics, and a push-based zenoh-style provider with declared
// key subscriptions and an optional WebSocket bridge to a remote router.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

// ErrUnknownProvider is returned when the factory sees an unsupported tag.
var ErrUnknownProvider = errors.New("bus: unknown provider")

// Callback receives outbound messages for one channel. Errors are logged by
// the dispatcher and never affect sibling callbacks.
type Callback func(ctx context.Context, msg *models.OutboundMessage) error

// Provider is the transport-level bus contract. Consume methods block for a
// bounded interval (about one second) and return (nil, nil) on timeout so
// callers can poll cooperatively.
type Provider interface {
	Initialize(ctx context.Context) error
	PublishInbound(ctx context.Context, msg *models.InboundMessage) error
	ConsumeInbound(ctx context.Context) (*models.InboundMessage, error)
	PublishOutbound(ctx context.Context, msg *models.OutboundMessage) error
	ConsumeOutbound(ctx context.Context) (*models.OutboundMessage, error)

	// SubscribeOutbound registers a callback for one channel. Multiple
	// callbacks per channel are invoked sequentially in registration order.
	SubscribeOutbound(channel string, cb Callback)

	// DispatchOutbound runs until Stop or context cancellation, fanning
	// each outbound message out to the callbacks registered for its channel.
	DispatchOutbound(ctx context.Context) error

	// Stop ends DispatchOutbound and detaches transport subscriptions.
	Stop()

	InboundSize() int
	OutboundSize() int
}

// Options carries provider construction parameters.
type Options struct {
	// DomainID isolates DDS topics; providers with equal domain IDs in the
	// same process share topics.
	DomainID int

	// ZenohConfig is the opaque zenoh configuration map. The "endpoint" key,
	// when present, enables the WebSocket bridge to a remote router.
	ZenohConfig map[string]any

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// constructor builds a provider from options.
type constructor func(opts Options) Provider

var (
	providersMu sync.RWMutex
	providers   = map[string]constructor{
		"dds":   func(opts Options) Provider { return newDDSProvider(opts) },
		"zenoh": func(opts Options) Provider { return newZenohProvider(opts) },
	}
)

// RegisterProvider adds a provider constructor under a tag, replacing any
// existing registration. Intended for alternate transports.
func RegisterProvider(tag string, ctor func(opts Options) Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[tag] = ctor
}

// SupportedProviders lists the registered provider tags.
func SupportedProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	tags := make([]string, 0, len(providers))
	for tag := range providers {
		tags = append(tags, tag)
	}
	return tags
}

// NewProvider creates a bus provider by tag.
func NewProvider(tag string, opts Options) (Provider, error) {
	providersMu.RLock()
	ctor, ok := providers[tag]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, tag)
	}
	return ctor(opts), nil
}
