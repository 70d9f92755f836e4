// Package channels connects messaging platforms to the bus. Adapters are
// bus clients only: they publish what users say as inbound messages and
// deliver outbound messages subscribed from the bus. The agent loop never
// references an adapter.
package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/aisbot/aisbot/internal/bus"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

// Adapter is the contract every channel adapter implements.
type Adapter interface {
	// Type returns the channel tag ("cli", "telegram"). It keys outbound
	// routing, so it must match the Channel field of the messages the
	// adapter publishes.
	Type() string

	// Start begins receiving from the platform and publishing inbound
	// messages. It must not block beyond connection setup.
	Start(ctx context.Context) error

	// Stop shuts the adapter down, honoring the context deadline.
	Stop(ctx context.Context) error

	// Send delivers one outbound message to the platform.
	Send(ctx context.Context, msg *models.OutboundMessage) error
}

// Registry holds the enabled adapters and binds each one to the bus's
// outbound subscription for its channel tag.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string

	bus    *bus.MessageBus
	logger *observability.Logger
}

// NewRegistry creates an empty registry bound to the given bus.
func NewRegistry(b *bus.MessageBus, logger *observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Registry{
		adapters: make(map[string]Adapter),
		bus:      b,
		logger:   logger,
	}
}

// Register adds an adapter and subscribes it to outbound messages for its
// channel tag. A duplicate tag is rejected.
func (r *Registry) Register(adapter Adapter) error {
	tag := adapter.Type()
	if tag == "" {
		return fmt.Errorf("channels: adapter has empty type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[tag]; exists {
		return fmt.Errorf("channels: adapter already registered: %s", tag)
	}
	r.adapters[tag] = adapter
	r.order = append(r.order, tag)

	r.bus.SubscribeOutbound(tag, adapter.Send)
	return nil
}

// Get returns an adapter by channel tag.
func (r *Registry) Get(tag string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[tag]
	return adapter, ok
}

// All returns the registered adapters in registration order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, tag := range r.order {
		out = append(out, r.adapters[tag])
	}
	return out
}

// Types returns the registered channel tags in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, len(r.order))
	copy(tags, r.order)
	return tags
}

// StartAll starts every adapter in registration order. The first failure
// stops the sweep and the already-started adapters are stopped again.
func (r *Registry) StartAll(ctx context.Context) error {
	started := make([]Adapter, 0, len(r.All()))
	for _, adapter := range r.All() {
		if err := adapter.Start(ctx); err != nil {
			for _, s := range started {
				if stopErr := s.Stop(ctx); stopErr != nil {
					r.logger.Warn(ctx, "channel stop failed during rollback",
						"channel", s.Type(), "error", stopErr)
				}
			}
			return fmt.Errorf("channels: start %s: %w", adapter.Type(), err)
		}
		r.logger.Info(ctx, "channel started", "channel", adapter.Type())
		started = append(started, adapter)
	}
	return nil
}

// StopAll stops every adapter, returning the last error seen.
func (r *Registry) StopAll(ctx context.Context) error {
	var lastErr error
	for _, adapter := range r.All() {
		if err := adapter.Stop(ctx); err != nil {
			r.logger.Warn(ctx, "channel stop failed", "channel", adapter.Type(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}
