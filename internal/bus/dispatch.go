package bus

import (
	"context"
	"sync"
)

// outboundRegistry maps channel names to ordered callback lists. Writes
// happen during startup; reads happen on the dispatcher goroutine.
type outboundRegistry struct {
	mu   sync.RWMutex
	subs map[string][]Callback
}

func newOutboundRegistry() *outboundRegistry {
	return &outboundRegistry{subs: make(map[string][]Callback)}
}

func (r *outboundRegistry) add(channel string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[channel] = append(r.subs[channel], cb)
}

func (r *outboundRegistry) get(channel string) []Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cbs := r.subs[channel]
	out := make([]Callback, len(cbs))
	copy(out, cbs)
	return out
}

// logging and metrics helpers that tolerate absent wiring

func (o Options) logDebug(ctx context.Context, msg string, args ...any) {
	if o.Logger != nil {
		o.Logger.Debug(ctx, msg, args...)
	}
}

func (o Options) logInfo(ctx context.Context, msg string, args ...any) {
	if o.Logger != nil {
		o.Logger.Info(ctx, msg, args...)
	}
}

func (o Options) logWarn(ctx context.Context, msg string, args ...any) {
	if o.Logger != nil {
		o.Logger.Warn(ctx, msg, args...)
	}
}

func (o Options) logError(ctx context.Context, msg string, args ...any) {
	if o.Logger != nil {
		o.Logger.Error(ctx, msg, args...)
	}
}

func (o Options) recordBus(provider, topic, op string) {
	if o.Metrics != nil {
		o.Metrics.RecordBusMessage(provider, topic, op)
	}
}

func (o Options) recordDrop(provider, topic, reason string) {
	if o.Metrics != nil {
		o.Metrics.RecordBusDrop(provider, topic, reason)
	}
}
