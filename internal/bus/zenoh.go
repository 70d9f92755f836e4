package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aisbot/aisbot/pkg/models"
)

const (
	inboundKey  = "aisbot/inbound"
	outboundKey = "aisbot/outbound"

	// zenohPollInterval is the sleep between try_recv attempts.
	zenohPollInterval = 10 * time.Millisecond
)

// zenohRouter delivers puts to handlers declared on matching keys. One
// process-wide router stands in for the zenoh network: sessions in the same
// process behave like peers that discovered each other.
type zenohRouter struct {
	mu   sync.RWMutex
	subs map[string][]*zenohSubscription
}

type zenohSubscription struct {
	key     string
	handler func([]byte)
}

var defaultRouter = &zenohRouter{subs: make(map[string][]*zenohSubscription)}

func (r *zenohRouter) declareSubscriber(key string, handler func([]byte)) *zenohSubscription {
	sub := &zenohSubscription{key: key, handler: handler}
	r.mu.Lock()
	r.subs[key] = append(r.subs[key], sub)
	r.mu.Unlock()
	return sub
}

func (r *zenohRouter) undeclare(sub *zenohSubscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[sub.key]
	for i, s := range list {
		if s == sub {
			r.subs[sub.key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// put delivers a payload to every local handler declared on the key.
// Handlers only enqueue, so inline invocation cannot block the publisher.
func (r *zenohRouter) put(key string, payload []byte) {
	r.mu.RLock()
	subs := make([]*zenohSubscription, len(r.subs[key]))
	copy(subs, r.subs[key])
	r.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(payload)
	}
}

// zenohProvider is the push-based provider. Subscribers are declared on the
// inbound and outbound keys; declared handlers fill bounded queues that
// consume methods poll with try_recv plus a short sleep.
type zenohProvider struct {
	opts Options

	inboundQueue  chan []byte
	outboundQueue chan []byte

	inboundSub  *zenohSubscription
	outboundSub *zenohSubscription

	bridge *wsBridge

	subscribers *outboundRegistry
	running     atomic.Bool
}

func newZenohProvider(opts Options) *zenohProvider {
	return &zenohProvider{
		opts:          opts,
		inboundQueue:  make(chan []byte, topicDepth),
		outboundQueue: make(chan []byte, topicDepth),
		subscribers:   newOutboundRegistry(),
	}
}

func (p *zenohProvider) Initialize(ctx context.Context) error {
	p.opts.logInfo(ctx, "initializing zenoh provider")

	p.inboundSub = defaultRouter.declareSubscriber(inboundKey, func(payload []byte) {
		p.enqueue(ctx, p.inboundQueue, inboundKey, payload)
	})
	p.outboundSub = defaultRouter.declareSubscriber(outboundKey, func(payload []byte) {
		p.enqueue(ctx, p.outboundQueue, outboundKey, payload)
	})

	if endpoint, ok := p.opts.ZenohConfig["endpoint"].(string); ok && endpoint != "" {
		p.bridge = newWSBridge(endpoint, p.opts, func(key string, payload []byte) {
			// Remote frames reach local handlers only; never mirrored back.
			defaultRouter.put(key, payload)
		})
		if err := p.bridge.connect(ctx); err != nil {
			p.opts.logError(ctx, "zenoh bridge connect failed, will retry on publish", "endpoint", endpoint, "error", err)
		}
	}

	p.opts.logInfo(ctx, "zenoh provider initialized")
	return nil
}

func (p *zenohProvider) enqueue(ctx context.Context, queue chan []byte, key string, payload []byte) {
	select {
	case queue <- payload:
	default:
		p.opts.logWarn(ctx, "zenoh queue full, sample dropped", "key", key)
		p.opts.recordDrop("zenoh", key, "overflow")
	}
}

// put publishes locally and mirrors to the remote router when bridged.
func (p *zenohProvider) put(ctx context.Context, key string, payload []byte) {
	defaultRouter.put(key, payload)
	if p.bridge != nil {
		if err := p.bridge.send(ctx, key, payload); err != nil {
			p.opts.logError(ctx, "zenoh bridge send failed", "key", key, "error", err)
		}
	}
}

// poll implements the cooperative try_recv loop: check the queue, sleep
// briefly, give up after the bounded consume window.
func (p *zenohProvider) poll(ctx context.Context, queue chan []byte) []byte {
	deadline := time.Now().Add(consumeTimeout)
	for {
		select {
		case data := <-queue:
			return data
		default:
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return nil
		}
		time.Sleep(zenohPollInterval)
	}
}

func (p *zenohProvider) PublishInbound(ctx context.Context, msg *models.InboundMessage) error {
	data, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}
	p.put(ctx, inboundKey, data)
	p.opts.recordBus("zenoh", inboundTopicName, "publish")
	p.opts.logDebug(ctx, "published inbound message", "session_key", msg.SessionKey())
	return nil
}

func (p *zenohProvider) ConsumeInbound(ctx context.Context) (*models.InboundMessage, error) {
	data := p.poll(ctx, p.inboundQueue)
	if data == nil {
		return nil, nil
	}
	msg, err := decodeInbound(data)
	if err != nil {
		p.opts.logWarn(ctx, "dropping malformed inbound payload", "error", err)
		p.opts.recordDrop("zenoh", inboundTopicName, "malformed")
		return nil, nil
	}
	p.opts.recordBus("zenoh", inboundTopicName, "consume")
	return msg, nil
}

func (p *zenohProvider) PublishOutbound(ctx context.Context, msg *models.OutboundMessage) error {
	data, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}
	p.put(ctx, outboundKey, data)
	p.opts.recordBus("zenoh", outboundTopicName, "publish")
	p.opts.logDebug(ctx, "published outbound message", "channel", msg.Channel, "chat_id", msg.ChatID)
	return nil
}

func (p *zenohProvider) ConsumeOutbound(ctx context.Context) (*models.OutboundMessage, error) {
	data := p.poll(ctx, p.outboundQueue)
	if data == nil {
		return nil, nil
	}
	msg, err := decodeOutbound(data)
	if err != nil {
		p.opts.logWarn(ctx, "dropping malformed outbound payload", "error", err)
		p.opts.recordDrop("zenoh", outboundTopicName, "malformed")
		return nil, nil
	}
	p.opts.recordBus("zenoh", outboundTopicName, "consume")
	return msg, nil
}

func (p *zenohProvider) SubscribeOutbound(channel string, cb Callback) {
	p.subscribers.add(channel, cb)
	p.opts.logDebug(context.Background(), "subscribed to outbound channel", "channel", channel)
}

func (p *zenohProvider) DispatchOutbound(ctx context.Context) error {
	p.running.Store(true)
	p.opts.logInfo(ctx, "starting outbound dispatcher", "provider", "zenoh")

	for p.running.Load() {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := p.ConsumeOutbound(ctx)
		if err != nil || msg == nil {
			continue
		}
		for _, cb := range p.subscribers.get(msg.Channel) {
			if err := cb(ctx, msg); err != nil {
				p.opts.logError(ctx, "error dispatching outbound message", "channel", msg.Channel, "error", err)
				p.opts.recordDrop("zenoh", outboundTopicName, "callback_error")
			}
		}
	}
	return nil
}

func (p *zenohProvider) Stop() {
	p.running.Store(false)
	defaultRouter.undeclare(p.inboundSub)
	defaultRouter.undeclare(p.outboundSub)
	if p.bridge != nil {
		p.bridge.close()
	}
	p.opts.logInfo(context.Background(), "zenoh provider stopped")
}

func (p *zenohProvider) InboundSize() int {
	return len(p.inboundQueue)
}

func (p *zenohProvider) OutboundSize() int {
	return len(p.outboundQueue)
}
