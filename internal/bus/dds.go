package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aisbot/aisbot/pkg/models"
)

const (
	// consumeTimeout bounds every blocking receive so callers can poll
	// cooperatively and observe stop flags.
	consumeTimeout = time.Second

	// topicDepth bounds each subscriber queue.
	topicDepth = 256

	inboundTopicName  = "inbound"
	outboundTopicName = "outbound"
)

// The in-process data fabric. Providers created with the same domain ID share
// topics, so a subagent's bus handle reaches the main loop without leaving
// the process. Every subscriber on a topic receives every sample.
type ddsDomain struct {
	mu     sync.Mutex
	topics map[string]*ddsTopic
}

type ddsTopic struct {
	mu   sync.Mutex
	subs []*ddsSubscriber
}

type ddsSubscriber struct {
	ch chan []byte
}

var (
	domainsMu sync.Mutex
	domains   = map[int]*ddsDomain{}
)

func joinDomain(id int) *ddsDomain {
	domainsMu.Lock()
	defer domainsMu.Unlock()
	d, ok := domains[id]
	if !ok {
		d = &ddsDomain{topics: make(map[string]*ddsTopic)}
		domains[id] = d
	}
	return d
}

func (d *ddsDomain) topic(name string) *ddsTopic {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.topics[name]
	if !ok {
		t = &ddsTopic{}
		d.topics[name] = t
	}
	return t
}

func (t *ddsTopic) attach() *ddsSubscriber {
	sub := &ddsSubscriber{ch: make(chan []byte, topicDepth)}
	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return sub
}

func (t *ddsTopic) detach(sub *ddsSubscriber) {
	if sub == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subs {
		if s == sub {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			return
		}
	}
}

// publish delivers a sample to every subscriber queue. Full queues drop the
// sample for that subscriber; the count of drops is returned.
func (t *ddsTopic) publish(data []byte) int {
	t.mu.Lock()
	subs := make([]*ddsSubscriber, len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	dropped := 0
	for _, sub := range subs {
		select {
		case sub.ch <- data:
		default:
			dropped++
		}
	}
	return dropped
}

// recv blocks until a sample arrives, the timeout elapses, or the context is
// done. Returns nil on timeout or cancellation.
func (s *ddsSubscriber) recv(ctx context.Context, timeout time.Duration) []byte {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-s.ch:
		return data
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// ddsProvider is the pull-based provider. Two no-key topics, one publisher
// and one subscriber per topic.
type ddsProvider struct {
	opts     Options
	domainID int

	inboundTopic  *ddsTopic
	outboundTopic *ddsTopic
	inboundSub    *ddsSubscriber
	outboundSub   *ddsSubscriber

	subscribers *outboundRegistry
	running     atomic.Bool
}

func newDDSProvider(opts Options) *ddsProvider {
	return &ddsProvider{
		opts:        opts,
		domainID:    opts.DomainID,
		subscribers: newOutboundRegistry(),
	}
}

func (p *ddsProvider) Initialize(ctx context.Context) error {
	p.opts.logInfo(ctx, "initializing dds provider", "domain_id", p.domainID)

	domain := joinDomain(p.domainID)
	p.inboundTopic = domain.topic(inboundTopicName)
	p.outboundTopic = domain.topic(outboundTopicName)
	p.inboundSub = p.inboundTopic.attach()
	p.outboundSub = p.outboundTopic.attach()

	p.opts.logInfo(ctx, "dds provider initialized")
	return nil
}

func (p *ddsProvider) PublishInbound(ctx context.Context, msg *models.InboundMessage) error {
	data, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}
	if dropped := p.inboundTopic.publish(data); dropped > 0 {
		p.opts.logWarn(ctx, "inbound queue full, sample dropped", "dropped", dropped)
		p.opts.recordDrop("dds", inboundTopicName, "overflow")
	}
	p.opts.recordBus("dds", inboundTopicName, "publish")
	p.opts.logDebug(ctx, "published inbound message", "session_key", msg.SessionKey())
	return nil
}

func (p *ddsProvider) ConsumeInbound(ctx context.Context) (*models.InboundMessage, error) {
	data := p.inboundSub.recv(ctx, consumeTimeout)
	if data == nil {
		return nil, nil
	}
	msg, err := decodeInbound(data)
	if err != nil {
		p.opts.logWarn(ctx, "dropping malformed inbound payload", "error", err)
		p.opts.recordDrop("dds", inboundTopicName, "malformed")
		return nil, nil
	}
	p.opts.recordBus("dds", inboundTopicName, "consume")
	return msg, nil
}

func (p *ddsProvider) PublishOutbound(ctx context.Context, msg *models.OutboundMessage) error {
	data, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}
	if dropped := p.outboundTopic.publish(data); dropped > 0 {
		p.opts.logWarn(ctx, "outbound queue full, sample dropped", "dropped", dropped)
		p.opts.recordDrop("dds", outboundTopicName, "overflow")
	}
	p.opts.recordBus("dds", outboundTopicName, "publish")
	p.opts.logDebug(ctx, "published outbound message", "channel", msg.Channel, "chat_id", msg.ChatID)
	return nil
}

func (p *ddsProvider) ConsumeOutbound(ctx context.Context) (*models.OutboundMessage, error) {
	data := p.outboundSub.recv(ctx, consumeTimeout)
	if data == nil {
		return nil, nil
	}
	msg, err := decodeOutbound(data)
	if err != nil {
		p.opts.logWarn(ctx, "dropping malformed outbound payload", "error", err)
		p.opts.recordDrop("dds", outboundTopicName, "malformed")
		return nil, nil
	}
	p.opts.recordBus("dds", outboundTopicName, "consume")
	return msg, nil
}

func (p *ddsProvider) SubscribeOutbound(channel string, cb Callback) {
	p.subscribers.add(channel, cb)
	p.opts.logDebug(context.Background(), "subscribed to outbound channel", "channel", channel)
}

func (p *ddsProvider) DispatchOutbound(ctx context.Context) error {
	p.running.Store(true)
	p.opts.logInfo(ctx, "starting outbound dispatcher", "provider", "dds")

	for p.running.Load() {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := p.ConsumeOutbound(ctx)
		if err != nil || msg == nil {
			continue
		}
		p.fanOut(ctx, msg)
	}
	return nil
}

func (p *ddsProvider) fanOut(ctx context.Context, msg *models.OutboundMessage) {
	for _, cb := range p.subscribers.get(msg.Channel) {
		if err := cb(ctx, msg); err != nil {
			p.opts.logError(ctx, "error dispatching outbound message", "channel", msg.Channel, "error", err)
			p.opts.recordDrop("dds", outboundTopicName, "callback_error")
		}
	}
}

func (p *ddsProvider) Stop() {
	p.running.Store(false)
	if p.inboundTopic != nil {
		p.inboundTopic.detach(p.inboundSub)
	}
	if p.outboundTopic != nil {
		p.outboundTopic.detach(p.outboundSub)
	}
	p.opts.logInfo(context.Background(), "dds provider stopped")
}

func (p *ddsProvider) InboundSize() int {
	if p.inboundSub == nil {
		return 0
	}
	return len(p.inboundSub.ch)
}

func (p *ddsProvider) OutboundSize() int {
	if p.outboundSub == nil {
		return 0
	}
	return len(p.outboundSub.ch)
}
