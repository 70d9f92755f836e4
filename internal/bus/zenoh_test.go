package bus

import (
	"context"
	"testing"
	"time"

	"github.com/aisbot/aisbot/pkg/models"
)

func newTestZenoh(t *testing.T) *zenohProvider {
	t.Helper()
	p := newZenohProvider(Options{})
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(p.Stop)
	return p
}

func TestZenohPublishConsumeInbound(t *testing.T) {
	p := newTestZenoh(t)
	ctx := context.Background()

	want := models.NewInboundMessage("telegram", "bob", "42", "ping")
	if err := p.PublishInbound(ctx, want); err != nil {
		t.Fatalf("PublishInbound() error = %v", err)
	}

	got, err := p.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("ConsumeInbound() error = %v", err)
	}
	if got == nil || got.Content != "ping" || got.SessionKey() != "telegram:42" {
		t.Errorf("got %+v", got)
	}
}

func TestZenohConsumeTimeout(t *testing.T) {
	p := newTestZenoh(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	got, err := p.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("ConsumeInbound() error = %v", err)
	}
	if got != nil {
		t.Errorf("ConsumeInbound() = %+v, want nil", got)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("poll did not honor context: took %v", elapsed)
	}
}

func TestZenohPushDeliversToAllSessions(t *testing.T) {
	a := newTestZenoh(t)
	b := newTestZenoh(t)
	ctx := context.Background()

	if err := a.PublishOutbound(ctx, models.NewOutboundMessage("cli", "u1", "fan")); err != nil {
		t.Fatalf("PublishOutbound() error = %v", err)
	}

	for name, p := range map[string]*zenohProvider{"a": a, "b": b} {
		got, err := p.ConsumeOutbound(ctx)
		if err != nil || got == nil {
			t.Fatalf("ConsumeOutbound(%s) = %v, %v", name, got, err)
		}
		if got.Content != "fan" {
			t.Errorf("session %s content = %q", name, got.Content)
		}
	}
}

func TestZenohDispatchOutbound(t *testing.T) {
	p := newTestZenoh(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *models.OutboundMessage, 2)
	p.SubscribeOutbound("cli", func(ctx context.Context, msg *models.OutboundMessage) error {
		received <- msg
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.DispatchOutbound(ctx)
	}()

	if err := p.PublishOutbound(ctx, models.NewOutboundMessage("cli", "u1", "pushed")); err != nil {
		t.Fatalf("PublishOutbound() error = %v", err)
	}

	select {
	case got := <-received:
		if got.Content != "pushed" || got.ChatID != "u1" {
			t.Errorf("dispatched %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for dispatch")
	}

	p.Stop()
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("dispatcher did not stop")
	}
}

func TestZenohMalformedPayloadDropped(t *testing.T) {
	p := newTestZenoh(t)

	defaultRouter.put(inboundKey, []byte("oops not json"))

	got, err := p.ConsumeInbound(context.Background())
	if err != nil {
		t.Fatalf("ConsumeInbound() error = %v, want silent drop", err)
	}
	if got != nil {
		t.Errorf("ConsumeInbound() = %+v, want nil after drop", got)
	}
}

func TestZenohQueueOverflowDropsNewest(t *testing.T) {
	p := newTestZenoh(t)
	ctx := context.Background()

	for i := 0; i < topicDepth+10; i++ {
		if err := p.PublishInbound(ctx, models.NewInboundMessage("cli", "a", "u1", "x")); err != nil {
			t.Fatalf("PublishInbound() error = %v", err)
		}
	}
	if size := p.InboundSize(); size != topicDepth {
		t.Errorf("InboundSize() = %d, want %d", size, topicDepth)
	}
}
