package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aisbot/aisbot/internal/bus"
	"github.com/aisbot/aisbot/pkg/models"
)

// Each test gets its own bus domain: the fabric is process-wide.
var cliTestDomain atomic.Int64

func newTestBus(t *testing.T) *bus.MessageBus {
	t.Helper()
	b, err := bus.New("dds", bus.Options{DomainID: int(7500 + cliTestDomain.Add(1))})
	if err != nil {
		t.Fatalf("bus.New() error = %v", err)
	}
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

func consumeInbound(t *testing.T, b *bus.MessageBus, timeout time.Duration) *models.InboundMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg, err := b.ConsumeInbound(context.Background())
		if err != nil {
			t.Fatalf("ConsumeInbound() error = %v", err)
		}
		if msg != nil {
			return msg
		}
	}
	t.Fatal("no inbound message before deadline")
	return nil
}

func TestPublishesInputLines(t *testing.T) {
	b := newTestBus(t)
	input := strings.NewReader("hello\n\n   world  \n")
	a := New(b, Config{Input: input, Output: &bytes.Buffer{}})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop(context.Background())

	first := consumeInbound(t, b, 10*time.Second)
	if first.Channel != ChannelType || first.SenderID != "user" || first.ChatID != "direct" {
		t.Errorf("routing = %s/%s/%s", first.Channel, first.SenderID, first.ChatID)
	}
	if first.Content != "hello" {
		t.Errorf("content = %q, want hello", first.Content)
	}

	// Blank lines are skipped and input is trimmed.
	second := consumeInbound(t, b, 10*time.Second)
	if second.Content != "world" {
		t.Errorf("content = %q, want world", second.Content)
	}
}

func TestSendWritesOutput(t *testing.T) {
	b := newTestBus(t)
	var out bytes.Buffer
	a := New(b, Config{Input: strings.NewReader(""), Output: &out})

	msg := models.NewOutboundMessage(ChannelType, "direct", "the answer")
	if err := a.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := out.String(); got != "the answer\n" {
		t.Errorf("output = %q", got)
	}
}

func TestStopHonorsContextWithBlockedReader(t *testing.T) {
	b := newTestBus(t)
	pr, pw := io.Pipe()
	defer pw.Close()
	a := New(b, Config{Input: pr, Output: &bytes.Buffer{}})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := a.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Stop() blocked for %v", elapsed)
	}
}

func TestStopAfterInputDrained(t *testing.T) {
	b := newTestBus(t)
	a := New(b, Config{Input: strings.NewReader("one line\n"), Output: &bytes.Buffer{}})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	consumeInbound(t, b, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestTypeTag(t *testing.T) {
	a := New(newTestBus(t), Config{Input: strings.NewReader(""), Output: &bytes.Buffer{}})
	if a.Type() != "cli" {
		t.Errorf("Type() = %q", a.Type())
	}
}
