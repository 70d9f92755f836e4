// Package cli bridges standard input and output to the bus so the agent
// can be driven from a terminal session.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/aisbot/aisbot/internal/bus"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

// ChannelType is the channel tag for terminal conversations.
const ChannelType = "cli"

// Config holds optional knobs for the CLI adapter. Zero values select
// stdin/stdout with interactivity detected from the input terminal.
type Config struct {
	Input  io.Reader
	Output io.Writer
	Logger *observability.Logger
}

// Adapter reads lines from the terminal, publishing each as an inbound
// message for the "cli:direct" conversation, and prints outbound replies.
type Adapter struct {
	bus         *bus.MessageBus
	logger      *observability.Logger
	in          io.Reader
	interactive bool

	outMu sync.Mutex
	out   io.Writer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a CLI adapter bound to the bus.
func New(b *bus.MessageBus, cfg Config) *Adapter {
	if cfg.Input == nil {
		cfg.Input = os.Stdin
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.LogConfig{})
	}

	interactive := false
	if f, ok := cfg.Input.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}

	return &Adapter{
		bus:         b,
		logger:      cfg.Logger,
		in:          cfg.Input,
		out:         cfg.Output,
		interactive: interactive,
	}
}

// Type returns the channel tag.
func (a *Adapter) Type() string { return ChannelType }

// Start begins reading input lines.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.readLoop(ctx)

	a.logger.Info(ctx, "cli channel started", "interactive", a.interactive)
	return nil
}

func (a *Adapter) readLoop(ctx context.Context) {
	defer a.wg.Done()

	scanner := bufio.NewScanner(a.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	a.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			a.prompt()
			continue
		}
		msg := models.NewInboundMessage(ChannelType, "user", "direct", line)
		if err := a.bus.PublishInbound(ctx, msg); err != nil {
			a.logger.Error(ctx, "cli publish failed", "error", err)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		a.logger.Warn(ctx, "cli input closed", "error", err)
	}
}

// Stop cancels the read loop. A reader blocked on an open terminal cannot
// be interrupted, so Stop abandons it when the context expires.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Debug(ctx, "cli reader abandoned on stop")
	}
	return nil
}

// Send prints a reply. In interactive mode the prompt is redrawn after the
// message so the user can keep typing.
func (a *Adapter) Send(ctx context.Context, msg *models.OutboundMessage) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if a.interactive {
		if _, err := fmt.Fprintf(a.out, "\r%s\n", msg.Content); err != nil {
			return err
		}
		fmt.Fprint(a.out, "> ")
		return nil
	}
	_, err := fmt.Fprintln(a.out, msg.Content)
	return err
}

func (a *Adapter) prompt() {
	if !a.interactive {
		return
	}
	a.outMu.Lock()
	fmt.Fprint(a.out, "> ")
	a.outMu.Unlock()
}
