// Package telegram connects a Telegram bot to the bus over long polling.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/aisbot/aisbot/internal/bus"
	"github.com/aisbot/aisbot/internal/channels"
	"github.com/aisbot/aisbot/internal/observability"
	aisbotmodels "github.com/aisbot/aisbot/pkg/models"
)

// ChannelType is the channel tag for Telegram conversations.
const ChannelType = "telegram"

// messageLimit is Telegram's maximum message length. Download sizes are
// capped at Telegram's own bot-API file limit.
const (
	messageLimit    = 4096
	maxDownloadSize = 20 << 20
	pollTimeout     = time.Minute
)

// Config holds configuration for the Telegram adapter.
type Config struct {
	// Token is the bot token from @BotFather (required).
	Token string

	// AllowFrom lists permitted senders as numeric user IDs or usernames.
	// Empty admits everyone.
	AllowFrom []string

	// Proxy is an optional proxy URL (http, https, or socks5) for all
	// Telegram API traffic.
	Proxy string

	// MediaDir is where downloaded attachments are stored.
	MediaDir string

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("telegram: token is required")
	}
	if c.MediaDir == "" {
		c.MediaDir = filepath.Join(os.TempDir(), "aisbot-media")
	}
	if c.Logger == nil {
		c.Logger = observability.NewLogger(observability.LogConfig{})
	}
	return nil
}

// Adapter implements channels.Adapter for Telegram. Inbound messages are
// published to the bus with the sender's numeric ID and chat ID as routing
// fields; photo attachments are downloaded into MediaDir and passed along
// as local paths.
type Adapter struct {
	config  Config
	bus     *bus.MessageBus
	logger  *observability.Logger
	metrics *observability.Metrics
	allow   map[string]struct{}
	chunker *channels.Chunker
	client  *http.Client

	bot    *bot.Bot
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Telegram adapter bound to the bus.
func New(b *bus.MessageBus, cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	allow := make(map[string]struct{}, len(cfg.AllowFrom))
	for _, entry := range cfg.AllowFrom {
		entry = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(entry), "@"))
		if entry != "" {
			allow[entry] = struct{}{}
		}
	}

	client := http.DefaultClient
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("telegram: bad proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	return &Adapter{
		config:  cfg,
		bus:     b,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		allow:   allow,
		chunker: channels.NewChunker(messageLimit),
		client:  client,
	}, nil
}

// Type returns the channel tag.
func (a *Adapter) Type() string { return ChannelType }

// Start creates the bot and begins long polling.
func (a *Adapter) Start(ctx context.Context) error {
	opts := []bot.Option{bot.WithDefaultHandler(a.handleUpdate)}
	if a.config.Proxy != "" {
		opts = append(opts, bot.WithHTTPClient(pollTimeout, a.client))
	}

	b, err := bot.New(a.config.Token, opts...)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	a.bot = b

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		b.Start(ctx)
	}()

	a.logger.Info(ctx, "telegram channel started", "allow_from", len(a.allow))
	return nil
}

// Stop ends long polling, honoring the context deadline.
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
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram: stop timeout: %w", ctx.Err())
	}
}

// Send delivers one outbound message, splitting it into Telegram-sized
// chunks.
func (a *Adapter) Send(ctx context.Context, msg *aisbotmodels.OutboundMessage) error {
	if a.bot == nil {
		return fmt.Errorf("telegram: adapter not started")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", msg.ChatID, err)
	}

	for _, chunk := range a.chunker.Chunk(msg.Content) {
		if _, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   chunk,
		}); err != nil {
			if a.metrics != nil {
				a.metrics.RecordError("telegram", "send")
			}
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}

	if a.metrics != nil {
		a.metrics.MessageSent(ChannelType)
	}
	return nil
}

// handleUpdate converts one Telegram update into an inbound bus message.
func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !a.allowed(msg.From) {
		a.logger.Warn(ctx, "telegram sender not allowed",
			"user_id", msg.From.ID, "username", msg.From.Username)
		return
	}

	var media []string
	if len(msg.Photo) > 0 {
		// Telegram lists renditions smallest first; take the largest.
		photo := msg.Photo[len(msg.Photo)-1]
		path, err := a.downloadFile(ctx, b, photo.FileID)
		if err != nil {
			a.logger.Warn(ctx, "photo download failed", "error", err)
		} else {
			media = append(media, path)
		}
	}

	inbound := buildInbound(msg, media)
	if inbound == nil {
		return
	}

	if a.metrics != nil {
		a.metrics.MessageReceived(ChannelType)
	}
	if err := a.bus.PublishInbound(ctx, inbound); err != nil {
		a.logger.Error(ctx, "telegram publish failed", "error", err)
	}
}

// buildInbound maps a Telegram message onto the bus envelope. Messages with
// neither text nor media produce nil.
func buildInbound(msg *models.Message, media []string) *aisbotmodels.InboundMessage {
	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	if content == "" && len(media) == 0 {
		return nil
	}

	inbound := aisbotmodels.NewInboundMessage(ChannelType,
		strconv.FormatInt(msg.From.ID, 10),
		strconv.FormatInt(msg.Chat.ID, 10),
		content)
	inbound.Media = media
	return inbound
}

// allowed reports whether the sender passes the allow_from filter. Entries
// match the numeric user ID or the username, case-insensitive, with or
// without a leading @.
func (a *Adapter) allowed(user *models.User) bool {
	if len(a.allow) == 0 {
		return true
	}
	if _, ok := a.allow[strconv.FormatInt(user.ID, 10)]; ok {
		return true
	}
	if user.Username != "" {
		if _, ok := a.allow[strings.ToLower(user.Username)]; ok {
			return true
		}
	}
	return false
}

// downloadFile fetches one attachment into MediaDir and returns its path.
func (a *Adapter) downloadFile(ctx context.Context, b *bot.Bot, fileID string) (string, error) {
	file, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.FileDownloadLink(file), nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(a.config.MediaDir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(file.FilePath)
	if name == "." || name == string(filepath.Separator) {
		name = fileID
	}
	target := filepath.Join(a.config.MediaDir, name)

	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, io.LimitReader(resp.Body, maxDownloadSize)); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, nil
}
