// Package notify delivers rendered reports and alerts to the operator chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/autoclaim/autoclaim/internal/config"
)

// maxMessageRunes is Telegram's per-message text limit.
const maxMessageRunes = 4096

// Notifier sends a Markdown text to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// New returns a Telegram notifier when configured and a no-op one otherwise.
func New(cfg config.TelegramConfig, logger *slog.Logger) Notifier {
	if !cfg.Enabled() {
		return Noop{logger: logger}
	}
	return NewTelegram(cfg, &http.Client{Timeout: 10 * time.Second}, logger)
}

// Noop logs and drops every message.
type Noop struct {
	logger *slog.Logger
}

func (n Noop) Notify(_ context.Context, text string) error {
	if n.logger != nil {
		n.logger.Info("telegram not configured, skipping push", "length", len(text))
	}
	return nil
}

// Telegram posts messages through the Bot API. The bot handle is created on
// first use so that constructing the notifier never touches the network; a
// failed creation is retried by the next send.
type Telegram struct {
	cfg    config.TelegramConfig
	client *http.Client
	logger *slog.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegram creates a Telegram notifier using the given HTTP client.
func NewTelegram(cfg config.TelegramConfig, client *http.Client, logger *slog.Logger) *Telegram {
	return &Telegram{cfg: cfg, client: client, logger: logger}
}

func (t *Telegram) api() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.BotToken, t.cfg.APIEndpoint, t.client)
	if err != nil {
		return nil, err
	}
	t.bot = bot
	return bot, nil
}

// Notify sends text, split into several messages when it exceeds the limit.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	bot, err := t.api()
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	for i, part := range splitMessage(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.cfg.ChatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.DisableWebPagePreview = true

		sent, err := bot.Send(msg)
		if err != nil {
			return fmt.Errorf("telegram send part %d: %w", i+1, err)
		}
		t.logger.Info("telegram message sent", "message_id", sent.MessageID, "part", i+1)
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring line
// boundaries.
func splitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var (
		parts []string
		cur   strings.Builder
		size  int
	)
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			size = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		if size+len(runes) > limit {
			flush()
		}
		cur.WriteString(string(runes))
		size += len(runes)
	}
	flush()
	return parts
}
