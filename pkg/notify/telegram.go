package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/igorsilveira/tokenlens/pkg/a2a"
)

// Telegram sends the task summary to one chat through the Bot API. The bot
// is send-only; it never polls for updates.
type Telegram struct {
	bot    *bot.Bot
	chatID string
}

// NewTelegram creates a Telegram notifier. serverURL overrides the Bot API
// host and may be empty.
func NewTelegram(token, chatID, serverURL string) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("notify: telegram bot token not set")
	}
	opts := []bot.Option{bot.WithSkipGetMe()}
	if serverURL != "" {
		opts = append(opts, bot.WithServerURL(serverURL))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: creating telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Notify(ctx context.Context, task *a2a.Task) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   Summary(task),
	})
	if err != nil {
		return fmt.Errorf("notify: telegram: %w", err)
	}
	return nil
}
