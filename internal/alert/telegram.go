package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

// Telegram sends a plain-text message to one chat through the Bot API.
type Telegram struct {
	bot     *bot.Bot
	chatID  int64
	mention string
}

// NewTelegram returns nil when token is empty. serverURL overrides the Bot
// API endpoint and is mostly useful in tests.
func NewTelegram(token string, chatID int64, serverURL, mention string) (*Telegram, error) {
	if token == "" {
		return nil, nil
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	opts := []bot.Option{bot.WithSkipGetMe()}
	if serverURL != "" {
		opts = append(opts, bot.WithServerURL(serverURL))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID, mention: mention}, nil
}

func (t *Telegram) Notify(ctx context.Context, ev monitor.Event) error {
	text := strings.ReplaceAll(Format(ev, t.mention).String(), "**", "")
	if _, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	}); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}
