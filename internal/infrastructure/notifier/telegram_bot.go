package notifier

import (
	"context"
	"fmt"
	"html"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramBot posts alerts to one Telegram chat.
type TelegramBot struct {
	bot    messageSender
	chatID int64
}

func NewTelegramBot(token string, chatID int64) (*TelegramBot, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &TelegramBot{
		bot:    bot,
		chatID: chatID,
	}, nil
}

// Send renders alert as HTML and posts it to the chat.
func (b *TelegramBot) Send(ctx context.Context, alert Alert) error {
	text := fmt.Sprintf(
		"⚠️ <b>%s</b>\n\n%s\n\n<i>%s</i>",
		html.EscapeString(alert.Title),
		html.EscapeString(alert.Detail),
		alert.At.UTC().Format("2006-01-02 15:04:05 MST"),
	)

	msg := tu.Message(
		tu.ID(b.chatID),
		text,
	).WithParseMode(telego.ModeHTML)

	if _, err := b.bot.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}
