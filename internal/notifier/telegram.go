package notifier

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Sender delivers one formatted message to the external channel.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// telegramSender is a send-only Telegram client. It never polls for
// updates; the bot exists purely to push alerts into a chat.
type telegramSender struct {
	bot    *tele.Bot
	chatID int64
}

func newTelegramSender(cfg TelegramConfig) (Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is not set")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &telegramSender{bot: b, chatID: cfg.ChatID}, nil
}

func (t *telegramSender) SendText(ctx context.Context, text string) error {
	// telebot does not take a context per call; bound the send with a
	// deadline-aware goroutine instead of blocking the worker forever.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(&tele.Chat{ID: t.chatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(15 * time.Second):
		return errors.New("telegram send timed out")
	}
}
