package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"clinic/internal/events"
)

// TelegramSender is the subset of *tgbotapi.BotAPI used for sending.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts notifications to the receptionist chat.
type TelegramNotifier struct {
	bot     TelegramSender
	chatID  int64
	limiter *rate.Limiter
}

// NewTelegramNotifier paces sends at perSecond messages per second.
func NewTelegramNotifier(bot TelegramSender, chatID int64, perSecond float64, burst int) *TelegramNotifier {
	if perSecond <= 0 {
		perSecond = 20
	}
	if burst <= 0 {
		burst = 1
	}
	return &TelegramNotifier{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// NewTelegramBot connects to the Bot API with token.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, eventType string, p events.AppointmentPayload) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	msg := tgbotapi.NewMessage(n.chatID, Format(eventType, p))
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
