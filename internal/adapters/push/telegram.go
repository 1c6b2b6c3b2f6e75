package push

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

// Telegram дублирует уведомления в личные чаты через бота.
type Telegram struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.Pusher = (*Telegram)(nil)

// NewTelegram создаёт пушер. Пустой токен допустим: рассылка отключается.
func NewTelegram(token string, logger zerolog.Logger) (*Telegram, error) {
	if token == "" {
		return &Telegram{log: logger}, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: инициализация бота: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram: бот подключен")
	return &Telegram{bot: bot, log: logger}, nil
}

// Push отправляет текст в чат. Без бота или чата вызов тихо пропускается.
func (t *Telegram) Push(chatID int64, text string) error {
	if t.bot == nil || chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	start := time.Now()
	_, err := t.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "send_message", "bot_api", start, err)
	if err != nil {
		return fmt.Errorf("telegram: отправка в чат %d: %w", chatID, err)
	}
	return nil
}
