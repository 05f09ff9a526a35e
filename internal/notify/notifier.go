package notify

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pilltrack/pilltrack/internal/config"
	"go.uber.org/zap"
)

// Event is one user-facing alert produced by the scheduler
type Event struct {
	Type         string    `json:"type"` // dose_reminder, refill_alert, missed_doses
	MedicationID string    `json:"medication_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Time         string    `json:"time,omitempty"`
	Message      string    `json:"message"`
	At           time.Time `json:"at"`
}

// Notifier delivers an event to the user through some channel
type Notifier interface {
	Notify(event Event) error
}

// LogNotifier writes events to the application log. Always present; it is
// what a headless install gets.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(event Event) error {
	n.logger.Info("notification",
		zap.String("type", event.Type),
		zap.String("medication", event.Name),
		zap.String("message", event.Message),
	)
	return nil
}

// TelegramNotifier pushes events to a Telegram chat
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger *zap.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	api.Debug = false

	return &TelegramNotifier{
		api:    api,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

func (n *TelegramNotifier) Notify(event Event) error {
	msg := tgbotapi.NewMessage(n.chatID, event.Message)
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Warn("failed to send telegram notification", zap.Error(err))
		return err
	}
	return nil
}

// MultiNotifier fans one event out to several channels. Delivery failures on
// one channel do not stop the others.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (n *MultiNotifier) Notify(event Event) error {
	var firstErr error
	for _, notifier := range n.notifiers {
		if err := notifier.Notify(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
