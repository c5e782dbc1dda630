// Package notify implements an Event Bus subscriber that posts
// human-readable Telegram alerts for the events worth paging someone over:
// retry exhaustion, capacity rejection, and group cancellation. It mirrors
// the surrounding bot's TelegramBot notifier, but is driven entirely off
// the Event Bus instead of direct method calls.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/algoforge/ordergroup/internal/events"
)

// TelegramNotifier drains an events.Bus subscription and posts alerts.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier authenticates against the Telegram bot API and returns
// an error if that fails. It does no check of its own for an empty token or
// chat ID; cmd/backtester only calls it when a token is configured.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("📱 telegram notifier initialized")
	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

// Run drains ch until it is closed (the bus was Close()d), posting an alert
// for every event worth surfacing and discarding the rest. It never blocks
// the bus — the channel is the subscriber's own buffered copy.
func (n *TelegramNotifier) Run(ch <-chan events.Event) {
	for e := range ch {
		msg, ok := render(e)
		if !ok {
			continue
		}
		n.send(msg)
	}
}

func render(e events.Event) (string, bool) {
	switch e.Kind {
	case events.KindMaxRetryReached:
		return fmt.Sprintf("🛑 *MANUAL INTERVENTION REQUIRED*\n\ngroup `%s` pair `%s`\nside %s, residual volume %s\nretry attempts exhausted after %d tries",
			e.GroupID, e.PairID, e.Side, e.Volume.String(), e.Attempt), true
	case events.KindMaxConcurrentGroupsReached:
		return "⚠️ *CAPACITY REACHED*\n\nan order request was rejected: max concurrent groups reached", true
	case events.KindGroupCancelled:
		msg := fmt.Sprintf("📊 *GROUP CANCELLED*\n\ngroup `%s`", e.GroupID)
		if e.Reason != "" {
			msg += fmt.Sprintf("\nreason: %s", e.Reason)
		}
		return msg, true
	default:
		return "", false
	}
}

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("telegram notifier: send failed")
	}
}
